// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestProvider(t *testing.T) (*Provider, *tracetest.InMemoryExporter, *prometheus.Registry) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	registry := prometheus.NewRegistry()

	cfg := DefaultConfig()
	cfg.Registerer = registry

	provider, err := NewProvider(context.Background(), cfg, sdktrace.WithSyncer(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return provider, exporter, registry
}

func TestProvider_RecordsSpans(t *testing.T) {
	provider, exporter, _ := newTestProvider(t)

	_, span := provider.Tracer("test").Start(context.Background(), "run")
	span.SetAttributes(attribute.String("run.id", "ab12cd34"))
	span.End()

	require.NoError(t, provider.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "run", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("run.id", "ab12cd34"))
}

func TestProvider_RunMetricsExportedToPrometheus(t *testing.T) {
	provider, _, registry := newTestProvider(t)
	ctx := context.Background()

	provider.RunMetrics().RecordRun(ctx, "finished", true, 1500*time.Millisecond)
	provider.RunMetrics().RecordStep(ctx, 10*time.Millisecond)

	families, err := registry.Gather()
	require.NoError(t, err)

	found := map[string]uint64{}
	for _, mf := range families {
		for _, prefix := range []string{"runchain_run_duration", "runchain_step_duration"} {
			if strings.HasPrefix(mf.GetName(), prefix) {
				for _, m := range mf.GetMetric() {
					found[prefix] += m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	assert.Equal(t, uint64(1), found["runchain_run_duration"])
	assert.Equal(t, uint64(1), found["runchain_step_duration"])
}

func TestRunMetrics_NilIsNoop(t *testing.T) {
	var m *RunMetrics
	assert.NotPanics(t, func() {
		m.RecordRun(context.Background(), "failed", false, time.Second)
		m.RecordStep(context.Background(), time.Second)
	})
}

func TestCreateExporter(t *testing.T) {
	ctx := context.Background()

	exp, err := CreateExporter(ctx, ExporterConfig{Type: "none"})
	require.NoError(t, err)
	assert.Nil(t, exp)

	exp, err = CreateExporter(ctx, ExporterConfig{Type: "console"})
	require.NoError(t, err)
	assert.NotNil(t, exp)

	exp, err = CreateExporter(ctx, ExporterConfig{Type: "otlp-http", Endpoint: "localhost:4318"})
	require.NoError(t, err)
	assert.NotNil(t, exp)
	_ = exp.Shutdown(ctx)

	_, err = CreateExporter(ctx, ExporterConfig{Type: "zipkin"})
	assert.Error(t, err)

	_, err = CreateExporter(ctx, ExporterConfig{
		Type: "otlp",
		TLS:  TLSConfig{Enabled: true, CACertPath: "/nonexistent/ca.pem"},
	})
	assert.Error(t, err)
}
