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
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the OTel tracer and meter providers of the process.
type Provider struct {
	tp      *sdktrace.TracerProvider
	mp      *sdkmetric.MeterProvider
	metrics *RunMetrics
}

// NewProvider builds a provider from cfg. Spans go to the configured
// exporter plus any extra options (tests pass sdktrace.WithSyncer).
func NewProvider(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	// No schema URL, so merging with the default resource cannot conflict
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	allOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}

	exporter, err := CreateExporter(ctx, cfg.Exporter)
	if err != nil {
		return nil, err
	}
	if exporter != nil {
		var batchOpts []sdktrace.BatchSpanProcessorOption
		if cfg.BatchInterval > 0 {
			batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchInterval))
		}
		allOpts = append(allOpts, sdktrace.WithBatcher(exporter, batchOpts...))
	}
	allOpts = append(allOpts, opts...)

	tp := sdktrace.NewTracerProvider(allOpts...)
	otel.SetTracerProvider(tp)

	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)

	metrics, err := NewRunMetrics(mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create run metrics: %w", err)
	}

	return &Provider{tp: tp, mp: mp, metrics: metrics}, nil
}

// Tracer returns a tracer for the given instrumentation scope.
func (p *Provider) Tracer(name string) trace.Tracer {
	return p.tp.Tracer(name)
}

// RunMetrics returns the run instruments.
func (p *Provider) RunMetrics() *RunMetrics {
	return p.metrics
}

// MetricsHandler serves the default Prometheus registry, which holds both
// the promauto counters and the OTel instruments.
func (p *Provider) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ForceFlush exports all pending spans and metrics.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return errors.Join(p.tp.ForceFlush(ctx), p.mp.ForceFlush(ctx))
}

// Shutdown flushes pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.tp.Shutdown(ctx), p.mp.Shutdown(ctx))
}
