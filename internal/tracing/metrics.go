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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RunMetrics records run timings through the OTel meter.
type RunMetrics struct {
	runDuration  metric.Float64Histogram
	stepDuration metric.Float64Histogram
}

// NewRunMetrics creates the run instruments on meterProvider.
func NewRunMetrics(meterProvider metric.MeterProvider) (*RunMetrics, error) {
	meter := meterProvider.Meter("runchain")

	runDuration, err := meter.Float64Histogram(
		"runchain_run_duration_seconds",
		metric.WithDescription("Run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	stepDuration, err := meter.Float64Histogram(
		"runchain_step_duration_seconds",
		metric.WithDescription("Duration of one training step, including logging"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{runDuration: runDuration, stepDuration: stepDuration}, nil
}

// RecordRun records a finished run. A nil RunMetrics records nothing.
func (m *RunMetrics) RecordRun(ctx context.Context, status string, resumed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("status", status),
		attribute.Bool("resumed", resumed),
	))
}

// RecordStep records one step's duration.
func (m *RunMetrics) RecordStep(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.Record(ctx, d.Seconds())
}
