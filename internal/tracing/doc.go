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

/*
Package tracing sets up OpenTelemetry for runchain commands.

A Provider owns the tracer provider, which samples runs by TraceIDRatio and
batches spans to the configured exporter, and a meter provider whose
instruments are exported through the Prometheus registry. Each run is one
"run" span; RunMetrics records run and step durations.

Exporters:

  - none: spans are sampled but dropped
  - console: pretty-printed JSON on stderr
  - otlp: OTLP over gRPC
  - otlp-http: OTLP over HTTP

# Quick Start

	provider, err := tracing.NewProvider(ctx, tracing.DefaultConfig())
	if err != nil {
	    return err
	}
	defer provider.Shutdown(ctx)

	r := runner.New(store, entity, project,
	    runner.WithTracer(provider.Tracer("runchain/runner")),
	    runner.WithRunMetrics(provider.RunMetrics()))
*/
package tracing
