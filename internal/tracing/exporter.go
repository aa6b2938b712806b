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
	"fmt"

	"github.com/tombee/runchain/internal/tracing/export"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// CreateExporter creates a span exporter from configuration. It returns a
// nil exporter for type "none".
func CreateExporter(ctx context.Context, cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil

	case "console":
		return export.NewConsoleExporter(export.ConsoleConfig{PrettyPrint: true})

	case "otlp", "otlp-http", "otlp_http":
		tlsConfig, err := export.BuildTLSConfig(export.TLSConfigInput{
			Enabled:           cfg.TLS.Enabled,
			VerifyCertificate: cfg.TLS.VerifyCertificate,
			CACertPath:        cfg.TLS.CACertPath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config for %s exporter: %w", cfg.Type, err)
		}
		otlpCfg := export.OTLPConfig{
			Endpoint:  cfg.Endpoint,
			Insecure:  !cfg.TLS.Enabled,
			TLSConfig: tlsConfig,
			Headers:   cfg.Headers,
		}
		if cfg.Type == "otlp" {
			return export.NewOTLPExporter(ctx, otlpCfg)
		}
		return export.NewOTLPHTTPExporter(ctx, otlpCfg)

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.Type)
	}
}
