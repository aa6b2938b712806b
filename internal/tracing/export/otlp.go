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

// Package export builds OpenTelemetry span exporters for run traces.
package export

import (
	"context"
	"crypto/tls"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials"
)

// OTLPConfig holds configuration for the OTLP exporters.
type OTLPConfig struct {
	// Endpoint is host:port of the collector (e.g. "localhost:4317").
	Endpoint string

	// Insecure disables TLS.
	Insecure bool

	// TLSConfig overrides the default TLS 1.2+ client configuration.
	TLSConfig *tls.Config

	// Headers are sent with every export request.
	Headers map[string]string
}

func (c OTLPConfig) tlsConfig() (*tls.Config, error) {
	if c.TLSConfig == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}
	if err := ValidateTLSConfig(c.TLSConfig); err != nil {
		return nil, fmt.Errorf("invalid TLS config: %w", err)
	}
	return c.TLSConfig, nil
}

// NewOTLPExporter creates an OTLP gRPC span exporter.
func NewOTLPExporter(ctx context.Context, cfg OTLPConfig) (trace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}

	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		tlsCfg, err := cfg.tlsConfig()
		if err != nil {
			return nil, err
		}
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(tlsCfg)))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}
	return exporter, nil
}
