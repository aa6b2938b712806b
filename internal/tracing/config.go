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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds observability configuration.
type Config struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// SampleRate is the fraction of runs traced (0.0 - 1.0).
	SampleRate float64

	// Exporter configures where spans are sent.
	Exporter ExporterConfig

	// BatchInterval is how often to flush spans (default: 5s).
	BatchInterval time.Duration

	// Registerer receives the OTel metrics collector. Defaults to the
	// Prometheus default registerer, which /metrics serves.
	Registerer prometheus.Registerer
}

// ExporterConfig defines a span export destination.
type ExporterConfig struct {
	// Type is the exporter type: "none", "console", "otlp", or "otlp-http".
	Type string `yaml:"type"`

	// Endpoint is the OTLP receiver address.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Headers are additional headers for authentication.
	Headers map[string]string `yaml:"headers,omitempty"`

	// TLS configures secure connections.
	TLS TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig configures TLS for exporters.
type TLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	VerifyCertificate bool   `yaml:"verify_certificate"`
	CACertPath        string `yaml:"ca_cert_path,omitempty"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "runchain",
		ServiceVersion: "unknown",
		SampleRate:     1.0,
		Exporter:       ExporterConfig{Type: "none"},
		BatchInterval:  5 * time.Second,
	}
}
