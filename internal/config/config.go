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

// Package config loads runchain configuration from a YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the config file, then
// environment variables. Command-line flags are applied by the commands.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/runchain/internal/tracing"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Tracking backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config represents the complete runchain configuration.
type Config struct {
	Tracking      TrackingConfig      `yaml:"tracking"`
	Defaults      RunDefaults         `yaml:"defaults"`
	Log           LogConfig           `yaml:"log"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// TrackingConfig selects the tracking store and the namespace runs are
// logged into.
type TrackingConfig struct {
	// Backend is "sqlite" (default) or "memory". A memory store lives only
	// for one command.
	Backend string `yaml:"backend"`

	// Path is the SQLite database file.
	Path string `yaml:"path,omitempty"`

	// WAL enables SQLite write-ahead logging.
	WAL bool `yaml:"wal"`

	Entity  string `yaml:"entity"`
	Project string `yaml:"project"`
}

// RunDefaults are the defaults of the run and chain flags.
type RunDefaults struct {
	NMetrics         int `yaml:"n_metrics"`
	NSteps           int `yaml:"n_steps"`
	NCheckpointSteps int `yaml:"n_checkpoint_steps"`
	NRuns            int `yaml:"n_runs"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`

	AddSource bool `yaml:"add_source"`
}

// ObservabilityConfig configures tracing and the metrics endpoint.
type ObservabilityConfig struct {
	// SampleRate is the fraction of runs traced (0.0 - 1.0).
	SampleRate float64 `yaml:"sample_rate"`

	// Exporter is where spans go; type "none" disables export.
	Exporter tracing.ExporterConfig `yaml:"exporter"`

	// MetricsAddr, when set, serves /metrics during "runchain chain".
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tracking: TrackingConfig{
			Backend: BackendSQLite,
			Path:    filepath.Join(DataDir(), "runchain.db"),
			WAL:     true,
			Entity:  "local",
			Project: "runchain-demo",
		},
		Defaults: RunDefaults{
			NMetrics:         20,
			NSteps:           100,
			NCheckpointSteps: 50,
			NRuns:            10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			SampleRate: 1.0,
			Exporter:   tracing.ExporterConfig{Type: "none"},
		},
	}
}

// Load builds the configuration. If configPath is empty the default
// config file is read when it exists.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	explicit := configPath != ""
	if !explicit {
		if p, err := ConfigPath(); err == nil {
			configPath = p
		}
	}

	if configPath != "" {
		err := cfg.loadFromFile(configPath)
		if err != nil && (explicit || !errors.Is(err, fs.ErrNotExist)) {
			return nil, &runchainerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	path, err := expandHome(path)
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Tracking.Backend == "" {
		c.Tracking.Backend = defaults.Tracking.Backend
	}
	if c.Tracking.Path == "" {
		c.Tracking.Path = defaults.Tracking.Path
	}
	if c.Tracking.Entity == "" {
		c.Tracking.Entity = defaults.Tracking.Entity
	}
	if c.Tracking.Project == "" {
		c.Tracking.Project = defaults.Tracking.Project
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Observability.Exporter.Type == "" {
		c.Observability.Exporter.Type = "none"
	}
}

// loadFromEnv applies environment overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("RUNCHAIN_ENTITY"); val != "" {
		c.Tracking.Entity = val
	}
	if val := os.Getenv("RUNCHAIN_PROJECT"); val != "" {
		c.Tracking.Project = val
	}
	if val := os.Getenv("RUNCHAIN_DB"); val != "" {
		c.Tracking.Path = val
	}
	if val := os.Getenv("RUNCHAIN_BACKEND"); val != "" {
		c.Tracking.Backend = strings.ToLower(val)
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}

	if val := os.Getenv("RUNCHAIN_TRACE_EXPORTER"); val != "" {
		c.Observability.Exporter.Type = strings.ToLower(val)
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Observability.Exporter.Endpoint = val
	}
}

// Validate checks the configuration and returns a ConfigError for the
// first problem found.
func (c *Config) Validate() error {
	invalid := func(key, format string, args ...any) error {
		return &runchainerrors.ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
	}

	switch c.Tracking.Backend {
	case BackendSQLite:
		if c.Tracking.Path == "" {
			return invalid("tracking.path", "required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return invalid("tracking.backend", "must be sqlite or memory, got %q", c.Tracking.Backend)
	}

	for key, value := range map[string]string{"tracking.entity": c.Tracking.Entity, "tracking.project": c.Tracking.Project} {
		if value == "" || strings.ContainsAny(value, "/:") {
			return invalid(key, "must be non-empty and contain no '/' or ':', got %q", value)
		}
	}

	d := c.Defaults
	switch {
	case d.NMetrics < 0:
		return invalid("defaults.n_metrics", "must be >= 0, got %d", d.NMetrics)
	case d.NSteps <= 0:
		return invalid("defaults.n_steps", "must be > 0, got %d", d.NSteps)
	case d.NCheckpointSteps <= 0:
		return invalid("defaults.n_checkpoint_steps", "must be > 0, got %d", d.NCheckpointSteps)
	case d.NRuns < 0:
		return invalid("defaults.n_runs", "must be >= 0, got %d", d.NRuns)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", "must be text or json, got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return invalid("log.level", "unknown level %q", c.Log.Level)
	}

	if r := c.Observability.SampleRate; r < 0 || r > 1 {
		return invalid("observability.sample_rate", "must be between 0 and 1, got %v", r)
	}
	switch c.Observability.Exporter.Type {
	case "none", "console":
	case "otlp", "otlp-http", "otlp_http":
		if c.Observability.Exporter.Endpoint == "" {
			return invalid("observability.exporter.endpoint", "required for exporter %s", c.Observability.Exporter.Type)
		}
	default:
		return invalid("observability.exporter.type", "unknown exporter %q", c.Observability.Exporter.Type)
	}

	return nil
}

// TracingConfig converts the observability settings for tracing.NewProvider.
func (c *Config) TracingConfig(version string) tracing.Config {
	tc := tracing.DefaultConfig()
	tc.ServiceVersion = version
	tc.SampleRate = c.Observability.SampleRate
	tc.Exporter = c.Observability.Exporter
	return tc
}
