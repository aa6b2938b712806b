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

package shared

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/config"
	"github.com/tombee/runchain/internal/log"
	"github.com/tombee/runchain/internal/tracing"
	"github.com/tombee/runchain/internal/tracking"
	"github.com/tombee/runchain/internal/tracking/memory"
	"github.com/tombee/runchain/internal/tracking/sqlite"
)

// metricsRegisterer receives the OTel Prometheus collector. Nil means the
// default registry.
var metricsRegisterer prometheus.Registerer

// SetRegistererForTest makes telemetry register into reg, so several
// commands can run in one test binary.
func SetRegistererForTest(reg prometheus.Registerer) {
	metricsRegisterer = reg
}

// Env is what a command needs to talk to the tracking store.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	Store  tracking.Backend
}

// Setup loads the configuration, builds the logger from it and the global
// flags, and opens the tracking store. Callers must Close the Env.
func Setup(cmd *cobra.Command) (*Env, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewInvalidInputError("failed to load configuration", err)
	}

	logCfg := &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		Output:    cmd.ErrOrStderr(),
		AddSource: cfg.Log.AddSource,
	}
	switch {
	case GetVerbose():
		logCfg.Level = "debug"
	case GetQuiet():
		logCfg.Level = "error"
	}
	logger := log.New(logCfg)

	store, err := OpenStore(cfg.Tracking)
	if err != nil {
		return nil, NewExecutionError("failed to open tracking store", err)
	}
	logger.Debug("tracking store opened",
		slog.String("backend", cfg.Tracking.Backend),
		slog.String("path", cfg.Tracking.Path))

	return &Env{Config: cfg, Logger: logger, Store: store}, nil
}

// OpenStore opens the backend named by cfg.
func OpenStore(cfg config.TrackingConfig) (tracking.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return sqlite.New(sqlite.Config{Path: cfg.Path, WAL: cfg.WAL})
	}
}

// Telemetry starts the tracing provider for a command. The returned
// function flushes and stops it.
func (e *Env) Telemetry(ctx context.Context) (*tracing.Provider, func(), error) {
	v, _, _ := GetVersion()
	tc := e.Config.TracingConfig(v)
	tc.Registerer = metricsRegisterer

	provider, err := tracing.NewProvider(ctx, tc)
	if err != nil {
		return nil, nil, NewInvalidInputError("failed to start tracing", err)
	}

	stop := func() {
		// the command context may already be cancelled
		shutdownCtx := context.WithoutCancel(ctx)
		if err := provider.Shutdown(shutdownCtx); err != nil {
			e.Logger.Warn("tracing shutdown failed", log.Error(err))
		}
	}
	return provider, stop, nil
}

// Close releases the tracking store.
func (e *Env) Close() error {
	if e == nil || e.Store == nil {
		return nil
	}
	return e.Store.Close()
}

// IsCancelled reports whether err comes from an interrupted command.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
