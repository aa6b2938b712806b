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

// Package metrics holds the Prometheus counters of the run and chain
// drivers. They register on the default registry and are served by
// "runchain chain --metrics-addr".
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runchain_runs_total",
			Help: "Total runs completed by final status",
		},
		[]string{"status"},
	)

	stepsLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runchain_steps_logged_total",
			Help: "Total metric rows logged across all runs",
		},
	)

	checkpointsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runchain_checkpoints_saved_total",
			Help: "Total checkpoint artifacts saved",
		},
	)

	resumesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "runchain_resumes_total",
			Help: "Total runs resumed from a checkpoint",
		},
	)

	trackingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runchain_tracking_errors_total",
			Help: "Total tracking store errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)
)

// RecordRun counts a finished run with status "finished" or "failed".
func RecordRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// RecordStep counts one logged step.
func RecordStep() {
	stepsLogged.Inc()
}

// RecordCheckpoint counts one saved checkpoint.
func RecordCheckpoint() {
	checkpointsSaved.Inc()
}

// RecordResume counts a run that resumed from a checkpoint.
func RecordResume() {
	resumesTotal.Inc()
}

// RecordTrackingError counts a failed tracking call. The error type is
// derived from err.
func RecordTrackingError(operation string, err error) {
	trackingErrors.WithLabelValues(operation, ErrorType(err)).Inc()
}

// ErrorType classifies err for the error_type label.
func ErrorType(err error) string {
	var (
		notFound   *runchainerrors.NotFoundError
		validation *runchainerrors.ValidationError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &validation):
		return "validation"
	default:
		return "unknown"
	}
}
