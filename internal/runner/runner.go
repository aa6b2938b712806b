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

// Package runner drives a single run: it opens a tracking session,
// optionally resumes a model from a checkpoint artifact, logs one metric
// row per training step and saves a checkpoint every n_checkpoint_steps
// steps.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/tombee/runchain/internal/log"
	"github.com/tombee/runchain/internal/metrics"
	"github.com/tombee/runchain/internal/model"
	"github.com/tombee/runchain/internal/tracing"
	"github.com/tombee/runchain/internal/tracking"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options are the parameters of one run.
type Options struct {
	NMetrics         int
	NSteps           int
	NCheckpointSteps int

	// CheckpointRef, when set, is the checkpoint artifact to resume from.
	CheckpointRef string
}

// Validate checks the options.
func (o Options) Validate() error {
	switch {
	case o.NMetrics < 0:
		return &runchainerrors.ValidationError{Field: "n_metrics", Message: fmt.Sprintf("must be >= 0, got %d", o.NMetrics)}
	case o.NSteps <= 0:
		return &runchainerrors.ValidationError{Field: "n_steps", Message: fmt.Sprintf("must be > 0, got %d", o.NSteps)}
	case o.NCheckpointSteps <= 0:
		return &runchainerrors.ValidationError{Field: "n_checkpoint_steps", Message: fmt.Sprintf("must be > 0, got %d", o.NCheckpointSteps)}
	}
	if o.CheckpointRef != "" {
		if _, err := tracking.ParseArtifactRef(o.CheckpointRef); err != nil {
			return err
		}
	}
	return nil
}

// Progress receives step progress of a run.
type Progress interface {
	Start(runID string, total int)
	Advance()
	Done()
}

type nopProgress struct{}

func (nopProgress) Start(string, int) {}
func (nopProgress) Advance()          {}
func (nopProgress) Done()             {}

// Handle identifies a completed run.
type Handle struct {
	ID      string `json:"id"`
	Entity  string `json:"entity"`
	Project string `json:"project"`

	// Checkpoints is the number of checkpoint versions the run saved.
	Checkpoints int `json:"checkpoints"`

	// Parent is the checkpoint reference the run resumed from, if any.
	Parent      string `json:"parent,omitempty"`
	ParentRunID string `json:"parent_run_id,omitempty"`

	Status tracking.RunStatus `json:"status"`
}

// Namespace returns "<entity>/<project>".
func (h *Handle) Namespace() string {
	return h.Entity + "/" + h.Project
}

// CheckpointRef returns the reference of the run's checkpoint version v.
func (h *Handle) CheckpointRef(v int) string {
	return model.ArtifactRef(h.Entity, h.Project, h.ID, v).String()
}

// Runner runs runs against a tracking store.
type Runner struct {
	store    tracking.Backend
	entity   string
	project  string
	logger   *slog.Logger
	tracer   trace.Tracer
	timings  *tracing.RunMetrics
	progress Progress
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithTracer sets the tracer runs are traced with.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) { r.tracer = tracer }
}

// WithRunMetrics sets the OTel run timing instruments.
func WithRunMetrics(m *tracing.RunMetrics) Option {
	return func(r *Runner) { r.timings = m }
}

// WithProgress sets the progress reporter.
func WithProgress(p Progress) Option {
	return func(r *Runner) { r.progress = p }
}

// New creates a Runner logging into <entity>/<project> of store.
func New(store tracking.Backend, entity, project string, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		entity:   entity,
		project:  project,
		logger:   log.Discard(),
		tracer:   noop.NewTracerProvider().Tracer(""),
		progress: nopProgress{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.WithComponent(r.logger, "runner")
	return r
}

// Run executes one run. All randomness of the run comes from rng.
//
// The tracking session is finished on every path; a run that fails after
// it was created is stored as failed and the error is returned.
func (r *Runner) Run(ctx context.Context, rng *rand.Rand, opts Options) (*Handle, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("run.namespace", r.entity+"/"+r.project),
		attribute.Int("run.n_metrics", opts.NMetrics),
		attribute.Int("run.n_steps", opts.NSteps),
		attribute.Int("run.n_checkpoint_steps", opts.NCheckpointSteps),
		attribute.Bool("run.resumed", opts.CheckpointRef != ""),
	))
	defer span.End()

	started := time.Now()
	handle := &Handle{Entity: r.entity, Project: r.project}

	run, err := tracking.WithSession(ctx, r.store, tracking.InitOptions{
		Entity:  r.entity,
		Project: r.project,
		Config: map[string]any{
			"n_metrics":           opts.NMetrics,
			"n_steps":             opts.NSteps,
			"n_checkpoint_steps":  opts.NCheckpointSteps,
			"checkpoint_artifact": opts.CheckpointRef,
		},
		Logger: r.logger,
	}, func(ctx context.Context, s *tracking.Session) error {
		handle.ID = s.ID()
		span.SetAttributes(attribute.String("run.id", s.ID()))
		return r.train(ctx, rng, s, opts, handle)
	})

	status := string(tracking.StatusFailed)
	if run != nil {
		status = string(run.Status)
	}
	metrics.RecordRun(status)
	r.timings.RecordRun(ctx, status, opts.CheckpointRef != "", time.Since(started))

	if err != nil {
		metrics.RecordTrackingError("run", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	handle.Status = run.Status
	span.SetAttributes(attribute.Int("run.checkpoints", handle.Checkpoints))
	span.SetStatus(codes.Ok, "")
	return handle, nil
}

func (r *Runner) train(ctx context.Context, rng *rand.Rand, s *tracking.Session, opts Options, handle *Handle) error {
	logger := s.Logger()

	// only history is wanted; summaries cost memory on metric-heavy runs
	if err := s.DefineMetric("*", tracking.SummaryNone); err != nil {
		return err
	}

	var (
		m         *model.Model
		beginStep int
	)
	if opts.CheckpointRef == "" {
		m = model.New(rng, opts.NMetrics)
	} else {
		art, err := s.UseArtifact(ctx, opts.CheckpointRef, model.ArtifactType)
		if err != nil {
			return err
		}
		cp, err := model.FromArtifact(art)
		if err != nil {
			return err
		}
		m, err = model.FromCheckpoint(rng, opts.NMetrics, cp)
		if err != nil {
			return fmt.Errorf("resume from %s: %w", art.Ref(), err)
		}
		beginStep = cp.Step
		handle.Parent = art.Ref().String()
		handle.ParentRunID = art.RunID
		metrics.RecordResume()
		logger.Info("resuming from checkpoint",
			slog.String(log.ArtifactKey, handle.Parent),
			slog.Int("begin_step", beginStep))
	}

	r.progress.Start(s.ID(), opts.NSteps)
	defer r.progress.Done()

	for i := 0; i < opts.NSteps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stepStarted := time.Now()

		values, err := m.TrainStep(i, opts.NSteps, beginStep)
		if err != nil {
			return err
		}
		if err := s.Log(ctx, values); err != nil {
			return err
		}
		metrics.RecordStep()

		if (i+1)%opts.NCheckpointSteps == 0 {
			if err := r.saveCheckpoint(ctx, s, m); err != nil {
				return err
			}
			handle.Checkpoints++
		}

		r.timings.RecordStep(ctx, time.Since(stepStarted))
		r.progress.Advance()
	}

	return nil
}

func (r *Runner) saveCheckpoint(ctx context.Context, s *tracking.Session, m *model.Model) error {
	cp, err := m.Checkpoint()
	if err != nil {
		return err
	}
	art, err := model.NewArtifact(s.ID(), cp)
	if err != nil {
		return err
	}
	if _, err := s.LogArtifact(ctx, art); err != nil {
		return err
	}
	metrics.RecordCheckpoint()
	s.Logger().Debug("checkpoint saved",
		slog.String(log.ArtifactKey, art.Ref().String()),
		slog.Int(log.StepKey, cp.Step))
	return nil
}

// Lookup returns the handle of an existing run in the runner's store.
func (r *Runner) Lookup(ctx context.Context, id string) (*Handle, error) {
	run, err := r.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	arts, err := r.store.ListArtifacts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list artifacts of run %s: %w", id, err)
	}

	h := &Handle{
		ID:          run.ID,
		Entity:      run.Entity,
		Project:     run.Project,
		Parent:      run.ParentArtifact,
		ParentRunID: run.ParentRunID,
		Status:      run.Status,
	}
	for _, art := range arts {
		if art.Type == model.ArtifactType && art.Name == model.ArtifactName(run.ID) {
			h.Checkpoints++
		}
	}
	return h, nil
}
