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

package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/tombee/runchain/internal/log"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// SummaryMode selects what a run's summary keeps for a metric.
type SummaryMode string

const (
	// SummaryLast keeps the most recently logged value (the default).
	SummaryLast SummaryMode = "last"
	// SummaryMin keeps the smallest logged value.
	SummaryMin SummaryMode = "min"
	// SummaryMax keeps the largest logged value.
	SummaryMax SummaryMode = "max"
	// SummaryNone keeps nothing; only history is stored.
	SummaryNone SummaryMode = "none"
)

type metricDefinition struct {
	pattern string
	summary SummaryMode
}

// InitOptions configures a new run session.
type InitOptions struct {
	Entity  string
	Project string

	// RunID overrides the generated run ID.
	RunID string

	// Config is stored on the run record.
	Config map[string]any

	Logger *slog.Logger
}

// Session is the handle to one active run. It is not safe for concurrent
// use; a run logs its steps sequentially.
type Session struct {
	store    Backend
	run      *Run
	step     int
	defs     []metricDefinition
	logger   *slog.Logger
	calls    *log.CallLogger
	finished bool
}

// NewRunID returns an 8-character run identifier.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Init creates the run record and returns its session. The caller must
// call Finish; WithSession does so on every exit path.
func Init(ctx context.Context, store Backend, opts InitOptions) (*Session, error) {
	for field, value := range map[string]string{"entity": opts.Entity, "project": opts.Project} {
		if value == "" || strings.ContainsAny(value, "/:") {
			return nil, &runchainerrors.ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid %s %q", field, value),
			}
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	id := opts.RunID
	if id == "" {
		id = NewRunID()
	}

	run := &Run{
		ID:        id,
		Entity:    opts.Entity,
		Project:   opts.Project,
		Status:    StatusRunning,
		Config:    maps.Clone(opts.Config),
		Summary:   map[string]float64{},
		StartedAt: time.Now().UTC(),
	}

	s := &Session{
		store:  store,
		run:    run,
		logger: log.WithRunContext(logger, id, run.Namespace()),
	}
	s.calls = log.NewCallLogger(s.logger, slog.LevelDebug)

	if err := s.calls.Do(ctx, "create_run", func() error { return store.CreateRun(ctx, run) }); err != nil {
		return nil, fmt.Errorf("init run: %w", err)
	}

	s.logger.Info("run initialized")
	return s, nil
}

// ID returns the run ID.
func (s *Session) ID() string {
	return s.run.ID
}

// Namespace returns the run's "<entity>/<project>".
func (s *Session) Namespace() string {
	return s.run.Namespace()
}

// Run returns a snapshot of the run record.
func (s *Session) Run() *Run {
	run := *s.run
	run.Config = maps.Clone(s.run.Config)
	run.Summary = maps.Clone(s.run.Summary)
	return &run
}

// Logger returns the session's run-scoped logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// DefineMetric sets how metrics whose name matches pattern are
// summarized. Later definitions take precedence over earlier ones.
func (s *Session) DefineMetric(pattern string, summary SummaryMode) error {
	if !doublestar.ValidatePattern(pattern) {
		return &runchainerrors.ValidationError{
			Field:   "metric pattern",
			Message: fmt.Sprintf("invalid pattern %q", pattern),
		}
	}
	switch summary {
	case SummaryLast, SummaryMin, SummaryMax, SummaryNone:
	default:
		return &runchainerrors.ValidationError{
			Field:   "summary",
			Message: fmt.Sprintf("unknown summary mode %q", summary),
		}
	}

	s.defs = append(s.defs, metricDefinition{pattern: pattern, summary: summary})
	return nil
}

func (s *Session) summaryMode(name string) SummaryMode {
	for i := len(s.defs) - 1; i >= 0; i-- {
		if ok, _ := doublestar.Match(s.defs[i].pattern, name); ok {
			return s.defs[i].summary
		}
	}
	return SummaryLast
}

// Log records values as the next history step.
func (s *Session) Log(ctx context.Context, values map[string]float64) error {
	if s.finished {
		return fmt.Errorf("log: run %s already finished", s.run.ID)
	}

	row := &HistoryRow{
		RunID:     s.run.ID,
		Step:      s.step,
		Values:    maps.Clone(values),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.calls.Do(ctx, "log", func() error { return s.store.AppendHistory(ctx, row) }, slog.Int(log.StepKey, row.Step)); err != nil {
		return fmt.Errorf("log step %d: %w", row.Step, err)
	}

	s.step++
	s.run.HistoryLen = s.step

	for name, v := range values {
		prev, seen := s.run.Summary[name]
		switch s.summaryMode(name) {
		case SummaryLast:
			s.run.Summary[name] = v
		case SummaryMin:
			if !seen || v < prev {
				s.run.Summary[name] = v
			}
		case SummaryMax:
			if !seen || v > prev {
				s.run.Summary[name] = v
			}
		}
	}

	return nil
}

// LogArtifact stores art as an output of this run and returns it with its
// assigned version.
func (s *Session) LogArtifact(ctx context.Context, art *Artifact) (*Artifact, error) {
	if err := ValidateArtifactName(art.Name); err != nil {
		return nil, err
	}

	art.Entity = s.run.Entity
	art.Project = s.run.Project
	art.RunID = s.run.ID

	err := s.calls.Do(ctx, "save_artifact", func() error { return s.store.SaveArtifact(ctx, art) }, slog.String(log.ArtifactKey, art.Name))
	if err != nil {
		return nil, fmt.Errorf("save artifact %s: %w", art.Name, err)
	}

	s.logger.Debug("artifact saved", slog.String(log.ArtifactKey, art.Ref().String()))
	return art, nil
}

// UseArtifact fetches the referenced artifact and declares it an input of
// this run. The first artifact used becomes the run's parent. If typ is
// not empty the artifact must have that type.
func (s *Session) UseArtifact(ctx context.Context, reference, typ string) (*Artifact, error) {
	ref, err := ParseArtifactRef(reference)
	if err != nil {
		return nil, err
	}
	if ref.Entity == "" {
		ref.Entity = s.run.Entity
	}
	if ref.Project == "" {
		ref.Project = s.run.Project
	}

	var art *Artifact
	err = s.calls.Do(ctx, "get_artifact", func() error {
		var err error
		art, err = s.store.GetArtifact(ctx, ref)
		return err
	}, slog.String(log.ArtifactKey, ref.String()))
	if err != nil {
		return nil, fmt.Errorf("use artifact %s: %w", ref, err)
	}

	if typ != "" && art.Type != typ {
		return nil, &runchainerrors.ValidationError{
			Field:   "artifact",
			Message: fmt.Sprintf("%s has type %q, want %q", ref, art.Type, typ),
		}
	}

	if err := s.calls.Do(ctx, "record_use", func() error { return s.store.RecordArtifactUse(ctx, s.run.ID, art) }); err != nil {
		return nil, fmt.Errorf("record use of %s: %w", ref, err)
	}

	if s.run.ParentRunID == "" {
		s.run.ParentRunID = art.RunID
		s.run.ParentArtifact = art.Ref().String()
		if err := s.calls.Do(ctx, "update_run", func() error { return s.store.UpdateRun(ctx, s.run) }); err != nil {
			return nil, fmt.Errorf("set parent of run %s: %w", s.run.ID, err)
		}
	}

	return art, nil
}

// Finish marks the run finished, or failed when runErr is not nil, and
// stores its summary. Calling Finish again is a no-op.
func (s *Session) Finish(ctx context.Context, runErr error) error {
	if s.finished {
		return nil
	}
	s.finished = true

	// the run record must be finalized even when ctx was cancelled
	ctx = context.WithoutCancel(ctx)

	now := time.Now().UTC()
	s.run.FinishedAt = &now
	s.run.Status = StatusFinished
	if runErr != nil {
		s.run.Status = StatusFailed
		s.run.Error = runErr.Error()
	}

	if err := s.calls.Do(ctx, "finish", func() error { return s.store.UpdateRun(ctx, s.run) }); err != nil {
		return fmt.Errorf("finish run %s: %w", s.run.ID, err)
	}

	s.logger.Info("run finished", slog.String("status", string(s.run.Status)), slog.Int("history_len", s.run.HistoryLen))
	return nil
}

// WithSession opens a session, runs fn, and finishes the run whatever fn
// does: returns, fails, or panics. It returns the final run record.
func WithSession(ctx context.Context, store Backend, opts InitOptions, fn func(context.Context, *Session) error) (run *Run, err error) {
	s, err := Init(ctx, store, opts)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = s.Finish(ctx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		if ferr := s.Finish(ctx, err); ferr != nil && err == nil {
			err = ferr
		}
		run = s.Run()
	}()

	return nil, fn(ctx, s)
}
