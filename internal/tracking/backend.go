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

// Package tracking is a small local experiment tracker: runs, per-step
// metric history, and versioned artifacts with input lineage.
//
// # Interface Hierarchy
//
// Storage is split into segregated interfaces so components can accept
// only what they use:
//
//   - RunStore (core): CreateRun, GetRun, UpdateRun
//   - RunLister: ListRuns
//   - HistoryStore: AppendHistory, ListHistory
//   - ArtifactStore: SaveArtifact, GetArtifact, ListArtifacts,
//     RecordArtifactUse, ListArtifactUses
//
// Backend composes all of them plus io.Closer. The memory and sqlite
// subpackages implement Backend.
//
// Runs are driven through a Session (see Init), which owns the step
// counter, the metric summaries, and finalization of the run record.
package tracking

import (
	"context"
	"io"
	"time"
)

// RunStore is the core interface for run storage operations.
type RunStore interface {
	// CreateRun creates a new run in storage.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// UpdateRun updates an existing run.
	UpdateRun(ctx context.Context, run *Run) error
}

// RunLister lists runs, oldest first.
type RunLister interface {
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)
}

// HistoryStore stores the metric rows a run logs, one per step.
type HistoryStore interface {
	// AppendHistory stores one row. Steps of a run are appended in order.
	AppendHistory(ctx context.Context, row *HistoryRow) error

	// ListHistory returns a run's rows ordered by step.
	ListHistory(ctx context.Context, runID string) ([]*HistoryRow, error)
}

// ArtifactStore stores versioned artifacts and which runs used them.
type ArtifactStore interface {
	// SaveArtifact assigns the next version for the artifact's
	// namespace and name (starting at 0) and stores it.
	SaveArtifact(ctx context.Context, art *Artifact) error

	// GetArtifact resolves a reference to a stored artifact.
	GetArtifact(ctx context.Context, ref ArtifactRef) (*Artifact, error)

	// ListArtifacts returns the artifacts a run produced, oldest first.
	ListArtifacts(ctx context.Context, runID string) ([]*Artifact, error)

	// RecordArtifactUse declares art as an input of run runID.
	RecordArtifactUse(ctx context.Context, runID string, art *Artifact) error

	// ListArtifactUses returns references of the artifacts a run used.
	ListArtifactUses(ctx context.Context, runID string) ([]ArtifactRef, error)
}

// Backend is the full tracking storage interface.
type Backend interface {
	RunStore
	RunLister
	HistoryStore
	ArtifactStore
	io.Closer
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "running"
	StatusFinished RunStatus = "finished"
	StatusFailed   RunStatus = "failed"
)

// Run is a tracked run record.
type Run struct {
	ID      string    `json:"id"`
	Entity  string    `json:"entity"`
	Project string    `json:"project"`
	Status  RunStatus `json:"status"`

	// Config holds the parameters the run was started with.
	Config map[string]any `json:"config,omitempty"`

	// Summary holds one value per metric, as selected by DefineMetric.
	Summary map[string]float64 `json:"summary,omitempty"`

	// HistoryLen is the number of rows logged.
	HistoryLen int `json:"history_len"`

	// ParentRunID is the run whose artifact this run resumed from.
	ParentRunID string `json:"parent_run_id,omitempty"`
	// ParentArtifact is the reference of that artifact.
	ParentArtifact string `json:"parent_artifact,omitempty"`

	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Namespace returns "<entity>/<project>".
func (r *Run) Namespace() string {
	return r.Entity + "/" + r.Project
}

// RunFilter contains filtering options for listing runs.
type RunFilter struct {
	Entity  string
	Project string
	Status  RunStatus
	Limit   int
}

// Matches reports whether run passes the filter's field constraints.
// Limit is applied by the caller.
func (f RunFilter) Matches(run *Run) bool {
	if f.Entity != "" && run.Entity != f.Entity {
		return false
	}
	if f.Project != "" && run.Project != f.Project {
		return false
	}
	if f.Status != "" && run.Status != f.Status {
		return false
	}
	return true
}

// HistoryRow is the set of metric values logged for one step.
type HistoryRow struct {
	RunID     string             `json:"run_id"`
	Step      int                `json:"step"`
	Values    map[string]float64 `json:"values"`
	CreatedAt time.Time          `json:"created_at"`
}

// Artifact is a typed, versioned set of files produced by a run.
type Artifact struct {
	Entity  string `json:"entity"`
	Project string `json:"project"`
	Name    string `json:"name"`
	Version int    `json:"version"`
	Type    string `json:"type"`

	// RunID is the run that produced the artifact.
	RunID string `json:"run_id"`

	Metadata  map[string]any    `json:"metadata,omitempty"`
	Files     map[string][]byte `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}

// Ref returns the versioned reference of the artifact.
func (a *Artifact) Ref() ArtifactRef {
	return ArtifactRef{
		Entity:  a.Entity,
		Project: a.Project,
		Name:    a.Name,
		Version: a.Version,
	}
}

// File returns the contents of the named file.
func (a *Artifact) File(name string) ([]byte, error) {
	data, ok := a.Files[name]
	if !ok {
		return nil, NotFound("file", a.Ref().String()+"/"+name)
	}
	return data, nil
}
