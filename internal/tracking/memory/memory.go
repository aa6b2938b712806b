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

// Package memory provides an in-memory tracking backend.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/tombee/runchain/internal/tracking"
)

var _ tracking.Backend = (*Backend)(nil)

type artifactKey struct {
	entity, project, name string
}

// Backend is an in-memory tracking backend. Stored values are copied on
// the way in and out so callers cannot mutate stored state.
type Backend struct {
	mu        sync.RWMutex
	runs      map[string]*tracking.Run
	order     []string
	history   map[string][]*tracking.HistoryRow
	artifacts map[artifactKey][]*tracking.Artifact
	produced  map[string][]*tracking.Artifact
	uses      map[string][]tracking.ArtifactRef
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{
		runs:      make(map[string]*tracking.Run),
		history:   make(map[string][]*tracking.HistoryRow),
		artifacts: make(map[artifactKey][]*tracking.Artifact),
		produced:  make(map[string][]*tracking.Artifact),
		uses:      make(map[string][]tracking.ArtifactRef),
	}
}

func copyRun(run *tracking.Run) *tracking.Run {
	c := *run
	c.Config = maps.Clone(run.Config)
	c.Summary = maps.Clone(run.Summary)
	return &c
}

func copyArtifact(art *tracking.Artifact) *tracking.Artifact {
	c := *art
	c.Metadata = maps.Clone(art.Metadata)
	c.Files = make(map[string][]byte, len(art.Files))
	for name, data := range art.Files {
		c.Files[name] = append([]byte(nil), data...)
	}
	return &c
}

// CreateRun creates a new run.
func (b *Backend) CreateRun(ctx context.Context, run *tracking.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.ID]; exists {
		return fmt.Errorf("run already exists: %s", run.ID)
	}

	run.CreatedAt = time.Now().UTC()
	run.UpdatedAt = run.CreatedAt
	b.runs[run.ID] = copyRun(run)
	b.order = append(b.order, run.ID)
	return nil
}

// GetRun retrieves a run by ID.
func (b *Backend) GetRun(ctx context.Context, id string) (*tracking.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, exists := b.runs[id]
	if !exists {
		return nil, tracking.NotFound("run", id)
	}
	return copyRun(run), nil
}

// UpdateRun updates an existing run.
func (b *Backend) UpdateRun(ctx context.Context, run *tracking.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.ID]; !exists {
		return tracking.NotFound("run", run.ID)
	}

	run.UpdatedAt = time.Now().UTC()
	b.runs[run.ID] = copyRun(run)
	return nil
}

// ListRuns lists runs in creation order.
func (b *Backend) ListRuns(ctx context.Context, filter tracking.RunFilter) ([]*tracking.Run, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*tracking.Run
	for _, id := range b.order {
		run := b.runs[id]
		if !filter.Matches(run) {
			continue
		}
		result = append(result, copyRun(run))
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// AppendHistory stores one history row.
func (b *Backend) AppendHistory(ctx context.Context, row *tracking.HistoryRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[row.RunID]; !exists {
		return tracking.NotFound("run", row.RunID)
	}

	c := *row
	c.Values = maps.Clone(row.Values)
	b.history[row.RunID] = append(b.history[row.RunID], &c)
	return nil
}

// ListHistory returns a run's history rows in step order.
func (b *Backend) ListHistory(ctx context.Context, runID string) ([]*tracking.HistoryRow, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows := b.history[runID]
	result := make([]*tracking.HistoryRow, len(rows))
	for i, row := range rows {
		c := *row
		c.Values = maps.Clone(row.Values)
		result[i] = &c
	}
	return result, nil
}

// SaveArtifact stores the next version of an artifact.
func (b *Backend) SaveArtifact(ctx context.Context, art *tracking.Artifact) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[art.RunID]; !exists {
		return tracking.NotFound("run", art.RunID)
	}

	key := artifactKey{art.Entity, art.Project, art.Name}
	art.Version = len(b.artifacts[key])
	art.CreatedAt = time.Now().UTC()

	stored := copyArtifact(art)
	b.artifacts[key] = append(b.artifacts[key], stored)
	b.produced[art.RunID] = append(b.produced[art.RunID], stored)
	return nil
}

// GetArtifact resolves a reference to a stored artifact version.
func (b *Backend) GetArtifact(ctx context.Context, ref tracking.ArtifactRef) (*tracking.Artifact, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	versions := b.artifacts[artifactKey{ref.Entity, ref.Project, ref.Name}]
	if ref.Latest && len(versions) > 0 {
		return copyArtifact(versions[len(versions)-1]), nil
	}
	if ref.Latest || ref.Version >= len(versions) {
		return nil, tracking.NotFound("artifact", ref.String())
	}
	return copyArtifact(versions[ref.Version]), nil
}

// ListArtifacts returns the artifacts produced by a run.
func (b *Backend) ListArtifacts(ctx context.Context, runID string) ([]*tracking.Artifact, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	produced := b.produced[runID]
	result := make([]*tracking.Artifact, len(produced))
	for i, art := range produced {
		result[i] = copyArtifact(art)
	}
	return result, nil
}

// RecordArtifactUse records that runID used art.
func (b *Backend) RecordArtifactUse(ctx context.Context, runID string, art *tracking.Artifact) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[runID]; !exists {
		return tracking.NotFound("run", runID)
	}
	b.uses[runID] = append(b.uses[runID], art.Ref())
	return nil
}

// ListArtifactUses returns the artifacts runID used.
func (b *Backend) ListArtifactUses(ctx context.Context, runID string) ([]tracking.ArtifactRef, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]tracking.ArtifactRef(nil), b.uses[runID]...), nil
}

// Close closes the backend.
func (b *Backend) Close() error {
	return nil
}
