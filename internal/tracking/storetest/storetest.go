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

// Package storetest holds the behaviour tests every tracking.Backend
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/runchain/internal/tracking"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// Run runs the suite against backends produced by newBackend. Each
// subtest gets a fresh backend.
func Run(t *testing.T, newBackend func(t *testing.T) tracking.Backend) {
	t.Run("RunLifecycle", func(t *testing.T) { testRunLifecycle(t, newBackend(t)) })
	t.Run("ListRunsFilterAndOrder", func(t *testing.T) { testListRuns(t, newBackend(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newBackend(t)) })
	t.Run("ArtifactVersions", func(t *testing.T) { testArtifactVersions(t, newBackend(t)) })
	t.Run("ArtifactUses", func(t *testing.T) { testArtifactUses(t, newBackend(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newBackend(t)) })
}

func createRun(t *testing.T, b tracking.Backend, id, project string) *tracking.Run {
	t.Helper()
	run := &tracking.Run{
		ID:      id,
		Entity:  "local",
		Project: project,
		Status:  tracking.StatusRunning,
		Config:  map[string]any{"n_steps": float64(10)},
	}
	require.NoError(t, b.CreateRun(context.Background(), run))
	return run
}

func testRunLifecycle(t *testing.T, b tracking.Backend) {
	ctx := context.Background()
	run := createRun(t, b, "run00001", "demo")
	assert.False(t, run.CreatedAt.IsZero())

	got, err := b.GetRun(ctx, "run00001")
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusRunning, got.Status)
	assert.Equal(t, "local/demo", got.Namespace())
	assert.Equal(t, float64(10), got.Config["n_steps"])

	got.Status = tracking.StatusFinished
	got.HistoryLen = 3
	got.Summary = map[string]float64{"metric0": 1.5}
	got.ParentRunID = "parent01"
	got.ParentArtifact = "local/demo/run-parent01-checkpoint:v1"
	require.NoError(t, b.UpdateRun(ctx, got))

	again, err := b.GetRun(ctx, "run00001")
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFinished, again.Status)
	assert.Equal(t, 3, again.HistoryLen)
	assert.Equal(t, 1.5, again.Summary["metric0"])
	assert.Equal(t, "parent01", again.ParentRunID)
	assert.Equal(t, "local/demo/run-parent01-checkpoint:v1", again.ParentArtifact)

	assert.Error(t, b.CreateRun(ctx, &tracking.Run{ID: "run00001", Entity: "local", Project: "demo", Status: tracking.StatusRunning}),
		"duplicate run IDs must be rejected")
}

func testListRuns(t *testing.T, b tracking.Backend) {
	ctx := context.Background()
	createRun(t, b, "a", "demo")
	createRun(t, b, "b", "other")
	createRun(t, b, "c", "demo")

	runs, err := b.ListRuns(ctx, tracking.RunFilter{Project: "demo"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ID)
	assert.Equal(t, "c", runs[1].ID)

	runs, err = b.ListRuns(ctx, tracking.RunFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[1].ID)

	runs, err = b.ListRuns(ctx, tracking.RunFilter{Status: tracking.StatusFailed})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func testHistory(t *testing.T, b tracking.Backend) {
	ctx := context.Background()
	createRun(t, b, "h", "demo")

	for step := 0; step < 5; step++ {
		require.NoError(t, b.AppendHistory(ctx, &tracking.HistoryRow{
			RunID:  "h",
			Step:   step,
			Values: map[string]float64{"metric0": float64(step) * 0.5, "metric1": -float64(step)},
		}))
	}

	rows, err := b.ListHistory(ctx, "h")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, i, row.Step)
		assert.Equal(t, float64(i)*0.5, row.Values["metric0"])
		assert.Equal(t, -float64(i), row.Values["metric1"])
	}

	rows, err = b.ListHistory(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func saveCheckpoint(t *testing.T, b tracking.Backend, runID string, payload string) *tracking.Artifact {
	t.Helper()
	art := &tracking.Artifact{
		Entity:   "local",
		Project:  "demo",
		Name:     "run-" + runID + "-checkpoint",
		Type:     "checkpoint",
		RunID:    runID,
		Metadata: map[string]any{"run_step": float64(len(payload))},
		Files:    map[string][]byte{"checkpoint.json": []byte(payload)},
	}
	require.NoError(t, b.SaveArtifact(context.Background(), art))
	return art
}

func testArtifactVersions(t *testing.T, b tracking.Backend) {
	ctx := context.Background()
	createRun(t, b, "p", "demo")

	first := saveCheckpoint(t, b, "p", `{"step":4}`)
	second := saveCheckpoint(t, b, "p", `{"step":9}`)
	assert.Equal(t, 0, first.Version)
	assert.Equal(t, 1, second.Version)

	got, err := b.GetArtifact(ctx, tracking.ArtifactRef{Entity: "local", Project: "demo", Name: "run-p-checkpoint", Version: 0})
	require.NoError(t, err)
	assert.Equal(t, "checkpoint", got.Type)
	assert.Equal(t, "p", got.RunID)
	assert.Equal(t, float64(len(`{"step":4}`)), got.Metadata["run_step"])
	data, err := got.File("checkpoint.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":4}`, string(data))

	latest, err := b.GetArtifact(ctx, tracking.ArtifactRef{Entity: "local", Project: "demo", Name: "run-p-checkpoint", Latest: true})
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Version)

	produced, err := b.ListArtifacts(ctx, "p")
	require.NoError(t, err)
	require.Len(t, produced, 2)
	assert.Equal(t, 0, produced[0].Version)
	assert.Equal(t, 1, produced[1].Version)
}

func testArtifactUses(t *testing.T, b tracking.Backend) {
	ctx := context.Background()
	createRun(t, b, "parent", "demo")
	createRun(t, b, "child", "demo")
	art := saveCheckpoint(t, b, "parent", `{}`)

	require.NoError(t, b.RecordArtifactUse(ctx, "child", art))

	uses, err := b.ListArtifactUses(ctx, "child")
	require.NoError(t, err)
	require.Len(t, uses, 1)
	assert.Equal(t, "local/demo/run-parent-checkpoint:v0", uses[0].String())

	uses, err = b.ListArtifactUses(ctx, "parent")
	require.NoError(t, err)
	assert.Empty(t, uses)
}

func testNotFound(t *testing.T, b tracking.Backend) {
	ctx := context.Background()

	_, err := b.GetRun(ctx, "missing")
	assertNotFound(t, err, "run")

	err = b.UpdateRun(ctx, &tracking.Run{ID: "missing", Status: tracking.StatusFinished})
	assertNotFound(t, err, "run")

	_, err = b.GetArtifact(ctx, tracking.ArtifactRef{Entity: "local", Project: "demo", Name: "nope", Version: 3})
	assertNotFound(t, err, "artifact")

	_, err = b.GetArtifact(ctx, tracking.ArtifactRef{Entity: "local", Project: "demo", Name: "nope", Latest: true})
	assertNotFound(t, err, "artifact")
}

func assertNotFound(t *testing.T, err error, resource string) {
	t.Helper()
	var nf *runchainerrors.NotFoundError
	if assert.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err) {
		assert.Equal(t, resource, nf.Resource)
	}
}
