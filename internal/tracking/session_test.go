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

package tracking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/runchain/internal/tracking"
	"github.com/tombee/runchain/internal/tracking/memory"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

func newSession(t *testing.T, store tracking.Backend) *tracking.Session {
	t.Helper()
	s, err := tracking.Init(context.Background(), store, tracking.InitOptions{
		Entity:  "local",
		Project: "demo",
		Config:  map[string]any{"n_steps": 3},
	})
	require.NoError(t, err)
	return s
}

func TestNewRunID(t *testing.T) {
	a, b := tracking.NewRunID(), tracking.NewRunID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestInit_ValidatesNamespace(t *testing.T) {
	store := memory.New()
	tests := []struct {
		name    string
		entity  string
		project string
	}{
		{"empty entity", "", "demo"},
		{"empty project", "local", ""},
		{"slash in project", "local", "a/b"},
		{"colon in entity", "lo:cal", "demo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracking.Init(context.Background(), store, tracking.InitOptions{Entity: tt.entity, Project: tt.project})
			var verr *runchainerrors.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestSession_LogAssignsSteps(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := newSession(t, store)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Log(ctx, map[string]float64{"metric0": float64(i)}))
	}
	require.NoError(t, s.Finish(ctx, nil))

	rows, err := store.ListHistory(ctx, s.ID())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, i, row.Step)
		assert.Equal(t, float64(i), row.Values["metric0"])
	}

	run, err := store.GetRun(ctx, s.ID())
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFinished, run.Status)
	assert.Equal(t, 3, run.HistoryLen)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, 2.0, run.Summary["metric0"], "default summary keeps the last value")

	assert.Error(t, s.Log(ctx, map[string]float64{"metric0": 9}), "logging after finish must fail")
}

func TestSession_DefineMetric(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	s := newSession(t, store)

	require.NoError(t, s.DefineMetric("*", tracking.SummaryNone))
	require.NoError(t, s.DefineMetric("loss*", tracking.SummaryMin))
	require.NoError(t, s.DefineMetric("acc", tracking.SummaryMax))

	for _, v := range []float64{3, 1, 2} {
		require.NoError(t, s.Log(ctx, map[string]float64{"loss_train": v, "acc": v, "metric0": v}))
	}

	summary := s.Run().Summary
	assert.Equal(t, 1.0, summary["loss_train"])
	assert.Equal(t, 3.0, summary["acc"])
	assert.NotContains(t, summary, "metric0")

	assert.Error(t, s.DefineMetric("[", tracking.SummaryLast))
	assert.Error(t, s.DefineMetric("x", tracking.SummaryMode("mean")))
}

func TestSession_ArtifactLineage(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	parent := newSession(t, store)
	for v := 0; v < 2; v++ {
		art, err := parent.LogArtifact(ctx, &tracking.Artifact{
			Name:  "run-" + parent.ID() + "-checkpoint",
			Type:  "checkpoint",
			Files: map[string][]byte{"checkpoint.json": []byte("{}")},
		})
		require.NoError(t, err)
		assert.Equal(t, v, art.Version)
		assert.Equal(t, "local", art.Entity)
		assert.Equal(t, parent.ID(), art.RunID)
	}
	require.NoError(t, parent.Finish(ctx, nil))

	child := newSession(t, store)
	ref := "local/demo/run-" + parent.ID() + "-checkpoint:v0"
	art, err := child.UseArtifact(ctx, ref, "checkpoint")
	require.NoError(t, err)
	assert.Equal(t, 0, art.Version)

	// a second use does not replace the parent
	_, err = child.UseArtifact(ctx, "run-"+parent.ID()+"-checkpoint", "checkpoint")
	require.NoError(t, err)
	require.NoError(t, child.Finish(ctx, nil))

	run, err := store.GetRun(ctx, child.ID())
	require.NoError(t, err)
	assert.Equal(t, parent.ID(), run.ParentRunID)
	assert.Equal(t, ref, run.ParentArtifact)

	uses, err := store.ListArtifactUses(ctx, child.ID())
	require.NoError(t, err)
	require.Len(t, uses, 2)
	assert.Equal(t, 1, uses[1].Version, "an alias-less reference resolves to the latest version")
}

func TestSession_UseArtifactErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	producer := newSession(t, store)
	_, err := producer.LogArtifact(ctx, &tracking.Artifact{Name: "weights", Type: "model"})
	require.NoError(t, err)

	s := newSession(t, store)

	_, err = s.UseArtifact(ctx, "weights:v0", "checkpoint")
	var verr *runchainerrors.ValidationError
	assert.True(t, errors.As(err, &verr), "type mismatch must be a validation error")

	_, err = s.UseArtifact(ctx, "weights:v5", "")
	var nf *runchainerrors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	_, err = s.UseArtifact(ctx, "a/b/c/d", "")
	assert.True(t, errors.As(err, &verr))

	_, err = s.LogArtifact(ctx, &tracking.Artifact{Name: "bad:name"})
	assert.Error(t, err)
}

func TestWithSession_MarksFailedRuns(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	boom := errors.New("boom")

	run, err := tracking.WithSession(ctx, store, tracking.InitOptions{Entity: "local", Project: "demo"},
		func(ctx context.Context, s *tracking.Session) error {
			require.NoError(t, s.Log(ctx, map[string]float64{"metric0": 1}))
			return boom
		})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, run)
	assert.Equal(t, tracking.StatusFailed, run.Status)
	assert.Equal(t, "boom", run.Error)

	stored, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFailed, stored.Status)
	assert.Equal(t, 1, stored.HistoryLen)
}

func TestWithSession_FinalizesOnPanic(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	var id string
	assert.Panics(t, func() {
		_, _ = tracking.WithSession(ctx, store, tracking.InitOptions{Entity: "local", Project: "demo"},
			func(ctx context.Context, s *tracking.Session) error {
				id = s.ID()
				panic("exploded")
			})
	})

	stored, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tracking.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "exploded")
}

func TestWithSession_FinalizesAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memory.New()

	run, err := tracking.WithSession(ctx, store, tracking.InitOptions{Entity: "local", Project: "demo"},
		func(ctx context.Context, s *tracking.Session) error {
			cancel()
			return ctx.Err()
		})
	require.ErrorIs(t, err, context.Canceled)

	stored, gerr := store.GetRun(context.Background(), run.ID)
	require.NoError(t, gerr)
	assert.Equal(t, tracking.StatusFailed, stored.Status)
}
