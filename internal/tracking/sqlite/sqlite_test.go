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

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/runchain/internal/tracking"
	"github.com/tombee/runchain/internal/tracking/storetest"
)

// createTestBackend creates a SQLite backend in a temporary directory.
func createTestBackend(t *testing.T) (*Backend, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "nested", "runchain.db")
	be, err := New(Config{Path: dbPath, WAL: true})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	t.Cleanup(func() { be.Close() })

	return be, dbPath
}

func TestBackend(t *testing.T) {
	storetest.Run(t, func(t *testing.T) tracking.Backend {
		be, _ := createTestBackend(t)
		return be
	})
}

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	be, path := createTestBackend(t)

	run := &tracking.Run{ID: "persist1", Entity: "local", Project: "demo", Status: tracking.StatusRunning}
	require.NoError(t, be.CreateRun(ctx, run))
	require.NoError(t, be.AppendHistory(ctx, &tracking.HistoryRow{RunID: "persist1", Step: 0, Values: map[string]float64{"metric0": 0.25}}))
	art := &tracking.Artifact{Entity: "local", Project: "demo", Name: "run-persist1-checkpoint", Type: "checkpoint",
		RunID: "persist1", Files: map[string][]byte{"checkpoint.json": []byte(`{"step":0}`)}}
	require.NoError(t, be.SaveArtifact(ctx, art))
	require.NoError(t, be.Close())

	reopened, err := New(Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, "persist1")
	require.NoError(t, err)
	assert.Equal(t, "local/demo", got.Namespace())

	rows, err := reopened.ListHistory(ctx, "persist1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.25, rows[0].Values["metric0"])

	stored, err := reopened.GetArtifact(ctx, tracking.ArtifactRef{Entity: "local", Project: "demo", Name: "run-persist1-checkpoint"})
	require.NoError(t, err)
	assert.Equal(t, `{"step":0}`, string(stored.Files["checkpoint.json"]))
}

func TestBackend_HistoryRequiresRun(t *testing.T) {
	be, _ := createTestBackend(t)

	err := be.AppendHistory(context.Background(), &tracking.HistoryRow{RunID: "ghost", Step: 0, Values: map[string]float64{}})
	assert.Error(t, err, "foreign key must reject rows for unknown runs")
}
