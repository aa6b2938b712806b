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

package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tombee/runchain/internal/runner"
	"github.com/tombee/runchain/internal/tracking"
)

func testLineage() *Lineage {
	runs := []*tracking.Run{
		{ID: "aaaaaaaa", Entity: "local", Project: "demo", Status: tracking.StatusFinished},
		{ID: "bbbbbbbb", Entity: "local", Project: "demo", Status: tracking.StatusFinished,
			ParentRunID: "aaaaaaaa", ParentArtifact: "local/demo/run-aaaaaaaa-checkpoint:v1"},
		{ID: "cccccccc", Entity: "local", Project: "demo", Status: tracking.StatusFinished,
			ParentRunID: "aaaaaaaa", ParentArtifact: "local/demo/run-aaaaaaaa-checkpoint:v0"},
		{ID: "dddddddd", Entity: "local", Project: "demo", Status: tracking.StatusFailed,
			ParentRunID: "bbbbbbbb", ParentArtifact: "local/demo/run-bbbbbbbb-checkpoint:v0"},
		{ID: "eeeeeeee", Entity: "local", Project: "demo", Status: tracking.StatusFinished,
			ParentRunID: "elsewhere", ParentArtifact: "local/demo/run-elsewhere-checkpoint:v0"},
	}
	return FromRuns(runs, map[string]int{"aaaaaaaa": 2, "bbbbbbbb": 1})
}

func TestFromRuns(t *testing.T) {
	l := testLineage()

	assert.Len(t, l.Nodes, 5)
	assert.Equal(t, 2, l.Nodes[0].Checkpoints)
	assert.Equal(t, 0, l.Nodes[2].Checkpoints)
	assert.Equal(t, "failed", l.Nodes[3].Status)
	assert.Equal(t, "local/demo", l.Nodes[3].Namespace)
}

func TestLineage_Structure(t *testing.T) {
	l := testLineage()

	roots := l.Roots()
	assert.Len(t, roots, 2, "runs whose parent is outside the lineage are roots")
	assert.Equal(t, "aaaaaaaa", roots[0].RunID)
	assert.Equal(t, "eeeeeeee", roots[1].RunID)

	children := l.Children("aaaaaaaa")
	assert.Len(t, children, 2)

	assert.Equal(t, 0, l.Depth("aaaaaaaa"))
	assert.Equal(t, 1, l.Depth("bbbbbbbb"))
	assert.Equal(t, 2, l.Depth("dddddddd"))
	assert.Equal(t, 0, l.Depth("eeeeeeee"))
}

func TestLineage_Tree(t *testing.T) {
	want := "aaaaaaaa\n" +
		"├── bbbbbbbb (from local/demo/run-aaaaaaaa-checkpoint:v1)\n" +
		"│   └── dddddddd (from local/demo/run-bbbbbbbb-checkpoint:v0)\n" +
		"└── cccccccc (from local/demo/run-aaaaaaaa-checkpoint:v0)\n" +
		"eeeeeeee (from local/demo/run-elsewhere-checkpoint:v0)\n"

	assert.Equal(t, want, testLineage().Tree())
}

func TestLineageAdd_KeepsHandleStatus(t *testing.T) {
	l := &Lineage{}
	l.add(&runner.Handle{ID: "aaaaaaaa", Entity: "local", Project: "demo", Checkpoints: 1, Status: tracking.StatusFailed}, "")
	l.add(&runner.Handle{ID: "bbbbbbbb", Entity: "local", Project: "demo", Status: tracking.StatusFinished,
		Parent: "local/demo/run-aaaaaaaa-checkpoint:v0"}, "aaaaaaaa")

	if assert.Len(t, l.Nodes, 2) {
		assert.Equal(t, "failed", l.Nodes[0].Status)
		assert.Equal(t, "finished", l.Nodes[1].Status)
		assert.Equal(t, "aaaaaaaa", l.Nodes[1].ParentRunID)
	}
}
