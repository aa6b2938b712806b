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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/runchain/internal/chain"
	"github.com/tombee/runchain/internal/commands/cmdtest"
	"github.com/tombee/runchain/internal/commands/shared"
)

var smallChain = []string{"--n-metrics", "2", "--n-steps", "6", "--n-checkpoint-steps", "3"}

func chainJSON(t *testing.T, args ...string) *chain.Lineage {
	t.Helper()
	stdout, stderr, err := cmdtest.Execute(t, NewCommand(), append([]string{"--json"}, args...)...)
	require.NoError(t, err, "stderr: %s", stderr)

	var out struct {
		Success bool           `json:"success"`
		Lineage *chain.Lineage `json:"lineage"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.True(t, out.Success)
	require.NotNil(t, out.Lineage)
	return out.Lineage
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand()

	assert.Equal(t, "chain", cmd.Use)
	for _, flag := range []string{"n-metrics", "n-steps", "n-checkpoint-steps", "n-runs", "start-run-id", "seed", "metrics-addr"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "--%s flag not defined", flag)
	}
}

func TestChainCommand_BuildsLineage(t *testing.T) {
	cmdtest.Isolate(t)

	lineage := chainJSON(t, append(smallChain, "--n-runs", "3", "--seed", "11")...)
	require.Len(t, lineage.Nodes, 4)

	roots := lineage.Roots()
	require.Len(t, roots, 1)
	assert.Empty(t, roots[0].Checkpoint)

	seen := map[string]bool{lineage.Nodes[0].RunID: true}
	for _, n := range lineage.Nodes[1:] {
		assert.True(t, seen[n.ParentRunID], "parent of %s must be an earlier run", n.RunID)
		assert.Contains(t, n.Checkpoint, "run-"+n.ParentRunID+"-checkpoint:v")
		assert.Equal(t, 2, n.Checkpoints)
		seen[n.RunID] = true
	}
}

func TestChainCommand_StartRunID(t *testing.T) {
	cmdtest.Isolate(t)

	first := chainJSON(t, append(smallChain, "--n-runs", "0")...)
	require.Len(t, first.Nodes, 1)
	seed := first.Nodes[0].RunID

	grown := chainJSON(t, append(smallChain, "--n-runs", "2", "--start-run-id", seed)...)
	require.Len(t, grown.Nodes, 3)
	assert.Equal(t, seed, grown.Nodes[0].RunID)
	assert.Equal(t, seed, grown.Nodes[1].ParentRunID)
}

func TestChainCommand_TextTree(t *testing.T) {
	cmdtest.Isolate(t)

	stdout, _, err := cmdtest.Execute(t, NewCommand(), append(smallChain, "--n-runs", "2", "--metrics-addr", "127.0.0.1:0")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "chain of 3 runs finished")
	assert.Contains(t, stdout, "└── ")
	assert.Contains(t, stdout, "(from tester/cmdtest/run-")
}

func TestChainCommand_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{
			name:     "no checkpoints per run",
			args:     []string{"--n-steps", "4", "--n-checkpoint-steps", "5", "--n-runs", "1"},
			wantCode: shared.ExitInvalidInput,
		},
		{
			name:     "negative runs",
			args:     append(smallChain, "--n-runs", "-1"),
			wantCode: shared.ExitInvalidInput,
		},
		{
			name:     "unknown start run",
			args:     append(smallChain, "--start-run-id", "ghost"),
			wantCode: shared.ExitNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmdtest.Isolate(t)

			_, _, err := cmdtest.Execute(t, NewCommand(), tt.args...)
			var exitErr *shared.ExitError
			require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
			assert.Equal(t, tt.wantCode, exitErr.Code)
		})
	}
}
