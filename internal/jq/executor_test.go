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

package jq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

type node struct {
	RunID  string `json:"run_id"`
	Parent string `json:"parent_run_id,omitempty"`
}

func TestExecutor_Execute(t *testing.T) {
	lineage := map[string]any{
		"nodes": []node{{RunID: "a"}, {RunID: "b", Parent: "a"}, {RunID: "c", Parent: "a"}},
	}

	tests := []struct {
		name       string
		expression string
		want       []any
	}{
		{
			name: "empty expression returns data as-is",
			want: []any{map[string]any{"nodes": []any{
				map[string]any{"run_id": "a"},
				map[string]any{"run_id": "b", "parent_run_id": "a"},
				map[string]any{"run_id": "c", "parent_run_id": "a"},
			}}},
		},
		{
			name:       "stream of ids",
			expression: ".nodes[].run_id",
			want:       []any{"a", "b", "c"},
		},
		{
			name:       "children of a root",
			expression: `[.nodes[] | select(.parent_run_id == "a") | .run_id]`,
			want:       []any{[]any{"b", "c"}},
		},
		{
			name:       "count",
			expression: ".nodes | length",
			want:       []any{2 + 1},
		},
		{
			name:       "no output",
			expression: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewExecutor(DefaultTimeout, DefaultMaxInputSize)
			got, err := executor.Execute(context.Background(), tt.expression, lineage)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_InvalidExpression(t *testing.T) {
	_, err := Compile(".[")

	var validationErr *runchainerrors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "query", validationErr.Field)
}

func TestExecutor_RuntimeError(t *testing.T) {
	executor := NewExecutor(0, 0)
	_, err := executor.Execute(context.Background(), ".nodes + 1", map[string]any{"nodes": []any{}})
	assert.Error(t, err)
}

func TestExecutor_InputTooLarge(t *testing.T) {
	executor := NewExecutor(DefaultTimeout, 8)
	_, err := executor.Execute(context.Background(), ".", map[string]string{"run_id": "0123456789"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestExecutor_Timeout(t *testing.T) {
	executor := NewExecutor(100*time.Millisecond, DefaultMaxInputSize)

	// This expression produces an infinite stream
	_, err := executor.Execute(context.Background(), "while(true; . + 1)", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}
