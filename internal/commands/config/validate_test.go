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

package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/runchain/internal/commands/cmdtest"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/config"
)

func TestValidateConfig_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
		want   string
	}{
		{
			name:   "memory backend",
			modify: func(c *config.Config) { c.Tracking.Backend = config.BackendMemory },
			want:   "Tracking backend is memory",
		},
		{
			name:   "checkpoint interval longer than run",
			modify: func(c *config.Config) { c.Defaults.NCheckpointSteps = 500 },
			want:   "runs save no checkpoints",
		},
		{
			name:   "no metrics",
			modify: func(c *config.Config) { c.Defaults.NMetrics = 0 },
			want:   "defaults.n_metrics is 0",
		},
		{
			name: "exporter never sampled",
			modify: func(c *config.Config) {
				c.Observability.Exporter.Type = "console"
				c.Observability.SampleRate = 0
			},
			want: "no spans are exported",
		},
		{
			name:   "endpoint without exporter",
			modify: func(c *config.Config) { c.Observability.Exporter.Endpoint = "localhost:4317" },
			want:   "exporter type is none",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)

			result := validateConfig(cfg)
			assert.True(t, result.Valid)
			require.Len(t, result.Warnings, 1)
			assert.Contains(t, result.Warnings[0], tt.want)
		})
	}

	assert.Empty(t, validateConfig(config.Default()).Warnings)
}

func TestValidate_Command(t *testing.T) {
	cmdtest.Isolate(t)

	t.Run("valid file", func(t *testing.T) {
		path := writeConfig(t, "defaults:\n  n_steps: 20\n  n_checkpoint_steps: 5\n")
		stdout, _, err := cmdtest.Execute(t, NewConfigCommand(), "validate", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Configuration is valid")
		assert.Contains(t, stdout, "No issues found.")
	})

	t.Run("missing default file warns", func(t *testing.T) {
		stdout, _, err := cmdtest.Execute(t, NewConfigCommand(), "validate", "--json")
		require.NoError(t, err)

		var result ValidationResult
		require.NoError(t, json.Unmarshal([]byte(stdout), &result))
		assert.True(t, result.Valid)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "using built-in defaults")
	})

	t.Run("strict fails on warnings", func(t *testing.T) {
		_, _, err := cmdtest.Execute(t, NewConfigCommand(), "validate", "--strict")
		require.Error(t, err)
		assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))
	})

	t.Run("parse error", func(t *testing.T) {
		path := writeConfig(t, "tracking: [unclosed\n")
		stdout, _, err := cmdtest.Execute(t, NewConfigCommand(), "validate", "--config", path, "--json")
		require.Error(t, err)
		assert.Equal(t, shared.ExitInvalidInput, shared.ExitCode(err))

		var result ValidationResult
		require.NoError(t, json.Unmarshal([]byte(stdout), &result))
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "failed to parse YAML")
	})

	t.Run("invalid value", func(t *testing.T) {
		path := writeConfig(t, "log:\n  format: xml\n")
		stdout, _, err := cmdtest.Execute(t, NewConfigCommand(), "validate", "--config", path)
		require.Error(t, err)
		assert.Contains(t, stdout, "log.format")
	})
}
