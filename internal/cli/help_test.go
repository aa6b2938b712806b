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

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/runchain/internal/commands/shared"
)

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	rootCmd := NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestHelpCommandJSON_AllCommands(t *testing.T) {
	out, err := executeRoot(t, "help", "--json")
	require.NoError(t, err)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "help", resp.Command)

	names := map[string]bool{}
	for _, c := range resp.Commands {
		names[c.Name] = true
	}
	for _, want := range []string{"run", "chain", "generate", "runs", "version", "config", "completion"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	global := map[string]bool{}
	for _, f := range resp.GlobalFlags {
		global[f.Name] = true
	}
	assert.True(t, global["config"])
	assert.True(t, global["json"])
}

func TestHelpCommandJSON_NestedCommand(t *testing.T) {
	out, err := executeRoot(t, "help", "runs", "lineage", "--json")
	require.NoError(t, err)

	var resp HelpResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Detail)
	assert.Equal(t, "lineage", resp.Detail.Name)
	assert.Equal(t, "help runchain runs lineage", resp.Command)
	assert.Contains(t, resp.Detail.Usage, "runchain runs lineage")
}

func TestHelpCommandJSON_Unknown(t *testing.T) {
	_, err := executeRoot(t, "help", "nope", "--json")
	assert.Error(t, err)
}

func TestHelpCommandHumanOutput(t *testing.T) {
	out, err := executeRoot(t, "help", "chain")
	require.NoError(t, err)

	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"), "expected human output, got JSON")
	assert.Contains(t, out, "--start-run-id")
}

func TestExtractCommandMetadata(t *testing.T) {
	cmd := &cobra.Command{
		Use:     "testcmd",
		Short:   "Test command",
		Long:    "This is a longer description",
		Example: "testcmd --flag value",
		Aliases: []string{"tc", "test"},
		Annotations: map[string]string{
			"group": "testing",
		},
	}
	cmd.Flags().String("flag", "default", "A test flag")
	cmd.Flags().Int("count", 3, "A count")
	require.NoError(t, cmd.MarkFlagRequired("count"))

	metadata := extractCommandMetadata(cmd)

	assert.Equal(t, "testcmd", metadata.Name)
	assert.Equal(t, "testing", metadata.Group)
	assert.Len(t, metadata.Aliases, 2)
	require.Len(t, metadata.Flags, 2)

	byName := map[string]FlagMetadata{}
	for _, f := range metadata.Flags {
		byName[f.Name] = f
	}
	assert.Equal(t, "int", byName["count"].Type)
	assert.True(t, byName["count"].Required)
	assert.False(t, byName["flag"].Required)
	assert.Equal(t, "default", byName["flag"].Default)
}
