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

// Package cmdtest runs runchain commands in tests against an isolated
// configuration and tracking store.
package cmdtest

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/shared"
)

// Isolate points configuration and data directories at a temp dir and
// resets the global flags. It returns the SQLite path the commands use.
func Isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runchain.db")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("RUNCHAIN_DB", dbPath)
	t.Setenv("RUNCHAIN_ENTITY", "tester")
	t.Setenv("RUNCHAIN_PROJECT", "cmdtest")
	for _, key := range []string{"RUNCHAIN_BACKEND", "RUNCHAIN_TRACE_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	shared.ResetFlagsForTest()
	t.Cleanup(func() {
		shared.ResetFlagsForTest()
		shared.SetRegistererForTest(nil)
	})
	return dbPath
}

// Execute runs cmd under a root carrying the global flags and returns
// what it wrote to stdout and stderr.
func Execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	// the OTel exporter registers its collector once per registry
	shared.SetRegistererForTest(prometheus.NewRegistry())
	shared.ResetFlagsForTest()

	root := &cobra.Command{Use: "runchain", SilenceUsage: true, SilenceErrors: true}
	verbose, quiet, jsonOut, config := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "")
	root.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "")
	root.PersistentFlags().BoolVar(jsonOut, "json", false, "")
	root.PersistentFlags().StringVar(config, "config", "", "")
	root.AddCommand(cmd)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{cmd.Name()}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}
