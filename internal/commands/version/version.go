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

// Package version implements "runchain version".
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/model"
)

// Info contains version metadata
type Info struct {
	Version          string `json:"version"`
	Commit           string `json:"commit"`
	BuildDate        string `json:"build_date"`
	GoVersion        string `json:"go_version"`
	CheckpointSchema int    `json:"checkpoint_schema"`
}

// NewCommand creates the version command
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the runchain version, commit, build date and the checkpoint
schema version it reads and writes.`,
		Args: cobra.NoArgs,
		RunE: runVersion,
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, c, b := shared.GetVersion()
	info := Info{
		Version:          v,
		Commit:           c,
		BuildDate:        b,
		GoVersion:        runtime.Version(),
		CheckpointSchema: model.SchemaVersion,
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), info)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "runchain version %s\n", info.Version)
	fmt.Fprintf(w, "  commit:            %s\n", info.Commit)
	fmt.Fprintf(w, "  build date:        %s\n", info.BuildDate)
	fmt.Fprintf(w, "  go:                %s\n", info.GoVersion)
	fmt.Fprintf(w, "  checkpoint schema: v%d\n", info.CheckpointSchema)
	return nil
}
