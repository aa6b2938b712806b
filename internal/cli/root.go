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
	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/chain"
	"github.com/tombee/runchain/internal/commands/completion"
	configcmd "github.com/tombee/runchain/internal/commands/config"
	"github.com/tombee/runchain/internal/commands/generate"
	"github.com/tombee/runchain/internal/commands/run"
	"github.com/tombee/runchain/internal/commands/runs"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command with every runchain
// subcommand attached.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runchain",
		Short: "Runchain - chained pseudo-training runs",
		Long: `Runchain generates synthetic training runs and logs them to a tracking
store. Runs save checkpoint artifacts; later runs resume from them, so a
chain of runs forms a lineage tree.

Run 'runchain run' for a single run.
Run 'runchain chain' to grow a lineage of resumed runs.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Get flag pointers from shared package
	verbose, quiet, json, config := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/runchain/config.yaml)")

	// Execution
	cmd.AddCommand(run.NewCommand())
	cmd.AddCommand(chain.NewCommand())
	cmd.AddCommand(generate.NewCommand())

	// Inspection
	cmd.AddCommand(runs.NewCommand())
	cmd.AddCommand(version.NewCommand())

	// Setup
	cmd.AddCommand(configcmd.NewConfigCommand())
	cmd.AddCommand(completion.NewCommand())

	cmd.SetHelpCommand(NewHelpCommand(cmd))

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
