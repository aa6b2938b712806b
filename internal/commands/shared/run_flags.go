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

package shared

import (
	"math/rand/v2"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/config"
	"github.com/tombee/runchain/internal/runner"
)

// RunFlags are the run parameters shared by "run" and "chain". Flags the
// user did not set fall back to the configured defaults.
type RunFlags struct {
	NMetrics         int
	NSteps           int
	NCheckpointSteps int
}

// Register adds the run parameter flags to cmd.
func (f *RunFlags) Register(cmd *cobra.Command) {
	d := config.Default().Defaults
	cmd.Flags().IntVar(&f.NMetrics, "n-metrics", d.NMetrics, "Number of metrics logged per step")
	cmd.Flags().IntVar(&f.NSteps, "n-steps", d.NSteps, "Number of steps per run")
	cmd.Flags().IntVar(&f.NCheckpointSteps, "n-checkpoint-steps", d.NCheckpointSteps, "Save a checkpoint every N steps")
}

// Options resolves the flags against the configured defaults.
func (f *RunFlags) Options(cmd *cobra.Command, defaults config.RunDefaults) runner.Options {
	opts := runner.Options{
		NMetrics:         defaults.NMetrics,
		NSteps:           defaults.NSteps,
		NCheckpointSteps: defaults.NCheckpointSteps,
	}
	if cmd.Flags().Changed("n-metrics") {
		opts.NMetrics = f.NMetrics
	}
	if cmd.Flags().Changed("n-steps") {
		opts.NSteps = f.NSteps
	}
	if cmd.Flags().Changed("n-checkpoint-steps") {
		opts.NCheckpointSteps = f.NCheckpointSteps
	}
	return opts
}

// NewRand returns a generator seeded with seed when the named flag was
// set, and randomly otherwise.
func NewRand(cmd *cobra.Command, flag string, seed uint64) *rand.Rand {
	if !cmd.Flags().Changed(flag) {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Fail classifies err and, in JSON mode, also writes it as a JSON error
// envelope to the command's stdout.
func Fail(cmd *cobra.Command, msg string, err error) error {
	err = Classify(msg, err)
	if err != nil && GetJSON() {
		_ = EmitJSONError(cmd.OutOrStdout(), cmd.Name(), err)
	}
	return err
}
