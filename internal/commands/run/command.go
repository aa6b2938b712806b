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

// Package run implements "runchain run".
package run

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/completion"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/log"
	"github.com/tombee/runchain/internal/runner"
)

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		flags      shared.RunFlags
		checkpoint string
		seed       uint64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one training run",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run executes one pseudo-training run and logs it to the tracking store.

Each step logs one value per metric. A checkpoint artifact is saved every
--n-checkpoint-steps steps. With --checkpoint-artifact the run resumes from
a checkpoint of an earlier run and continues its curves.

See also: runchain chain, runchain runs show`,
		Example: `  # Example 1: A fresh run with the configured defaults
  runchain run

  # Example 2: A short run with three metrics
  runchain run --n-metrics 3 --n-steps 10 --n-checkpoint-steps 5

  # Example 3: Resume from the second checkpoint of a run
  runchain run --checkpoint-artifact local/runchain-demo/run-1a2b3c4d-checkpoint:v1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, &flags, checkpoint, seed)
		},
	}

	flags.Register(cmd)
	cmd.Flags().StringVar(&checkpoint, "checkpoint-artifact", "", "Checkpoint reference to resume from")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for the run's random generator (default: random)")
	_ = cmd.RegisterFlagCompletionFunc("checkpoint-artifact", completion.CompleteCheckpointRefs)

	return cmd
}

func runRun(cmd *cobra.Command, flags *shared.RunFlags, checkpoint string, seed uint64) error {
	env, err := shared.Setup(cmd)
	if err != nil {
		return shared.Fail(cmd, "run failed", err)
	}
	defer env.Close()

	opts := flags.Options(cmd, env.Config.Defaults)
	opts.CheckpointRef = checkpoint
	if err := opts.Validate(); err != nil {
		return shared.Fail(cmd, "invalid run options", err)
	}

	ctx := cmd.Context()
	provider, stop, err := env.Telemetry(ctx)
	if err != nil {
		return shared.Fail(cmd, "run failed", err)
	}
	defer stop()

	r := runner.New(env.Store, env.Config.Tracking.Entity, env.Config.Tracking.Project,
		runner.WithLogger(env.Logger),
		runner.WithTracer(provider.Tracer("runchain/runner")),
		runner.WithRunMetrics(provider.RunMetrics()),
		runner.WithProgress(shared.NewProgressBar(cmd.ErrOrStderr(), shared.GetQuiet() || shared.GetJSON())),
	)

	handle, err := r.Run(ctx, shared.NewRand(cmd, "seed", seed), opts)
	if err != nil {
		if shared.IsCancelled(err) {
			env.Logger.Warn("run interrupted", log.Error(err))
		}
		return shared.Fail(cmd, "run failed", err)
	}
	env.Logger.Debug("run complete", slog.String(log.RunIDKey, handle.ID))

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Run *runner.Handle `json:"run"`
		}{shared.NewJSONResponse("run"), handle})
	}
	if !shared.GetQuiet() {
		printHandle(cmd.OutOrStdout(), handle)
	}
	return nil
}

func printHandle(w io.Writer, h *runner.Handle) {
	fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("run %s finished", h.ID)))
	fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("namespace:  "), h.Namespace())
	if h.Parent != "" {
		fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel("resumed:    "), h.Parent)
	}
	fmt.Fprintf(w, "  %s %d\n", shared.RenderLabel("checkpoints:"), h.Checkpoints)
	for v := 0; v < h.Checkpoints; v++ {
		fmt.Fprintf(w, "    %s\n", h.CheckpointRef(v))
	}
}
