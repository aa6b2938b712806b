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

// Package chain implements "runchain chain".
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/chain"
	"github.com/tombee/runchain/internal/commands/completion"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/log"
	"github.com/tombee/runchain/internal/runner"
)

type chainFlags struct {
	run         shared.RunFlags
	nRuns       int
	startRunID  string
	seed        uint64
	metricsAddr string
}

// NewCommand creates the chain command
func NewCommand() *cobra.Command {
	var flags chainFlags

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Execute a chain of resumed runs",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Chain executes one fresh run and then --n-runs runs that each resume
from a checkpoint of an earlier run of the chain.

Parents are picked newest first: the newest run is chosen with probability
1/2, the one before it with 1/4, and so on, the oldest taking what is left.
The checkpoint is picked uniformly among the parent's checkpoints.

With --start-run-id the chain grows from an existing run instead of a
fresh one. --seed makes parent and checkpoint choices reproducible.

See also: runchain run, runchain runs lineage`,
		Example: `  # Example 1: Ten resumed runs with the configured defaults
  runchain chain

  # Example 2: A small reproducible chain
  runchain chain --n-metrics 3 --n-steps 20 --n-checkpoint-steps 5 --n-runs 4 --seed 42

  # Example 3: Grow an existing run and expose Prometheus metrics
  runchain chain --start-run-id 1a2b3c4d --metrics-addr :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChain(cmd, &flags)
		},
	}

	flags.run.Register(cmd)
	cmd.Flags().IntVar(&flags.nRuns, "n-runs", 10, "Number of resumed runs to add")
	cmd.Flags().StringVar(&flags.startRunID, "start-run-id", "", "Grow the chain from this existing run")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 0, "Seed for parent and checkpoint selection (default: random)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the chain runs")
	_ = cmd.RegisterFlagCompletionFunc("start-run-id", completion.CompleteRunIDs)

	return cmd
}

func runChain(cmd *cobra.Command, flags *chainFlags) error {
	env, err := shared.Setup(cmd)
	if err != nil {
		return shared.Fail(cmd, "chain failed", err)
	}
	defer env.Close()

	opts := chain.Options{
		Run:        flags.run.Options(cmd, env.Config.Defaults),
		NRuns:      env.Config.Defaults.NRuns,
		StartRunID: flags.startRunID,
	}
	if cmd.Flags().Changed("n-runs") {
		opts.NRuns = flags.nRuns
	}
	if err := opts.Validate(); err != nil {
		return shared.Fail(cmd, "invalid chain options", err)
	}

	ctx := cmd.Context()
	provider, stop, err := env.Telemetry(ctx)
	if err != nil {
		return shared.Fail(cmd, "chain failed", err)
	}
	defer stop()

	addr := env.Config.Observability.MetricsAddr
	if cmd.Flags().Changed("metrics-addr") {
		addr = flags.metricsAddr
	}
	if addr != "" {
		shutdown, err := serveMetrics(ctx, addr, provider.MetricsHandler(), env.Logger)
		if err != nil {
			return shared.Fail(cmd, "chain failed", shared.NewInvalidInputError("cannot serve metrics on "+addr, err))
		}
		defer shutdown()
	}

	r := runner.New(env.Store, env.Config.Tracking.Entity, env.Config.Tracking.Project,
		runner.WithLogger(env.Logger),
		runner.WithTracer(provider.Tracer("runchain/runner")),
		runner.WithRunMetrics(provider.RunMetrics()),
		runner.WithProgress(shared.NewProgressBar(cmd.ErrOrStderr(), shared.GetQuiet() || shared.GetJSON())),
	)
	driver := chain.New(r, env.Logger)

	lineage, err := driver.Run(ctx, shared.NewRand(cmd, "seed", flags.seed), opts)
	if err != nil {
		if lineage != nil && !shared.GetJSON() && !shared.GetQuiet() {
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderWarn(fmt.Sprintf("chain stopped after %d runs", len(lineage.Nodes))))
			fmt.Fprint(cmd.OutOrStdout(), lineage.Tree())
		}
		return shared.Fail(cmd, "chain failed", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Lineage *chain.Lineage `json:"lineage"`
		}{shared.NewJSONResponse("chain"), lineage})
	}
	if !shared.GetQuiet() {
		printLineage(cmd.OutOrStdout(), lineage)
	}
	return nil
}

func printLineage(w io.Writer, l *chain.Lineage) {
	fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("chain of %d runs finished", len(l.Nodes))))
	fmt.Fprintln(w)
	fmt.Fprint(w, l.Tree())
}

// serveMetrics serves /metrics on addr until the returned function is
// called.
func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", log.Error(err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
