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

// Package chain builds lineages of runs where every run resumes from a
// checkpoint of an earlier run, preferring recent parents.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/tombee/runchain/internal/log"
	"github.com/tombee/runchain/internal/runner"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// Options are the parameters of a chain.
type Options struct {
	// Run holds the per-run parameters. Its CheckpointRef is ignored.
	Run runner.Options

	// NRuns is the number of resumed runs to add.
	NRuns int

	// StartRunID seeds the chain with an existing run instead of a
	// fresh one.
	StartRunID string
}

// CheckpointsPerRun is the number of checkpoints each run of the chain
// saves.
func (o Options) CheckpointsPerRun() int {
	if o.Run.NCheckpointSteps <= 0 {
		return 0
	}
	return o.Run.NSteps / o.Run.NCheckpointSteps
}

// Validate checks the options.
func (o Options) Validate() error {
	run := o.Run
	run.CheckpointRef = ""
	if err := run.Validate(); err != nil {
		return err
	}
	if o.NRuns < 0 {
		return &runchainerrors.ValidationError{Field: "n_runs", Message: fmt.Sprintf("must be >= 0, got %d", o.NRuns)}
	}
	if o.NRuns > 0 && o.CheckpointsPerRun() < 1 {
		return &runchainerrors.ValidationError{
			Field:   "n_checkpoint_steps",
			Message: fmt.Sprintf("runs of %d steps save no checkpoint every %d steps", o.Run.NSteps, o.Run.NCheckpointSteps),
			Hint:    "Use --n-checkpoint-steps no larger than --n-steps",
		}
	}
	return nil
}

// SelectParent picks one of k runs ordered oldest (0) to newest (k-1).
// Candidates are scanned from the newest and each is taken with
// probability 1/2; when the scan reaches the oldest, it is taken. The
// newest is chosen with probability 1/2, the next with 1/4, and the
// oldest with 2^-(k-1).
func SelectParent(rng *rand.Rand, k int) int {
	if k <= 0 {
		panic("chain: SelectParent needs at least one run")
	}
	for j := k - 1; j > 0; j-- {
		if rng.Float64() < 0.5 {
			return j
		}
	}
	return 0
}

// Driver runs chains.
type Driver struct {
	runner *runner.Runner
	logger *slog.Logger
}

// New creates a Driver that executes runs with r.
func New(r *runner.Runner, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = log.Discard()
	}
	return &Driver{runner: r, logger: log.WithComponent(logger, "chain")}
}

// Run executes a chain and returns its lineage. rng drives parent and
// checkpoint selection and seeds each run's own generator.
//
// When a run fails the lineage built so far is returned with the error.
func (d *Driver) Run(ctx context.Context, rng *rand.Rand, opts Options) (*Lineage, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	runOpts := opts.Run
	runOpts.CheckpointRef = ""

	var seed *runner.Handle
	var err error
	if opts.StartRunID == "" {
		seed, err = d.runner.Run(ctx, childRand(rng), runOpts)
		if err != nil {
			return nil, fmt.Errorf("seed run: %w", err)
		}
	} else {
		seed, err = d.runner.Lookup(ctx, opts.StartRunID)
		if err != nil {
			return nil, fmt.Errorf("start run: %w", err)
		}
		if opts.NRuns > 0 && seed.Checkpoints == 0 {
			return nil, &runchainerrors.ValidationError{
				Field:   "start_run_id",
				Message: fmt.Sprintf("run %s has no checkpoints to resume from", seed.ID),
			}
		}
	}

	lineage := &Lineage{}
	lineage.add(seed, "")
	runs := []*runner.Handle{seed}

	for i := 0; i < opts.NRuns; i++ {
		parent := runs[SelectParent(rng, len(runs))]
		version := rng.IntN(parent.Checkpoints)
		runOpts.CheckpointRef = parent.CheckpointRef(version)

		d.logger.Info("starting chained run",
			slog.Int("index", i),
			slog.String("parent", parent.ID),
			slog.String(log.ArtifactKey, runOpts.CheckpointRef))

		h, err := d.runner.Run(ctx, childRand(rng), runOpts)
		if err != nil {
			return lineage, fmt.Errorf("chained run %d from %s: %w", i, runOpts.CheckpointRef, err)
		}

		lineage.add(h, parent.ID)
		runs = append(runs, h)
	}

	d.logger.Info("chain complete", slog.Int("runs", len(runs)))
	return lineage, nil
}

// childRand derives an independent generator for one run.
func childRand(rng *rand.Rand) *rand.Rand {
	return rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
}
