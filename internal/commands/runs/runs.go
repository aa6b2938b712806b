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

// Package runs implements the "runchain runs" command group.
package runs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/chain"
	"github.com/tombee/runchain/internal/commands/completion"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/jq"
	"github.com/tombee/runchain/internal/model"
	"github.com/tombee/runchain/internal/tracking"
)

// NewCommand creates the runs command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use: "runs",
		Annotations: map[string]string{
			"group": "management",
		},
		Short: "Inspect tracked runs",
		Long: `Commands for listing runs, showing one run and printing the lineage of
chained runs.`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newLineageCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	var (
		project string
		status  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Long: `List the runs of a project, oldest first.

See also: runchain runs show, runchain runs lineage`,
		Example: `  # Example 1: List runs of the configured project
  runchain runs list

  # Example 2: Only failed runs of another project
  runchain runs list --project sweeps --status failed

  # Example 3: Run IDs as JSON
  runchain runs list --json | jq -r '.runs[].id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runsList(cmd, project, status, limit)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project to list (default: configured project)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (running, finished, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs to list")
	_ = cmd.RegisterFlagCompletionFunc("project", completion.CompleteProjects)
	_ = cmd.RegisterFlagCompletionFunc("status", completion.CompleteRunStatus)

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show run details",
		Long: `Display a run's configuration, status, parent checkpoint and the
checkpoints it saved.`,
		Example: `  # Example 1: Show a run
  runchain runs show 1a2b3c4d

  # Example 2: Extract the parent checkpoint
  runchain runs show 1a2b3c4d --json | jq -r '.run.parent_artifact'`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.CompleteRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runsShow(cmd, args[0])
		},
	}
}

func newLineageCommand() *cobra.Command {
	var (
		project string
		query   string
	)

	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "Print the lineage of runs",
		Long: `Print the runs of a project as a forest: every resumed run is shown
under the run whose checkpoint it resumed from.

--query evaluates a jq expression over the lineage JSON
({"nodes":[{"run_id","parent_run_id","checkpoint","checkpoints","status"}]})
and prints each result as JSON.`,
		Example: `  # Example 1: Print the lineage tree
  runchain runs lineage

  # Example 2: Runs resumed from a given run
  runchain runs lineage --query '.nodes[] | select(.parent_run_id == "1a2b3c4d") | .run_id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runsLineage(cmd, project, query)
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "Project to read (default: configured project)")
	cmd.Flags().StringVarP(&query, "query", "Q", "", "jq expression evaluated over the lineage")
	_ = cmd.RegisterFlagCompletionFunc("project", completion.CompleteProjects)

	return cmd
}

func filterFor(env *shared.Env, project string) tracking.RunFilter {
	if project == "" {
		project = env.Config.Tracking.Project
	}
	return tracking.RunFilter{Entity: env.Config.Tracking.Entity, Project: project}
}

func runsList(cmd *cobra.Command, project, status string, limit int) error {
	switch tracking.RunStatus(status) {
	case "", tracking.StatusRunning, tracking.StatusFinished, tracking.StatusFailed:
	default:
		return shared.Fail(cmd, "invalid status", shared.NewInvalidInputError(fmt.Sprintf("unknown status %q", status), nil))
	}

	env, err := shared.Setup(cmd)
	if err != nil {
		return shared.Fail(cmd, "list failed", err)
	}
	defer env.Close()

	filter := filterFor(env, project)
	filter.Status = tracking.RunStatus(status)
	filter.Limit = limit

	runs, err := env.Store.ListRuns(cmd.Context(), filter)
	if err != nil {
		return shared.Fail(cmd, "list failed", err)
	}

	if shared.GetJSON() {
		if runs == nil {
			runs = []*tracking.Run{}
		}
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Runs []*tracking.Run `json:"runs"`
		}{shared.NewJSONResponse("runs list"), runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return nil
	}
	fmt.Fprintf(w, "%-10s %-9s %-6s %-20s %s\n", "ID", "STATUS", "STEPS", "STARTED", "PARENT")
	for _, run := range runs {
		parent := run.ParentRunID
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(w, "%-10s %-9s %-6d %-20s %s\n",
			run.ID, run.Status, run.HistoryLen, run.StartedAt.Local().Format(time.DateTime), parent)
	}
	return nil
}

// runDetails is the JSON shape of "runs show".
type runDetails struct {
	Run         *tracking.Run `json:"run"`
	Checkpoints []string      `json:"checkpoints"`
	Used        []string      `json:"used"`
}

func runsShow(cmd *cobra.Command, id string) error {
	env, err := shared.Setup(cmd)
	if err != nil {
		return shared.Fail(cmd, "show failed", err)
	}
	defer env.Close()

	details, err := loadDetails(cmd.Context(), env.Store, id)
	if err != nil {
		return shared.Fail(cmd, "show failed", err)
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			runDetails
		}{shared.NewJSONResponse("runs show"), *details})
	}
	printDetails(cmd.OutOrStdout(), details)
	return nil
}

func loadDetails(ctx context.Context, store tracking.Backend, id string) (*runDetails, error) {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &runDetails{Run: run, Checkpoints: []string{}, Used: []string{}}

	arts, err := store.ListArtifacts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list artifacts of run %s: %w", id, err)
	}
	for _, art := range arts {
		if art.Type == model.ArtifactType {
			d.Checkpoints = append(d.Checkpoints, art.Ref().String())
		}
	}

	uses, err := store.ListArtifactUses(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list artifact uses of run %s: %w", id, err)
	}
	for _, ref := range uses {
		d.Used = append(d.Used, ref.String())
	}
	return d, nil
}

func printDetails(w io.Writer, d *runDetails) {
	run := d.Run
	label := func(s string) string { return shared.RenderLabel(fmt.Sprintf("%-12s", s)) }

	fmt.Fprintf(w, "%s %s\n", label("Run ID:"), run.ID)
	fmt.Fprintf(w, "%s %s\n", label("Namespace:"), run.Namespace())
	fmt.Fprintf(w, "%s %s\n", label("Status:"), shared.RenderStatus(string(run.Status)))
	fmt.Fprintf(w, "%s %s\n", label("Started:"), run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "%s %s\n", label("Finished:"), run.FinishedAt.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "%s %d\n", label("Steps:"), run.HistoryLen)
	if run.ParentArtifact != "" {
		fmt.Fprintf(w, "%s %s\n", label("Resumed:"), run.ParentArtifact)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "%s %s\n", label("Error:"), shared.StatusError.Render(run.Error))
	}

	if len(run.Config) > 0 {
		keys := make([]string, 0, len(run.Config))
		for k := range run.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintln(w)
		fmt.Fprintln(w, shared.Header.Render("Config"))
		for _, k := range keys {
			v, _ := json.Marshal(run.Config[k])
			fmt.Fprintf(w, "  %s %s\n", label(k+":"), v)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, shared.Header.Render("Checkpoints"))
	if len(d.Checkpoints) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, ref := range d.Checkpoints {
		fmt.Fprintf(w, "  %s\n", ref)
	}
}

func runsLineage(cmd *cobra.Command, project, query string) error {
	if query != "" {
		if _, err := jq.Compile(query); err != nil {
			return shared.Fail(cmd, "invalid query", err)
		}
	}

	env, err := shared.Setup(cmd)
	if err != nil {
		return shared.Fail(cmd, "lineage failed", err)
	}
	defer env.Close()

	lineage, err := loadLineage(cmd.Context(), env.Store, filterFor(env, project))
	if err != nil {
		return shared.Fail(cmd, "lineage failed", err)
	}

	w := cmd.OutOrStdout()
	switch {
	case query != "":
		results, err := jq.NewExecutor(0, 0).Execute(cmd.Context(), query, lineage)
		if err != nil {
			return shared.Fail(cmd, "query failed", err)
		}
		enc := json.NewEncoder(w)
		for _, v := range results {
			if err := enc.Encode(v); err != nil {
				return err
			}
		}
		return nil
	case shared.GetJSON():
		return shared.EmitJSON(w, struct {
			shared.JSONResponse
			Lineage *chain.Lineage `json:"lineage"`
		}{shared.NewJSONResponse("runs lineage"), lineage})
	case len(lineage.Nodes) == 0:
		fmt.Fprintln(w, "No runs found.")
		return nil
	default:
		fmt.Fprint(w, strings.TrimRight(lineage.Tree(), "\n")+"\n")
		return nil
	}
}

// loadLineage reads the runs matching filter and counts their checkpoints.
func loadLineage(ctx context.Context, store tracking.Backend, filter tracking.RunFilter) (*chain.Lineage, error) {
	runs, err := store.ListRuns(ctx, filter)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(runs))
	for _, run := range runs {
		arts, err := store.ListArtifacts(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("list artifacts of run %s: %w", run.ID, err)
		}
		for _, art := range arts {
			if art.Type == model.ArtifactType {
				counts[run.ID]++
			}
		}
	}
	return chain.FromRuns(runs, counts), nil
}
