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

// Package generate implements "runchain generate".
package generate

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/syndata"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// NewCommand creates the generate command
func NewCommand() *cobra.Command {
	var (
		nMetrics int
		nSteps   int
		seed     uint64
		template []int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a synthetic metrics table",
		Long: `Generate prints the synthetic table a fresh run of the same size
would train on, as CSV with one row per step.

Every column follows a curve kind from the catalog with noise on top.
--template fixes the curve kind of each column; otherwise kinds are drawn
at random.`,
		Example: `  # Example 1: Five metrics over 50 steps
  runchain generate --n-metrics 5 --n-steps 50

  # Example 2: Reproducible table with fixed curve kinds
  runchain generate --n-metrics 2 --n-steps 10 --seed 3 --template 0,7

  # Example 3: The table as JSON
  runchain generate --json | jq '.columns.metric0'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, nMetrics, nSteps, seed, template)
		},
	}

	cmd.Flags().IntVar(&nMetrics, "n-metrics", 20, "Number of metric columns")
	cmd.Flags().IntVar(&nSteps, "n-steps", 100, "Number of steps")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for the generator (default: random)")
	cmd.Flags().IntSliceVar(&template, "template", nil, "Curve kind of each column (comma separated indices)")

	return cmd
}

func runGenerate(cmd *cobra.Command, nMetrics, nSteps int, seed uint64, template []int) error {
	switch {
	case nMetrics < 0:
		return shared.Fail(cmd, "invalid options", &runchainerrors.ValidationError{
			Field: "n_metrics", Message: fmt.Sprintf("must be >= 0, got %d", nMetrics)})
	case nSteps < 0:
		return shared.Fail(cmd, "invalid options", &runchainerrors.ValidationError{
			Field: "n_steps", Message: fmt.Sprintf("must be >= 0, got %d", nSteps)})
	}

	rng := shared.NewRand(cmd, "seed", seed)
	if cmd.Flags().Changed("template") {
		if len(template) != nMetrics {
			return shared.Fail(cmd, "invalid template", &runchainerrors.ValidationError{
				Field:   "template",
				Message: fmt.Sprintf("has %d entries for %d metrics", len(template), nMetrics),
			})
		}
		if err := syndata.ValidTemplate(template); err != nil {
			return shared.Fail(cmd, "invalid template", &runchainerrors.ValidationError{
				Field:   "template",
				Message: err.Error(),
				Hint:    fmt.Sprintf("Curve kinds are 0 to %d", syndata.NumCurves()-1),
			})
		}
	} else {
		template = syndata.RandomTemplate(rng, nMetrics)
	}

	table := syndata.Generate(rng, nSteps, nMetrics, template)

	if shared.GetJSON() {
		catalog := syndata.Catalog()
		curves := make([]string, len(template))
		columns := make(map[string][]float64, nMetrics)
		for j, name := range table.Names() {
			curves[j] = catalog[template[j]].Name
			columns[name] = table.Column(name)
		}
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Steps    int                  `json:"steps"`
			Template []int                `json:"template"`
			Curves   []string             `json:"curves"`
			Columns  map[string][]float64 `json:"columns"`
		}{shared.NewJSONResponse("generate"), table.Len(), template, curves, columns})
	}

	return writeCSV(cmd.OutOrStdout(), table)
}

func writeCSV(w io.Writer, table *syndata.Table) error {
	names := table.Names()
	out := csv.NewWriter(w)

	if err := out.Write(append([]string{"step"}, names...)); err != nil {
		return err
	}
	record := make([]string, len(names)+1)
	for s := 0; s < table.Len(); s++ {
		row := table.Row(s)
		record[0] = strconv.Itoa(s)
		for j, name := range names {
			record[j+1] = strconv.FormatFloat(row[name], 'g', -1, 64)
		}
		if err := out.Write(record); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}
