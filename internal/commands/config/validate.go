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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/config"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the configuration file and environment overrides.

Errors make the configuration unusable. Warnings flag settings that work
but probably do not do what you want, such as a checkpoint interval longer
than the run.

With --strict, warnings are treated as errors.`,
		Example: `  # Validate configuration
  runchain config validate

  # Validate with warnings as errors
  runchain config validate --strict --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, strict bool) error {
	var warnings []string

	path, err := configPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		warnings = append(warnings, fmt.Sprintf("No config file at %s; using built-in defaults.", path))
	}

	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return outputValidationResult(cmd, ValidationResult{Errors: []string{describe(err)}, Warnings: warnings}, strict)
	}

	result := validateConfig(cfg)
	result.Warnings = append(warnings, result.Warnings...)
	return outputValidationResult(cmd, result, strict)
}

// describe flattens a load error, keeping the parse cause that
// ConfigError.Error leaves out.
func describe(err error) string {
	var cfgErr *runchainerrors.ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Cause != nil {
		return fmt.Sprintf("%s: %v", cfgErr.Error(), cfgErr.Cause)
	}
	return err.Error()
}

// validateConfig looks for settings that load but misbehave.
func validateConfig(cfg *config.Config) ValidationResult {
	var warnings []string

	if cfg.Tracking.Backend == config.BackendMemory {
		warnings = append(warnings, "Tracking backend is memory; runs are lost when the command exits and chains cannot resume them later.")
	}

	d := cfg.Defaults
	if d.NCheckpointSteps > d.NSteps {
		warnings = append(warnings, fmt.Sprintf(
			"defaults.n_checkpoint_steps (%d) exceeds defaults.n_steps (%d); runs save no checkpoints and chains never branch.",
			d.NCheckpointSteps, d.NSteps))
	}
	if d.NMetrics == 0 {
		warnings = append(warnings, "defaults.n_metrics is 0; runs log empty history rows.")
	}
	if d.NRuns == 0 {
		warnings = append(warnings, "defaults.n_runs is 0; chains start no runs unless --n-runs is given.")
	}

	obs := cfg.Observability
	if obs.Exporter.Type != "none" && obs.SampleRate == 0 {
		warnings = append(warnings, fmt.Sprintf("Exporter %s is configured but sample_rate is 0; no spans are exported.", obs.Exporter.Type))
	}
	if obs.Exporter.Type == "none" && obs.Exporter.Endpoint != "" {
		warnings = append(warnings, "observability.exporter.endpoint is set but the exporter type is none.")
	}

	return ValidationResult{Valid: true, Warnings: warnings}
}

// outputValidationResult writes the result and returns an invalid-input
// error when validation failed.
func outputValidationResult(cmd *cobra.Command, result ValidationResult, strict bool) error {
	w := cmd.OutOrStdout()

	if shared.GetJSON() {
		if err := shared.EmitJSON(w, result); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	} else {
		if result.Valid {
			fmt.Fprintln(w, shared.RenderOK("Configuration is valid"))
		} else {
			fmt.Fprintln(w, shared.RenderError("Configuration validation failed"))
		}
		fmt.Fprintln(w)

		if len(result.Errors) > 0 {
			fmt.Fprintln(w, shared.Header.Render("Errors:"))
			for _, msg := range result.Errors {
				fmt.Fprintf(w, "  %s %s\n", shared.StatusError.Render(shared.SymbolError), msg)
			}
			fmt.Fprintln(w)
		}

		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, shared.Header.Render("Warnings:"))
			for _, msg := range result.Warnings {
				fmt.Fprintf(w, "  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), msg)
			}
			fmt.Fprintln(w)
		}

		if result.Valid && len(result.Warnings) == 0 {
			fmt.Fprintln(w, "No issues found.")
		}
	}

	if !result.Valid {
		return shared.NewInvalidInputError("configuration is invalid", nil)
	}
	if strict && len(result.Warnings) > 0 {
		if !shared.GetJSON() {
			fmt.Fprintln(w, "Validation failed (strict mode: warnings treated as errors)")
		}
		return shared.NewInvalidInputError("configuration has warnings", nil)
	}
	return nil
}
