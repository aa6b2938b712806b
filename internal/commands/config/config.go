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

// Package config implements "runchain config".
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/config"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and check configuration",
		Long: `View the effective runchain configuration.

Subcommands:
  show     - Display the effective configuration
  path     - Show config file location
  validate - Check the configuration for errors and pitfalls`,
		Args: cobra.NoArgs,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(NewValidateCommand())

	// no subcommand means show
	cmd.RunE = runConfigShow

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults and environment overrides
are applied. Exporter header values are masked.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Args:  cobra.NoArgs,
		RunE:  runConfigPath,
	}
}

// configPath returns --config or the default config file location.
func configPath() (string, error) {
	if p := shared.GetConfigPath(); p != "" {
		return p, nil
	}
	p, err := config.ConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to determine config path: %w", err)
	}
	return p, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return shared.Fail(cmd, "failed to load configuration", err)
	}
	path, err := configPath()
	if err != nil {
		return shared.Fail(cmd, "failed to load configuration", err)
	}

	masked := maskSensitiveConfig(cfg)

	if shared.GetJSON() {
		doc, err := toDocument(masked)
		if err != nil {
			return err
		}
		return shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Path   string         `json:"path"`
			Config map[string]any `json:"config"`
		}{shared.NewJSONResponse("config show"), path, doc})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Configuration: %s\n", path)
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(masked); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return encoder.Close()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// toDocument re-reads cfg through YAML so JSON output uses the same keys
// as the config file.
func toDocument(cfg *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return doc, nil
}

// maskSensitiveConfig returns a copy of cfg with exporter header values
// masked.
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	if len(cfg.Observability.Exporter.Headers) > 0 {
		headers := make(map[string]string, len(cfg.Observability.Exporter.Headers))
		for name, value := range cfg.Observability.Exporter.Headers {
			headers[name] = maskSecret(value)
		}
		masked.Observability.Exporter.Headers = headers
	}
	return &masked
}

// maskSecret keeps the first and last four characters of long values.
// Environment references like ${TOKEN} are shown as written.
func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		return value
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
