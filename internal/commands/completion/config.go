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

package completion

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/config"
)

// CheckFilePermissions reports whether path is missing or no more
// permissive than 0600.
func CheckFilePermissions(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.Mode().Perm() <= 0o600
}

// LoadConfigForCompletion loads the configuration, refusing config files
// that other users can read. A nil config with a nil error means
// completion should be skipped.
func LoadConfigForCompletion() (*config.Config, error) {
	configPath := shared.GetConfigPath()
	if configPath == "" {
		var err error
		configPath, err = config.ConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if !CheckFilePermissions(configPath) {
		return nil, nil
	}

	return config.Load(shared.GetConfigPath())
}

// SafeCompletionWrapper wraps a completion function with panic recovery.
// Returns empty completion list on panic or error.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}
