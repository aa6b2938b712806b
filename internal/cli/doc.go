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

/*
Package cli provides the root command of the runchain CLI.

The command tree is:

	runchain
	├── run           Execute one training run
	├── chain         Execute a chain of resumed runs
	├── generate      Print a synthetic metrics table
	├── runs
	│   ├── list      List runs
	│   ├── show      Show run details
	│   └── lineage   Print the lineage of runs
	├── version       Show version
	├── config
	│   ├── show      Display the effective configuration
	│   ├── path      Show config file location
	│   └── validate  Check the configuration
	├── completion    Generate shell completion scripts
	└── help          Show help

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
	    cli.HandleExitError(err)
	}

# Exit Codes

  - 0: success
  - 1: a run or chain failed
  - 2: invalid flags or configuration
  - 3: run or artifact not found
*/
package cli
