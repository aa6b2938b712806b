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

package cli

import (
	"testing"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "runchain" {
		t.Errorf("expected use 'runchain', got %q", cmd.Use)
	}
	if cmd.Short == "" {
		t.Error("expected short description to be set")
	}

	for _, path := range [][]string{{"run"}, {"chain"}, {"generate"}, {"runs", "list"}, {"runs", "show"}, {"runs", "lineage"}, {"version"}, {"config", "validate"}, {"completion"}} {
		found, _, err := cmd.Find(path)
		if err != nil || found == cmd {
			t.Errorf("command %v not registered", path)
		}
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"verbose", "quiet", "json", "config"} {
		if cmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("%s flag not registered", name)
		}
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2025-12-22")
	defer SetVersion("dev", "unknown", "unknown")

	v, c, b := GetVersion()
	if v != "1.2.3" || c != "abc123" || b != "2025-12-22" {
		t.Errorf("unexpected version info %q %q %q", v, c, b)
	}
}
