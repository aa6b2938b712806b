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

package version

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tombee/runchain/internal/commands/cmdtest"
	"github.com/tombee/runchain/internal/commands/shared"
	"github.com/tombee/runchain/internal/model"
)

func TestVersionCommand(t *testing.T) {
	cmd := NewCommand()

	if cmd.Use != "version" {
		t.Errorf("expected use 'version', got %q", cmd.Use)
	}
	if cmd.Short == "" {
		t.Error("expected short description to be set")
	}
}

func TestVersionOutput(t *testing.T) {
	cmdtest.Isolate(t)
	shared.SetVersion("1.0.0", "test123", "2025-12-22")
	defer shared.SetVersion("dev", "unknown", "unknown")

	stdout, _, err := cmdtest.Execute(t, NewCommand())
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(stdout, "runchain version 1.0.0") {
		t.Errorf("expected output to contain version '1.0.0', got: %s", stdout)
	}
}

func TestVersionJSONOutput(t *testing.T) {
	cmdtest.Isolate(t)
	shared.SetVersion("1.0.0", "test123", "2025-12-22")
	defer shared.SetVersion("dev", "unknown", "unknown")

	stdout, _, err := cmdtest.Execute(t, NewCommand(), "--json")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	var info Info
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, stdout)
	}
	if info.Commit != "test123" {
		t.Errorf("expected commit 'test123', got %q", info.Commit)
	}
	if info.BuildDate != "2025-12-22" {
		t.Errorf("expected build date '2025-12-22', got %q", info.BuildDate)
	}
	if info.CheckpointSchema != model.SchemaVersion {
		t.Errorf("expected checkpoint schema %d, got %d", model.SchemaVersion, info.CheckpointSchema)
	}
}
