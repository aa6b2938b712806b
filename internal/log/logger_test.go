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

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("expected default format 'text', got %q", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected default output to be os.Stderr")
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		envVars    map[string]string
		wantLevel  string
		wantFormat Format
		wantSource bool
	}{
		{
			name:       "defaults when no env vars",
			envVars:    map[string]string{},
			wantLevel:  "info",
			wantFormat: FormatText,
		},
		{
			name:       "LOG_LEVEL=DEBUG (case insensitive)",
			envVars:    map[string]string{"LOG_LEVEL": "DEBUG"},
			wantLevel:  "debug",
			wantFormat: FormatText,
		},
		{
			name:       "RUNCHAIN_LOG_LEVEL wins over LOG_LEVEL",
			envVars:    map[string]string{"LOG_LEVEL": "error", "RUNCHAIN_LOG_LEVEL": "trace"},
			wantLevel:  "trace",
			wantFormat: FormatText,
		},
		{
			name:       "RUNCHAIN_DEBUG enables debug and source",
			envVars:    map[string]string{"RUNCHAIN_DEBUG": "1", "RUNCHAIN_LOG_LEVEL": "error"},
			wantLevel:  "debug",
			wantFormat: FormatText,
			wantSource: true,
		},
		{
			name:       "LOG_FORMAT=json",
			envVars:    map[string]string{"LOG_FORMAT": "JSON"},
			wantLevel:  "info",
			wantFormat: FormatJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"RUNCHAIN_DEBUG", "RUNCHAIN_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := FromEnv()
			if cfg.Level != tt.wantLevel {
				t.Errorf("Level = %q, want %q", cfg.Level, tt.wantLevel)
			}
			if cfg.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", cfg.Format, tt.wantFormat)
			}
			if cfg.AddSource != tt.wantSource {
				t.Errorf("AddSource = %v, want %v", cfg.AddSource, tt.wantSource)
			}
		})
	}
}

func TestNew_JSONWithRunContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithRunContext(logger, "ab12cd34", "local/runchain-demo").Info("run started", Error(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log line %q: %v", buf.String(), err)
	}
	if entry[RunIDKey] != "ab12cd34" {
		t.Errorf("run_id = %v", entry[RunIDKey])
	}
	if entry[NamespaceKey] != "local/runchain-demo" {
		t.Errorf("namespace = %v", entry[NamespaceKey])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTrace_OnlyWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	Trace(ctx, New(&Config{Level: "debug", Output: &buf}), "metrics", slog.Float64("metric0", 1.5))
	if buf.Len() != 0 {
		t.Errorf("expected no output at debug level, got %q", buf.String())
	}

	Trace(ctx, New(&Config{Level: "trace", Output: &buf}), "metrics", slog.Float64("metric0", 1.5))
	if !strings.Contains(buf.String(), "metric0=1.5") {
		t.Errorf("expected trace output, got %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Error("discard logger should not be enabled at error level")
	}
}
