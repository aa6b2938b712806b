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

package errors

import (
	"fmt"
)

// ValidationError represents invalid run parameters or malformed input data.
type ValidationError struct {
	// Field identifies which input failed validation (e.g. "n_steps").
	Field string

	// Message is the human-readable error description
	Message string

	// Hint provides actionable guidance for fixing the error
	Hint string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// IsUserVisible implements UserVisibleError.
func (e *ValidationError) IsUserVisible() bool { return true }

// Suggestion implements UserVisibleError.
func (e *ValidationError) Suggestion() string { return e.Hint }

// NotFoundError represents a run, artifact or file that does not exist
// in the tracking store.
type NotFoundError struct {
	// Resource is the type of resource (e.g. "run", "artifact", "file")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// IsUserVisible implements UserVisibleError.
func (e *NotFoundError) IsUserVisible() bool { return true }

// Suggestion implements UserVisibleError.
func (e *NotFoundError) Suggestion() string {
	switch e.Resource {
	case "run":
		return "List known runs with 'runchain runs list'"
	case "artifact":
		return "Show a run's checkpoints with 'runchain runs show <id>'"
	}
	return ""
}

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g. "tracking.backend")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements UserVisibleError.
func (e *ConfigError) IsUserVisible() bool { return true }

// Suggestion implements UserVisibleError.
func (e *ConfigError) Suggestion() string {
	return "Check ~/.config/runchain/config.yaml or pass --config"
}
