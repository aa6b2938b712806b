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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// Exit codes for runchain commands
const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitInvalidInput    = 2
	ExitNotFound        = 3
)

// Error codes for structured JSON output
const (
	ErrorCodeInvalidInput    = "E302"
	ErrorCodeInvalidConfig   = "E202"
	ErrorCodeNotFound        = "E401"
	ErrorCodeExecutionFailed = "E403"
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for run and chain failures
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitExecutionFailed, Message: msg, Cause: cause}
}

// NewInvalidInputError creates an error for bad flags or configuration
func NewInvalidInputError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidInput, Message: msg, Cause: cause}
}

// NewNotFoundError creates an error for missing runs and artifacts
func NewNotFoundError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitNotFound, Message: msg, Cause: cause}
}

// Classify wraps err in an ExitError whose code follows the typed error
// at the bottom of the chain. Errors that already are ExitErrors are
// returned unchanged.
func Classify(msg string, err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	var (
		validationErr *runchainerrors.ValidationError
		configErr     *runchainerrors.ConfigError
		notFoundErr   *runchainerrors.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &configErr):
		return NewInvalidInputError(msg, err)
	case errors.As(err, &notFoundErr):
		return NewNotFoundError(msg, err)
	default:
		return NewExecutionError(msg, err)
	}
}

// ErrorCode maps an error to its JSON error code.
func ErrorCode(err error) string {
	var configErr *runchainerrors.ConfigError
	if errors.As(err, &configErr) {
		return ErrorCodeInvalidConfig
	}

	var exitErr *ExitError
	if !errors.As(Classify("", err), &exitErr) {
		return ErrorCodeExecutionFailed
	}
	switch exitErr.Code {
	case ExitInvalidInput:
		return ErrorCodeInvalidInput
	case ExitNotFound:
		return ErrorCodeNotFound
	default:
		return ErrorCodeExecutionFailed
	}
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(Classify("", err), &exitErr) {
		return exitErr.Code
	}
	return ExitExecutionFailed
}

// HandleExitError prints err and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// PrintError writes err and, when the chain carries one, its suggestion.
func PrintError(w io.Writer, err error) {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, RenderError("Error: "+msg))
	}
	if suggestion := Suggestion(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}

// Suggestion returns the suggestion of the first UserVisibleError in
// the chain of err.
func Suggestion(err error) string {
	var userErr runchainerrors.UserVisibleError
	if errors.As(err, &userErr) && userErr.IsUserVisible() {
		return userErr.Suggestion()
	}
	return ""
}
