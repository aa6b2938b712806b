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

// Package jq evaluates jq expressions over runchain records such as
// lineages and run listings.
package jq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

const (
	// DefaultTimeout bounds the evaluation of one expression.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the largest encoded input accepted (10MB).
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor runs jq expressions with a timeout and an input size limit.
type Executor struct {
	timeout      time.Duration
	maxInputSize int64
}

// NewExecutor creates an executor. Zero values select the defaults.
func NewExecutor(timeout time.Duration, maxInputSize int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}
	return &Executor{timeout: timeout, maxInputSize: maxInputSize}
}

// Compile parses and compiles expression. Syntax errors are returned as
// ValidationErrors on the "query" field.
func Compile(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, &runchainerrors.ValidationError{
			Field:   "query",
			Message: fmt.Sprintf("invalid jq expression: %v", err),
			Hint:    "Quote the expression, e.g. --query '.nodes[].run_id'",
		}
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, &runchainerrors.ValidationError{
			Field:   "query",
			Message: fmt.Sprintf("jq compilation failed: %v", err),
		}
	}
	return code, nil
}

// Execute evaluates expression against data and returns every result.
// data may be any JSON-encodable value; it is converted to plain maps and
// slices first. An empty expression returns data itself.
func (e *Executor) Execute(ctx context.Context, expression string, data any) ([]any, error) {
	input, err := e.normalize(data)
	if err != nil {
		return nil, err
	}
	if expression == "" {
		return []any{input}, nil
	}

	code, err := Compile(expression)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var results []any
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("execution timeout after %v", e.timeout)
			}
			return nil, fmt.Errorf("jq: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

// normalize round-trips data through JSON so gojq sees only the types it
// accepts.
func (e *Executor) normalize(data any) (any, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}
	if int64(len(encoded)) > e.maxInputSize {
		return nil, fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)",
			len(encoded), e.maxInputSize)
	}

	var v any
	if err := json.Unmarshal(encoded, &v); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}
	return v, nil
}
