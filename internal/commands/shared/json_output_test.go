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
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

func TestEmitJSON(t *testing.T) {
	var buf bytes.Buffer
	resp := struct {
		JSONResponse
		RunID string `json:"run_id"`
	}{JSONResponse: NewJSONResponse("run"), RunID: "abc"}

	require.NoError(t, EmitJSON(&buf, resp))
	assert.JSONEq(t, `{"@version":"1.0","command":"run","success":true,"run_id":"abc"}`, buf.String())
}

func TestEmitJSONError(t *testing.T) {
	var buf bytes.Buffer
	err := &runchainerrors.ValidationError{Field: "n_steps", Message: "must be > 0", Hint: "pass --n-steps"}

	require.NoError(t, EmitJSONError(&buf, "chain", err))

	var got struct {
		Success bool        `json:"success"`
		Command string      `json:"command"`
		Errors  []JSONError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.False(t, got.Success)
	assert.Equal(t, "chain", got.Command)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, ErrorCodeInvalidInput, got.Errors[0].Code)
	assert.Equal(t, "pass --n-steps", got.Errors[0].Suggestion)
}
