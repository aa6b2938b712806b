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

package tracking

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

func TestParseArtifactRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ArtifactRef
		wantErr bool
	}{
		{
			name:  "fully qualified version",
			input: "local/demo/run-ab12cd34-checkpoint:v3",
			want:  ArtifactRef{Entity: "local", Project: "demo", Name: "run-ab12cd34-checkpoint", Version: 3},
		},
		{
			name:  "latest alias",
			input: "local/demo/run-x-checkpoint:latest",
			want:  ArtifactRef{Entity: "local", Project: "demo", Name: "run-x-checkpoint", Latest: true},
		},
		{
			name:  "missing alias means latest",
			input: "demo/run-x-checkpoint",
			want:  ArtifactRef{Project: "demo", Name: "run-x-checkpoint", Latest: true},
		},
		{
			name:  "bare name",
			input: "run-x-checkpoint:v0",
			want:  ArtifactRef{Name: "run-x-checkpoint"},
		},
		{name: "bad alias", input: "a/b/c:3", wantErr: true},
		{name: "negative version", input: "a/b/c:v-1", wantErr: true},
		{name: "non numeric version", input: "a/b/c:vx", wantErr: true},
		{name: "too many segments", input: "a/b/c/d:v0", wantErr: true},
		{name: "empty segment", input: "a//c:v0", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArtifactRef(tt.input)
			if tt.wantErr {
				var verr *runchainerrors.ValidationError
				assert.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArtifactRef_StringRoundTrip(t *testing.T) {
	for _, s := range []string{
		"local/demo/run-ab12cd34-checkpoint:v7",
		"local/demo/run-ab12cd34-checkpoint:latest",
		"run-ab12cd34-checkpoint:v0",
	} {
		ref, err := ParseArtifactRef(s)
		require.NoError(t, err)
		assert.Equal(t, s, ref.String())
	}
}

func TestValidateArtifactName(t *testing.T) {
	assert.NoError(t, ValidateArtifactName("run-ab12cd34-checkpoint"))
	assert.Error(t, ValidateArtifactName(""))
	assert.Error(t, ValidateArtifactName("a/b"))
	assert.Error(t, ValidateArtifactName("a:v1"))
}

func TestRunFilter_Matches(t *testing.T) {
	run := &Run{Entity: "local", Project: "demo", Status: StatusFinished}

	assert.True(t, RunFilter{}.Matches(run))
	assert.True(t, RunFilter{Project: "demo", Status: StatusFinished}.Matches(run))
	assert.False(t, RunFilter{Entity: "team"}.Matches(run))
	assert.False(t, RunFilter{Status: StatusRunning}.Matches(run))
}

func TestArtifact_File(t *testing.T) {
	art := &Artifact{Entity: "local", Project: "demo", Name: "a", Version: 2, Files: map[string][]byte{"x.json": []byte("{}")}}

	data, err := art.File("x.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = art.File("missing.json")
	var nf *runchainerrors.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "local/demo/a:v2/missing.json", nf.ID)
}
