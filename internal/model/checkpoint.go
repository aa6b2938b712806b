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

package model

import (
	"encoding/json"
	"fmt"

	"github.com/tombee/runchain/internal/tracking"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// SchemaVersion is the version written into checkpoint files.
const SchemaVersion = 1

const (
	// ArtifactType is the artifact type checkpoints are stored under.
	ArtifactType = "checkpoint"

	// FileName is the file inside a checkpoint artifact.
	FileName = "checkpoint.json"
)

// State is the serialized model inside a checkpoint.
type State struct {
	MetricsTemplate []int              `json:"metrics_template"`
	Metrics         map[string]float64 `json:"metrics"`
}

// Checkpoint is a model snapshot. Step is the zero-indexed local step of
// the run that took it; a run resumed from it continues at that absolute
// step of the curves.
type Checkpoint struct {
	Step  int
	Model State
}

type checkpointFile struct {
	SchemaVersion int   `json:"schema_version"`
	Step          *int  `json:"step"`
	Model         State `json:"model"`
}

// Marshal encodes the checkpoint as checkpoint.json content.
func (c *Checkpoint) Marshal() ([]byte, error) {
	step := c.Step
	data, err := json.Marshal(checkpointFile{
		SchemaVersion: SchemaVersion,
		Step:          &step,
		Model:         c.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return data, nil
}

// ParseCheckpoint decodes checkpoint.json content.
func ParseCheckpoint(data []byte) (*Checkpoint, error) {
	var f checkpointFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &runchainerrors.ValidationError{
			Field:   "checkpoint",
			Message: fmt.Sprintf("malformed checkpoint: %v", err),
		}
	}
	// files without schema_version predate versioning and have the v1 layout
	if f.SchemaVersion != 0 && f.SchemaVersion != SchemaVersion {
		return nil, &runchainerrors.ValidationError{
			Field:   "checkpoint.schema_version",
			Message: fmt.Sprintf("unsupported schema version %d", f.SchemaVersion),
			Hint:    fmt.Sprintf("This build reads schema version %d", SchemaVersion),
		}
	}
	if f.Step == nil {
		return nil, &runchainerrors.ValidationError{
			Field:   "checkpoint.step",
			Message: "missing step",
		}
	}
	if *f.Step < 0 {
		return nil, &runchainerrors.ValidationError{
			Field:   "checkpoint.step",
			Message: fmt.Sprintf("negative step %d", *f.Step),
		}
	}
	return &Checkpoint{Step: *f.Step, Model: f.Model}, nil
}

// ArtifactName returns the name of the checkpoint artifact of a run.
func ArtifactName(runID string) string {
	return "run-" + runID + "-checkpoint"
}

// ArtifactRef returns the reference of version v of a run's checkpoint.
func ArtifactRef(entity, project, runID string, version int) tracking.ArtifactRef {
	return tracking.ArtifactRef{
		Entity:  entity,
		Project: project,
		Name:    ArtifactName(runID),
		Version: version,
	}
}

// NewArtifact packages cp as the checkpoint artifact of run runID.
func NewArtifact(runID string, cp *Checkpoint) (*tracking.Artifact, error) {
	data, err := cp.Marshal()
	if err != nil {
		return nil, err
	}
	return &tracking.Artifact{
		Name:     ArtifactName(runID),
		Type:     ArtifactType,
		Metadata: map[string]any{"run_step": cp.Step},
		Files:    map[string][]byte{FileName: data},
	}, nil
}

// FromArtifact reads the checkpoint stored in art.
func FromArtifact(art *tracking.Artifact) (*Checkpoint, error) {
	data, err := art.File(FileName)
	if err != nil {
		return nil, err
	}
	cp, err := ParseCheckpoint(data)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", art.Ref(), err)
	}
	return cp, nil
}
