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

// Package model implements a pseudo model whose "training" emits synthetic
// metric curves and which can be checkpointed and resumed.
//
// A resumed model starts each inherited metric at the checkpoint's last
// value and moves linearly toward its freshly generated curve over the
// course of the run, so chained runs have no visible jump at the resume
// point.
package model

import (
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"

	"github.com/tombee/runchain/internal/syndata"
	runchainerrors "github.com/tombee/runchain/pkg/errors"
)

// ErrNoMetrics is returned by Checkpoint before the first TrainStep.
var ErrNoMetrics = errors.New("model has not taken a training step")

// Model is a checkpointable pseudo model. It is not safe for concurrent use.
type Model struct {
	rng      *rand.Rand
	template []int

	// offsets holds the resumed checkpoint's last metric values by name.
	offsets map[string]float64

	table       *syndata.Table
	lastMetrics map[string]float64
	localStep   int
	stepped     bool
}

// New creates a fresh model with a random template of nMetrics curves.
func New(rng *rand.Rand, nMetrics int) *Model {
	return &Model{
		rng:      rng,
		template: syndata.RandomTemplate(rng, nMetrics),
		offsets:  map[string]float64{},
	}
}

// FromCheckpoint creates a model resumed from cp. The checkpoint's template
// is kept as is and, if it is shorter than nMetrics, extended with fresh
// curves. It is never truncated.
func FromCheckpoint(rng *rand.Rand, nMetrics int, cp *Checkpoint) (*Model, error) {
	if err := syndata.ValidTemplate(cp.Model.MetricsTemplate); err != nil {
		return nil, &runchainerrors.ValidationError{
			Field:   "checkpoint.model.metrics_template",
			Message: err.Error(),
		}
	}

	template := append([]int(nil), cp.Model.MetricsTemplate...)
	if missing := nMetrics - len(template); missing > 0 {
		template = append(template, syndata.RandomTemplate(rng, missing)...)
	}

	offsets := maps.Clone(cp.Model.Metrics)
	if offsets == nil {
		offsets = map[string]float64{}
	}

	return &Model{
		rng:      rng,
		template: template,
		offsets:  offsets,
	}, nil
}

// Template returns a copy of the model's curve template.
func (m *Model) Template() []int {
	return append([]int(nil), m.template...)
}

// NumMetrics returns the number of metrics each step emits.
func (m *Model) NumMetrics() int {
	return len(m.template)
}

// TrainStep takes local step i of a run of nSteps steps that resumed at
// beginStep, and returns that step's metrics.
//
// The first call generates the whole curve table for nSteps+beginStep
// steps; later calls read from it. Step i reads absolute step beginStep+i.
// A metric with a start offset is blended as
//
//	(1-cf)*offset + cf*raw, cf = i/nSteps
//
// so step 0 returns the offset exactly and the last step is nearly raw.
func (m *Model) TrainStep(i, nSteps, beginStep int) (map[string]float64, error) {
	if nSteps <= 0 {
		return nil, fmt.Errorf("train step: n_steps must be positive, got %d", nSteps)
	}
	if i < 0 || i >= nSteps {
		return nil, fmt.Errorf("train step: step %d outside [0, %d)", i, nSteps)
	}
	if beginStep < 0 {
		return nil, fmt.Errorf("train step: negative begin step %d", beginStep)
	}

	if m.table == nil {
		m.table = syndata.Generate(m.rng, nSteps+beginStep, len(m.template), m.template)
	}
	if beginStep+i >= m.table.Len() {
		return nil, fmt.Errorf("train step: step %d beyond generated horizon %d", beginStep+i, m.table.Len())
	}

	cf := float64(i) / float64(nSteps)
	metrics := m.table.Row(beginStep + i)
	for name, raw := range metrics {
		if offset, ok := m.offsets[name]; ok {
			metrics[name] = (1-cf)*offset + cf*raw
		}
	}

	m.lastMetrics = metrics
	m.localStep = i
	m.stepped = true
	return maps.Clone(metrics), nil
}

// Checkpoint captures the model after its most recent step.
func (m *Model) Checkpoint() (*Checkpoint, error) {
	if !m.stepped {
		return nil, ErrNoMetrics
	}
	return &Checkpoint{
		Step: m.localStep,
		Model: State{
			MetricsTemplate: m.Template(),
			Metrics:         maps.Clone(m.lastMetrics),
		},
	}, nil
}
