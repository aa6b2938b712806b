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

// Package syndata generates synthetic training-metric curves.
//
// Every metric follows one curve kind from a fixed catalog (loss decay,
// accuracy warmup, oscillations, ...) with multiplicative noise on top, so
// flat regions of a curve receive less absolute noise than steep ones.
//
// All randomness comes from the *rand.Rand passed in. Two calls with the
// same seed, template and sizes return identical tables.
package syndata

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// NoiseKind is the distribution a column's noise is drawn from.
type NoiseKind int

const (
	// NoiseUniform draws from U(-f, f).
	NoiseUniform NoiseKind = iota
	// NoiseNormal draws from N(0, f).
	NoiseNormal
	// NoiseTriangular draws from Tri(-f, 0, f).
	NoiseTriangular
)

var noiseKinds = []NoiseKind{NoiseUniform, NoiseNormal, NoiseTriangular}

// String returns the noise kind's name.
func (k NoiseKind) String() string {
	switch k {
	case NoiseUniform:
		return "uniform"
	case NoiseNormal:
		return "normal"
	case NoiseTriangular:
		return "triangular"
	default:
		return fmt.Sprintf("NoiseKind(%d)", int(k))
	}
}

// MetricName returns the column name for metric j.
func MetricName(j int) string {
	return fmt.Sprintf("metric%d", j)
}

// RandomTemplate samples n curve-kind indices uniformly from the catalog.
func RandomTemplate(rng *rand.Rand, n int) []int {
	if n <= 0 {
		return []int{}
	}
	template := make([]int, n)
	for i := range template {
		template[i] = rng.IntN(len(catalog))
	}
	return template
}

// ValidTemplate reports whether every index in template names a curve.
func ValidTemplate(template []int) error {
	for i, kind := range template {
		if kind < 0 || kind >= len(catalog) {
			return fmt.Errorf("template entry %d: curve kind %d out of range [0, %d)", i, kind, len(catalog))
		}
	}
	return nil
}

// Generate builds a table of m metric columns over n steps.
//
// When template is nil each column picks a curve uniformly at random;
// otherwise column j follows template[j]. Generate panics if template is
// shorter than m or holds an index outside the catalog; use ValidTemplate
// on templates read from outside the process.
func Generate(rng *rand.Rand, n, m int, template []int) *Table {
	if n < 0 {
		n = 0
	}
	if m < 0 {
		m = 0
	}
	if template != nil && len(template) < m {
		panic(fmt.Sprintf("syndata: template has %d entries, need %d", len(template), m))
	}

	t := &Table{
		steps:   n,
		names:   make([]string, m),
		columns: make([][]float64, m),
		index:   make(map[string]int, m),
	}

	for j := 0; j < m; j++ {
		fraction := rng.Float64()

		var curve Curve
		if template == nil {
			curve = catalog[rng.IntN(len(catalog))]
		} else {
			curve = catalog[template[j]]
		}
		values := curve.Eval(n, rng)

		noise := Noise(rng, noiseKinds[rng.IntN(len(noiseKinds))], fraction, n)
		for s := range values {
			values[s] += fraction * values[s] * noise[s]
		}

		name := MetricName(j)
		t.names[j] = name
		t.columns[j] = values
		t.index[name] = j
	}

	return t
}

// Noise draws n samples of the given kind with scale fraction.
func Noise(rng *rand.Rand, kind NoiseKind, fraction float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		switch kind {
		case NoiseUniform:
			out[i] = (2*rng.Float64() - 1) * fraction
		case NoiseNormal:
			out[i] = rng.NormFloat64() * fraction
		case NoiseTriangular:
			out[i] = triangular(rng.Float64(), fraction)
		}
	}
	return out
}

// triangular maps u in [0,1) through the inverse CDF of Tri(-w, 0, w).
func triangular(u, w float64) float64 {
	if u < 0.5 {
		return -w + w*math.Sqrt(2*u)
	}
	return w - w*math.Sqrt(2*(1-u))
}
