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

package syndata

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestGenerate_Shape(t *testing.T) {
	tests := []struct {
		name  string
		steps int
		nMet  int
	}{
		{"no metrics", 10, 0},
		{"single step", 1, 3},
		{"many", 250, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Generate(seeded(1), tt.steps, tt.nMet, nil)

			assert.Equal(t, tt.steps, table.Len())
			require.Len(t, table.Names(), tt.nMet)
			for j, name := range table.Names() {
				assert.Equal(t, MetricName(j), name)
				assert.Len(t, table.Column(name), tt.steps)
			}
		})
	}
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	template := []int{0, 5, 10, 14, 7}

	a := Generate(seeded(42), 300, len(template), template)
	b := Generate(seeded(42), 300, len(template), template)
	for _, name := range a.Names() {
		assert.Equal(t, a.Column(name), b.Column(name), "column %s", name)
	}

	c := Generate(seeded(43), 300, len(template), template)
	assert.NotEqual(t, a.Column("metric1"), c.Column("metric1"))
}

func TestGenerate_FollowsTemplate(t *testing.T) {
	// quadratic and log are exactly zero at step 0, and multiplicative
	// noise keeps them there.
	table := Generate(seeded(7), 50, 2, []int{0, 3})

	assert.Equal(t, 0.0, table.Column("metric0")[0])
	assert.Equal(t, 0.0, table.Column("metric1")[0])
	assert.Greater(t, table.Column("metric0")[49], 0.0)
}

func TestGenerate_TemplateMayBeLonger(t *testing.T) {
	table := Generate(seeded(7), 5, 2, []int{1, 2, 3, 4})
	assert.Len(t, table.Names(), 2)
}

func TestGenerate_PanicsOnBadTemplate(t *testing.T) {
	assert.Panics(t, func() { Generate(seeded(1), 5, 3, []int{1}) })
	assert.Panics(t, func() { Generate(seeded(1), 5, 1, []int{NumCurves()}) })
}

func TestValidTemplate(t *testing.T) {
	assert.NoError(t, ValidTemplate(nil))
	assert.NoError(t, ValidTemplate([]int{0, NumCurves() - 1}))
	assert.Error(t, ValidTemplate([]int{0, -1}))
	assert.Error(t, ValidTemplate([]int{NumCurves()}))
}

func TestRandomTemplate(t *testing.T) {
	rng := seeded(3)

	assert.Empty(t, RandomTemplate(rng, 0))
	assert.Empty(t, RandomTemplate(rng, -2))

	template := RandomTemplate(rng, 500)
	require.Len(t, template, 500)
	assert.NoError(t, ValidTemplate(template))

	seen := map[int]bool{}
	for _, kind := range template {
		seen[kind] = true
	}
	assert.Len(t, seen, NumCurves(), "500 draws should hit every curve kind")
}

func TestNoise_Bounds(t *testing.T) {
	const n = 20000
	const fraction = 0.3

	for _, kind := range []NoiseKind{NoiseUniform, NoiseTriangular} {
		t.Run(kind.String(), func(t *testing.T) {
			samples := Noise(seeded(11), kind, fraction, n)
			var sum float64
			for _, s := range samples {
				assert.LessOrEqual(t, math.Abs(s), fraction)
				sum += s
			}
			assert.InDelta(t, 0, sum/n, 0.01)
		})
	}

	t.Run("normal", func(t *testing.T) {
		samples := Noise(seeded(11), NoiseNormal, fraction, n)
		var sum, sq float64
		for _, s := range samples {
			sum += s
			sq += s * s
		}
		mean := sum / n
		assert.InDelta(t, 0, mean, 0.01)
		assert.InDelta(t, fraction, math.Sqrt(sq/n-mean*mean), 0.01)
	})
}

func TestTriangular_PeakAtZero(t *testing.T) {
	assert.Equal(t, -1.0, triangular(0, 1))
	assert.InDelta(t, 0, triangular(0.5, 1), 1e-12)
	assert.InDelta(t, 1, triangular(math.Nextafter(1, 0), 1), 1e-7)
}

func TestCatalog_FiniteValues(t *testing.T) {
	rng := seeded(5)
	for i, curve := range Catalog() {
		values := curve.Eval(2000, rng)
		for s, v := range values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("curve %d (%s) not finite at step %d: %v", i, curve.Name, s, v)
			}
		}
	}
}

func TestTwoStageCurve_SwitchesAtHalf(t *testing.T) {
	values := catalog[10].Eval(10, nil)
	assert.InDelta(t, 0.004, values[4], 1e-12)
	assert.InDelta(t, 1-math.Exp(-0.0005), values[5], 1e-12)
}

func TestTable_Row(t *testing.T) {
	table := Generate(seeded(9), 4, 3, nil)
	row := table.Row(2)

	require.Len(t, row, 3)
	for _, name := range table.Names() {
		assert.Equal(t, table.Column(name)[2], row[name])
	}
	assert.Nil(t, table.Column("missing"))
}
