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
)

// Curve is one entry of the curve-kind catalog.
type Curve struct {
	// Name is a short label shown by 'runchain generate'.
	Name string

	// eval fills out[s] for every step s in 0..len(out)-1.
	eval func(out []float64, rng *rand.Rand)
}

// Eval returns the curve evaluated over steps 0..n-1. Only the
// random-constant curve consumes rng.
func (c Curve) Eval(n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	c.eval(out, rng)
	return out
}

func pointwise(f func(s float64) float64) func([]float64, *rand.Rand) {
	return func(out []float64, _ *rand.Rand) {
		for i := range out {
			out[i] = f(float64(i))
		}
	}
}

// warmup is the slow saturating curve several shapes are modulated by.
func warmup(s float64) float64 {
	return 1 - math.Exp(-s*0.0001)
}

// catalog is indexed by curve kind. Indices are persisted in checkpoints,
// so entries are append-only.
var catalog = []Curve{
	{Name: "quadratic", eval: pointwise(func(s float64) float64 { return s * s })},
	{Name: "slow_cosine", eval: pointwise(func(s float64) float64 { return math.Cos(s * 0.0001) })},
	{Name: "sine", eval: pointwise(func(s float64) float64 { return math.Sin(s * 0.01) })},
	{Name: "log", eval: pointwise(func(s float64) float64 { return math.Log(s + 1) })},
	{Name: "exp_growth", eval: pointwise(func(s float64) float64 { return math.Exp(s * 0.0001) })},
	{Name: "exp_loss", eval: pointwise(func(s float64) float64 { return math.Exp(-s*0.0001) * 1000 })},
	{Name: "accuracy", eval: pointwise(warmup)},
	{Name: "power_loss", eval: pointwise(func(s float64) float64 {
		// step 0 would be +Inf, which cannot be logged or serialized
		return math.Pow(math.Max(s, 1), -0.5) * 1000
	})},
	{Name: "tanh", eval: pointwise(func(s float64) float64 { return math.Tanh(s * 0.0001) })},
	{Name: "atan", eval: pointwise(func(s float64) float64 { return math.Atan(s * 0.0001) })},
	{Name: "two_stage", eval: func(out []float64, _ *rand.Rand) {
		half := float64(len(out)) / 2
		for i := range out {
			s := float64(i)
			if s < half {
				out[i] = s * 0.001
			} else {
				out[i] = warmup(s)
			}
		}
	}},
	{Name: "damped_sine", eval: pointwise(func(s float64) float64 { return math.Sin(s*0.001) * math.Exp(-s*0.0001) })},
	{Name: "oscillating_accuracy", eval: pointwise(func(s float64) float64 { return (math.Cos(s*0.001) + 1) * 0.5 * warmup(s) })},
	{Name: "log_accuracy", eval: pointwise(func(s float64) float64 { return math.Log(s+1) * warmup(s) })},
	{Name: "random_plateau", eval: func(out []float64, rng *rand.Rand) {
		c := rng.Float64()
		for i := range out {
			out[i] = c * warmup(float64(i))
		}
	}},
}

// Catalog returns a copy of the curve-kind catalog.
func Catalog() []Curve {
	return append([]Curve(nil), catalog...)
}

// NumCurves is the number of curve kinds.
func NumCurves() int {
	return len(catalog)
}
