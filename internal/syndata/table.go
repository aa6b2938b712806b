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

// Table holds generated metric columns, indexed by step.
type Table struct {
	steps   int
	names   []string
	columns [][]float64
	index   map[string]int
}

// Len returns the number of steps in every column.
func (t *Table) Len() int {
	return t.steps
}

// Names returns the column names in generation order.
func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Column returns the values of the named column, or nil if absent.
func (t *Table) Column(name string) []float64 {
	j, ok := t.index[name]
	if !ok {
		return nil
	}
	return t.columns[j]
}

// Row returns every metric's value at step.
func (t *Table) Row(step int) map[string]float64 {
	row := make(map[string]float64, len(t.names))
	for j, name := range t.names {
		row[name] = t.columns[j][step]
	}
	return row
}
