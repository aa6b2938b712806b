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

package chain

import (
	"fmt"
	"strings"

	"github.com/tombee/runchain/internal/runner"
	"github.com/tombee/runchain/internal/tracking"
)

// Node is one run in a lineage.
type Node struct {
	RunID     string `json:"run_id"`
	Namespace string `json:"namespace"`

	// ParentRunID and Checkpoint are empty for roots.
	ParentRunID string `json:"parent_run_id,omitempty"`
	Checkpoint  string `json:"checkpoint,omitempty"`

	Checkpoints int    `json:"checkpoints"`
	Status      string `json:"status,omitempty"`
}

// Lineage is a forest of runs in creation order.
type Lineage struct {
	Nodes []Node `json:"nodes"`
}

func (l *Lineage) add(h *runner.Handle, parentID string) {
	if parentID == "" {
		parentID = h.ParentRunID
	}
	l.Nodes = append(l.Nodes, Node{
		RunID:       h.ID,
		Namespace:   h.Namespace(),
		ParentRunID: parentID,
		Checkpoint:  h.Parent,
		Checkpoints: h.Checkpoints,
		Status:      string(h.Status),
	})
}

// FromRuns builds the lineage of stored runs. counts gives the number of
// checkpoints of each run ID.
func FromRuns(runs []*tracking.Run, counts map[string]int) *Lineage {
	l := &Lineage{Nodes: make([]Node, 0, len(runs))}
	for _, run := range runs {
		l.Nodes = append(l.Nodes, Node{
			RunID:       run.ID,
			Namespace:   run.Namespace(),
			ParentRunID: run.ParentRunID,
			Checkpoint:  run.ParentArtifact,
			Checkpoints: counts[run.ID],
			Status:      string(run.Status),
		})
	}
	return l
}

// Roots returns the nodes whose parent is not part of the lineage.
func (l *Lineage) Roots() []Node {
	known := make(map[string]bool, len(l.Nodes))
	for _, n := range l.Nodes {
		known[n.RunID] = true
	}
	var roots []Node
	for _, n := range l.Nodes {
		if n.ParentRunID == "" || !known[n.ParentRunID] {
			roots = append(roots, n)
		}
	}
	return roots
}

// Children returns the nodes resumed from a checkpoint of runID.
func (l *Lineage) Children(runID string) []Node {
	var children []Node
	for _, n := range l.Nodes {
		if n.ParentRunID == runID {
			children = append(children, n)
		}
	}
	return children
}

// Depth returns the number of ancestors of runID within the lineage.
func (l *Lineage) Depth(runID string) int {
	parents := make(map[string]string, len(l.Nodes))
	for _, n := range l.Nodes {
		parents[n.RunID] = n.ParentRunID
	}
	depth := 0
	for id := parents[runID]; id != ""; id = parents[id] {
		if _, ok := parents[id]; !ok {
			break
		}
		depth++
		if depth > len(l.Nodes) {
			break
		}
	}
	return depth
}

// Tree renders the lineage as an indented tree, one run per line.
func (l *Lineage) Tree() string {
	var sb strings.Builder
	var walk func(n Node, prefix string, last, root bool)
	walk = func(n Node, prefix string, last, root bool) {
		branch, next := "", ""
		if !root {
			branch, next = "├── ", "│   "
			if last {
				branch, next = "└── ", "    "
			}
		}
		sb.WriteString(prefix + branch + n.RunID)
		if n.Checkpoint != "" {
			fmt.Fprintf(&sb, " (from %s)", n.Checkpoint)
		}
		sb.WriteByte('\n')

		children := l.Children(n.RunID)
		for i, c := range children {
			walk(c, prefix+next, i == len(children)-1, false)
		}
	}
	for _, root := range l.Roots() {
		walk(root, "", true, true)
	}
	return sb.String()
}
