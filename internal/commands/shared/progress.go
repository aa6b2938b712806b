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
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const barWidth = 30

// ProgressBar renders step progress of a run as a single redrawn line:
//
//	run 1a2b3c4d  42%|████████████▌                 | 42/100 [00:01<00:02, 40.0 it/s]
//
// Without a terminal only the final line of each run is printed.
type ProgressBar struct {
	mu       sync.Mutex
	out      io.Writer
	isTTY    bool
	disabled bool
	now      func() time.Time

	runID   string
	total   int
	current int
	started time.Time
}

// NewProgressBar creates a bar writing to out, usually stderr. A disabled
// bar prints nothing.
func NewProgressBar(out io.Writer, disabled bool) *ProgressBar {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return &ProgressBar{
		out:      out,
		isTTY:    isTTY,
		disabled: disabled,
		now:      time.Now,
	}
}

// Start begins a run of total steps.
func (p *ProgressBar) Start(runID string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.runID = runID
	p.total = total
	p.current = 0
	p.started = p.now()
	p.redraw()
}

// Advance records one completed step.
func (p *ProgressBar) Advance() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	p.redraw()
}

// Done ends the current run's line.
func (p *ProgressBar) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disabled {
		return
	}
	if p.isTTY {
		fmt.Fprint(p.out, "\r\033[K")
	}
	fmt.Fprintln(p.out, p.line())
}

func (p *ProgressBar) redraw() {
	if p.disabled || !p.isTTY {
		return
	}
	fmt.Fprint(p.out, "\r\033[K"+p.line())
}

// line renders the bar; callers hold mu.
func (p *ProgressBar) line() string {
	frac := 1.0
	if p.total > 0 {
		frac = float64(p.current) / float64(p.total)
	}

	elapsed := p.now().Sub(p.started)
	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(p.current) / s
	}
	remaining := time.Duration(0)
	if rate > 0 && p.current < p.total {
		remaining = time.Duration(float64(p.total-p.current) / rate * float64(time.Second))
	}

	label := p.runID
	if len(label) > 8 {
		label = label[:8]
	}

	return fmt.Sprintf("run %s %3.0f%%|%s| %d/%d [%s<%s, %.1f it/s]",
		Muted.Render(label), frac*100, renderBar(frac), p.current, p.total,
		formatClock(elapsed), formatClock(remaining), rate)
}

// renderBar fills barWidth cells with full blocks and one partial block.
func renderBar(frac float64) string {
	partials := []string{"", "▏", "▎", "▍", "▌", "▋", "▊", "▉"}

	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	eighths := int(frac * barWidth * 8)
	full := eighths / 8
	bar := strings.Repeat("█", full)
	if full < barWidth {
		bar += partials[eighths%8]
		bar += strings.Repeat(" ", barWidth-full-len([]rune(partials[eighths%8])))
	}
	return bar
}

// formatClock formats d as mm:ss, or h:mm:ss past an hour.
func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
