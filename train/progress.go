// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Verbosity levels for Fit and Evaluate.
const (
	Silent = 0
	// Progress shows the per-batch progress line.
	Progress = 1
	// ProgressOnTerminal shows the progress line only when the output is a terminal.
	ProgressOnTerminal = 2
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // File descriptors fit in int.
}

// progress is a single console line rewritten after every batch and erased
// when the pass ends.
type progress struct {
	out         io.Writer
	description string
	total       int
	start       time.Time
	now         func() time.Time
	enabled     bool
	width       int
}

func newProgress(out io.Writer, description string, total int, enabled bool, now func() time.Time) *progress {
	return &progress{
		out:         out,
		description: description,
		total:       total,
		start:       now(),
		now:         now,
		enabled:     enabled,
	}
}

// Update redraws the line for the given completed step count.
func (p *progress) Update(step int, logs Logs) {
	if !p.enabled {
		return
	}
	elapsed := p.now().Sub(p.start)
	line := fmt.Sprintf("%s %s %d/%d [%s", p.description, logs, step, p.total, formatDuration(elapsed))
	if secs := elapsed.Seconds(); secs > 0 {
		line += fmt.Sprintf(", %.2fbatch/s", float64(step)/secs)
	}
	line += "]"

	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.out, "\r%s%s", line, pad)
	p.width = len(line)
}

// Close erases the line.
func (p *progress) Close() {
	if !p.enabled || p.width == 0 {
		return
	}
	fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", p.width))
	p.width = 0
}

// formatDuration formats d as MM:SS.
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
