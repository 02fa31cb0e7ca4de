package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress tracks and displays source processing progress on a single
// terminal line.
type Progress struct {
	startTime time.Time
	output    io.Writer
	total     int
	completed int
	failed    int
	skipped   int
	mu        sync.RWMutex
	enabled   bool
}

// NewProgress creates a new progress tracker for total sources.
func NewProgress(total int, enabled bool) *Progress {
	return &Progress{
		total:     total,
		startTime: time.Now(),
		output:    os.Stderr,
		enabled:   enabled,
	}
}

// SetOutput redirects the progress line.
func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	p.output = w
	p.mu.Unlock()
}

// SetSkipped records how many files the plan skipped before processing.
func (p *Progress) SetSkipped(n int) {
	p.mu.Lock()
	p.skipped = n
	p.mu.Unlock()
}

// Update records the completion of a task.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.completed = completed
	p.total = total
	p.failed = failed
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// Callback returns a ProgressFunc suitable for use with Pool.Config.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

// Print displays the current progress to output.
func (p *Progress) Print() {
	p.mu.RLock()
	completed, total, failed := p.completed, p.total, p.failed
	startTime, out := p.startTime, p.output
	p.mu.RUnlock()

	elapsed := time.Since(startTime)

	var rate float64
	var eta time.Duration
	if completed > 0 {
		rate = float64(completed) / elapsed.Seconds()
		if rate > 0 {
			eta = time.Duration(float64(total-completed)/rate) * time.Second
		}
	}

	fmt.Fprint(out, "\r"+renderLine(completed, total, failed, rate, eta, elapsed)+"          ")
}

func renderLine(completed, total, failed int, rate float64, eta, elapsed time.Duration) string {
	const barWidth = 30
	filled := barWidth
	if total > 0 {
		filled = completed * barWidth / total
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %d/%d sources", bar, completed, total)
	if failed > 0 {
		fmt.Fprintf(&sb, " (%d failed)", failed)
	}
	fmt.Fprintf(&sb, " - %.1f sources/sec", rate)
	switch {
	case completed >= total:
		fmt.Fprintf(&sb, " - Done in %s", formatDuration(elapsed))
	case eta > 0:
		fmt.Fprintf(&sb, " - ETA: %s", formatDuration(eta))
	}
	return sb.String()
}

// Done prints the final progress and a newline.
func (p *Progress) Done() {
	if p.enabled {
		p.Print()
		p.mu.RLock()
		fmt.Fprintln(p.output)
		p.mu.RUnlock()
	}
}

// Summary returns a summary string of the completed work.
func (p *Progress) Summary() string {
	p.mu.RLock()
	completed, total, failed, skipped := p.completed, p.total, p.failed, p.skipped
	startTime := p.startTime
	p.mu.RUnlock()

	elapsed := time.Since(startTime)

	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(completed) / elapsed.Seconds()
	}

	return fmt.Sprintf("Processed %d/%d sources (%d failed, %d files skipped) in %s (%.1f sources/sec)",
		completed-failed, total, failed, skipped, formatDuration(elapsed), rate)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
