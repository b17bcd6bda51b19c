// Package progress provides progress reporting for long-running operations.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Callback receives progress updates during long operations, e.g. each
// reversal step of a rollback.
type Callback func(op string, current, total int, message string)

// Noop is a no-op callback for default behavior.
func Noop(op string, current, total int, message string) {}

// Progress tracks operation progress.
type Progress struct {
	Op      string
	Total   int
	current int
	cb      Callback
}

// New creates a new Progress tracker.
func New(op string, total int, cb Callback) *Progress {
	if cb == nil {
		cb = Noop
	}
	return &Progress{Op: op, Total: total, cb: cb}
}

// Increment advances the progress and calls the callback.
func (p *Progress) Increment(message string) {
	p.current++
	p.cb(p.Op, p.current, p.Total, message)
}

// Done marks the operation as complete.
func (p *Progress) Done(message string) {
	p.current = p.Total
	p.cb(p.Op, p.current, p.Total, message)
}

// Current returns the current progress value.
func (p *Progress) Current() int {
	return p.current
}

// Terminal renders a single-line terminal progress bar. It is safe for use
// as a Callback via its Update method.
type Terminal struct {
	writer  io.Writer
	enabled bool
	lastLen int
}

// NewTerminal creates a terminal progress renderer writing to stderr.
func NewTerminal(enabled bool) *Terminal {
	return &Terminal{writer: os.Stderr, enabled: enabled}
}

// Update renders the current progress state. Satisfies Callback.
func (t *Terminal) Update(op string, current, total int, message string) {
	if !t.enabled || total <= 0 {
		return
	}

	const width = 30
	filled := current * width / total
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", width-filled)
	line := fmt.Sprintf("\r%s [%s] %d/%d %s", op, bar, current, total, message)

	if pad := t.lastLen - len(line); pad > 0 {
		line += strings.Repeat(" ", pad)
	}
	t.lastLen = len(line)

	fmt.Fprint(t.writer, line)
	if current >= total {
		fmt.Fprintln(t.writer)
	}
}
