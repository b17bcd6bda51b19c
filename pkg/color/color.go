// Package color provides terminal color output support.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"fmt"
	"os"
	"sync"
)

var (
	mu       sync.Mutex
	resolved bool
	enabled  bool
)

// Init initializes color support based on environment and flags.
func Init(noColorFlag bool) {
	mu.Lock()
	defer mu.Unlock()
	if resolved {
		return
	}
	resolved = true
	enabled = true
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		enabled = false
	}
	if os.Getenv("TERM") == "dumb" {
		enabled = false
	}
	if noColorFlag {
		enabled = false
	}
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
)

func wrap(code, s string) string {
	if !Enabled() {
		return s
	}
	return fmt.Sprintf("%s%s%s", code, s, reset)
}

// Error colors a string for error output.
func Error(s string) string { return wrap(red, s) }

// Success colors a string for success output.
func Success(s string) string { return wrap(green, s) }

// Warn colors a string for warning output.
func Warn(s string) string { return wrap(yellow, s) }
