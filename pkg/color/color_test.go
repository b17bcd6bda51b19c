package color

import (
	"strings"
	"testing"
)

func withEnabled(t *testing.T, on bool, fn func()) {
	mu.Lock()
	origResolved, origEnabled := resolved, enabled
	resolved, enabled = true, on
	mu.Unlock()

	defer func() {
		mu.Lock()
		resolved, enabled = origResolved, origEnabled
		mu.Unlock()
	}()
	fn()
}

func TestWrappers_Enabled(t *testing.T) {
	withEnabled(t, true, func() {
		if !strings.Contains(Error("boom"), "boom") {
			t.Error("expected wrapped text to contain input")
		}
		if !strings.HasPrefix(Error("boom"), red) {
			t.Error("expected error color code prefix")
		}
		if !strings.HasPrefix(Success("ok"), green) {
			t.Error("expected success color code prefix")
		}
		if !strings.HasPrefix(Warn("hm"), yellow) {
			t.Error("expected warn color code prefix")
		}
	})
}

func TestWrappers_Disabled(t *testing.T) {
	withEnabled(t, false, func() {
		if Error("boom") != "boom" {
			t.Errorf("expected passthrough, got %q", Error("boom"))
		}
		if Success("ok") != "ok" {
			t.Errorf("expected passthrough, got %q", Success("ok"))
		}
	})
}
