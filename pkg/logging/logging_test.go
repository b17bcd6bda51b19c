package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.Debug("hidden")
	if buf.Len() > 0 {
		t.Errorf("expected no output for debug at info level, got: %s", buf.String())
	}

	logger.Info("shown")
	if !strings.Contains(buf.String(), `"level":"info"`) {
		t.Errorf("expected info entry, got: %s", buf.String())
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelDebug, FormatJSON)
	logger.SetOutput(&buf)

	logger.Warn("watch out", map[string]any{"path": "/tmp/x"})

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.Level != LevelWarn {
		t.Errorf("expected warn, got %s", entry.Level)
	}
	if entry.Message != "watch out" {
		t.Errorf("unexpected message: %s", entry.Message)
	}
	if entry.Fields["path"] != "/tmp/x" {
		t.Errorf("unexpected fields: %v", entry.Fields)
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	scoped := logger.WithFields(map[string]any{"component": "tracker"})
	scoped.Info("tracked", map[string]any{"operation": "move"})

	out := buf.String()
	if !strings.Contains(out, `"component":"tracker"`) {
		t.Errorf("expected scoped field in output, got: %s", out)
	}
	if !strings.Contains(out, `"operation":"move"`) {
		t.Errorf("expected call field in output, got: %s", out)
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatText)
	logger.SetOutput(&buf)

	logger.Error("broke", map[string]any{"b": 2, "a": 1})

	out := buf.String()
	if !strings.Contains(out, "[ERROR] broke") {
		t.Errorf("unexpected text output: %s", out)
	}
	// Fields are emitted sorted by key.
	if strings.Index(out, "a=1") > strings.Index(out, "b=2") {
		t.Errorf("expected sorted fields, got: %s", out)
	}
}

func TestLogger_ErrorErr(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelInfo, FormatJSON)
	logger.SetOutput(&buf)

	logger.ErrorErr("persist failed", errForTest("disk full"))

	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("expected error value in output, got: %s", buf.String())
	}
}

func TestLogger_DynamicLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LevelDebug, FormatJSON)
	logger.SetOutput(&buf)

	logger.Log(LevelWarn, "mirrored")
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected warn entry, got: %s", buf.String())
	}

	buf.Reset()
	logger.Log(Level("bogus"), "mirrored")
	if !strings.Contains(buf.String(), `"level":"info"`) {
		t.Errorf("expected unknown level to map to info, got: %s", buf.String())
	}
}

func TestNewLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger := NewLogger(Level("nope"), FormatJSON)
	if logger.level != LevelInfo {
		t.Errorf("expected info, got %s", logger.level)
	}
}

type errForTest string

func (e errForTest) Error() string { return string(e) }
