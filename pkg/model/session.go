package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionCompleted   SessionStatus = "completed"
	SessionCancelled   SessionStatus = "cancelled"
	SessionDryRun      SessionStatus = "dry_run"
	SessionInterrupted SessionStatus = "interrupted"
	SessionRolledBack  SessionStatus = "rolled_back"
	SessionFailed      SessionStatus = "failed"
)

// Terminal reports whether the status ends the session lifecycle. Terminal
// sessions are archived and removed from the current-session slot.
func (s SessionStatus) Terminal() bool {
	return s != SessionActive
}

// NewSessionID generates a session id: <YYYYMMDD_HHMMSS>_<rand8hex>.
func NewSessionID(now time.Time) string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("vibepruner: crypto/rand failed (system error): " + err.Error())
	}
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), hex.EncodeToString(b[:]))
}

// Checkpoint is a named, timestamped snapshot of driver-supplied progress
// data, used by a resumed session to recover where the driver left off.
type Checkpoint struct {
	Name      string         `json:"name"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// SessionError is one error recorded against a session.
type SessionError struct {
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error"`
	Phase     string         `json:"phase,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// OperationRecord is a driver-supplied operation payload recorded in the
// session. The shape is caller-defined; the session manager only stamps
// timestamp and status.
type OperationRecord map[string]any

// Session is the crash-recoverable unit of work for one run against one
// project. Exactly one session may be active per work directory.
type Session struct {
	ID                  string                    `json:"id"`
	ProjectPath         string                    `json:"project_path"`
	StartedAt           time.Time                 `json:"started_at"`
	EndedAt             *time.Time                `json:"ended_at,omitempty"`
	ResumedAt           *time.Time                `json:"resumed_at,omitempty"`
	Status              SessionStatus             `json:"status"`
	Phase               string                    `json:"phase"`
	PhaseUpdatedAt      *time.Time                `json:"phase_updated_at,omitempty"`
	PhaseMetadata       map[string]map[string]any `json:"phase_metadata,omitempty"`
	Checkpoints         []Checkpoint              `json:"checkpoints"`
	CompletedOperations []OperationRecord         `json:"completed_operations"`
	PendingOperations   []OperationRecord         `json:"pending_operations"`
	Errors              []SessionError            `json:"errors"`
	Stats               map[string]int64          `json:"stats"`
	Interrupted         bool                      `json:"interrupted,omitempty"`
	InterruptSignal     string                    `json:"interrupt_signal,omitempty"`
	DurationSeconds     float64                   `json:"duration_seconds,omitempty"`
}

// NewSession creates a fresh active session for a project.
func NewSession(projectPath string, now time.Time) *Session {
	return &Session{
		ID:          NewSessionID(now),
		ProjectPath: projectPath,
		StartedAt:   now,
		Status:      SessionActive,
		Phase:       "initialization",
		Checkpoints: []Checkpoint{},
		CompletedOperations: []OperationRecord{},
		PendingOperations:   []OperationRecord{},
		Errors:              []SessionError{},
		Stats: map[string]int64{
			"files_analyzed":       0,
			"files_processed":      0,
			"tests_run":            0,
			"operations_completed": 0,
		},
	}
}

// SessionSummary is a condensed view of a session for reporting.
type SessionSummary struct {
	ID              string           `json:"id"`
	Phase           string           `json:"phase"`
	Status          SessionStatus    `json:"status"`
	DurationSeconds float64          `json:"duration_seconds"`
	Stats           map[string]int64 `json:"stats"`
	ErrorCount      int              `json:"error_count"`
	CheckpointCount int              `json:"checkpoint_count"`
}

// LockRecord is stored at .vibepruner/session.lock. It is the sole
// cross-process mutual-exclusion primitive: only the holder may run a
// session. A record older than the staleness threshold is abandoned and
// eligible for takeover.
type LockRecord struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	PID       int       `json:"pid"`
}

// IsStale reports whether the lock is older than the staleness threshold.
func (l *LockRecord) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(l.Timestamp) > threshold
}
