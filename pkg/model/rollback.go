package model

import (
	"fmt"
	"time"
)

// RollbackPointStatus is the lifecycle state of a rollback point.
type RollbackPointStatus string

const (
	RollbackPointActive   RollbackPointStatus = "active"
	RollbackPointConsumed RollbackPointStatus = "consumed"
)

// RollbackPoint is a timestamp fence: rolling back to it reverses every
// migration recorded after created_at. The project state snapshot is a
// lightweight placeholder; the migration log is the real record.
type RollbackPoint struct {
	ID           string              `json:"id"`
	Description  string              `json:"description"`
	CreatedAt    time.Time           `json:"created_at"`
	ProjectState ProjectState        `json:"project_state"`
	Status       RollbackPointStatus `json:"status"`
}

// ProjectState is a placeholder snapshot captured when a rollback point is
// created. Verification relies on the migration tracker's records.
type ProjectState struct {
	Timestamp   time.Time         `json:"timestamp"`
	Files       map[string]string `json:"files"`
	Directories []string          `json:"directories"`
}

// NewRollbackPointID derives a rollback point id from the clock:
// <YYYYMMDD_HHMMSS>_rollback.
func NewRollbackPointID(now time.Time) string {
	return fmt.Sprintf("%s_rollback", now.Format("20060102_150405"))
}

// RollbackAttempt is one line of rollback history: a single invocation of
// RollbackToPoint and its outcome.
type RollbackAttempt struct {
	RollbackID         string    `json:"rollback_id"`
	Timestamp          time.Time `json:"timestamp"`
	Success            bool      `json:"success"`
	Errors             []string  `json:"errors"`
	MigrationsReversed int       `json:"migrations_reversed"`
}
