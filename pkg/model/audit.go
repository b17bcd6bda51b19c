package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// AuditEventType identifies the type of auditable event.
type AuditEventType string

const (
	EventSessionStart     AuditEventType = "session_start"
	EventSessionEnd       AuditEventType = "session_end"
	EventFileScan         AuditEventType = "file_scan"
	EventFileAnalyze      AuditEventType = "file_analyze"
	EventProposalGenerate AuditEventType = "proposal_generate"
	EventUserDecision     AuditEventType = "user_decision"
	EventFileOperation    AuditEventType = "file_operation"
	EventTestRun          AuditEventType = "test_run"
	EventTestCompare      AuditEventType = "test_compare"
	EventRollback         AuditEventType = "rollback"
	EventError            AuditEventType = "error"
	EventWarning          AuditEventType = "warning"
	EventConfigChange     AuditEventType = "config_change"
	EventPermissionCheck  AuditEventType = "permission_check"
)

// AuditContext captures where an audit entry was produced.
type AuditContext struct {
	ProcessID        int    `json:"process_id"`
	WorkingDirectory string `json:"working_directory"`
	User             string `json:"user,omitempty"`
	Hostname         string `json:"hostname,omitempty"`
}

// AuditEntry is a single line in the audit log (JSONL format). The checksum
// covers the canonical JSON form of the entry with the checksum field itself
// excluded, making each line individually tamper-evident.
type AuditEntry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Details     map[string]any `json:"details,omitempty"`
	Context     AuditContext   `json:"context"`
	Checksum    HashValue      `json:"checksum,omitempty"`
}

// NewAuditEntryID generates an entry id: <RFC3339Nano timestamp>-<rand16hex>.
func NewAuditEntryID(now time.Time) string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("vibepruner: crypto/rand failed (system error): " + err.Error())
	}
	return fmt.Sprintf("%s-%s", now.Format(time.RFC3339Nano), hex.EncodeToString(b[:]))
}

// AuditLogHeader is the first entry written to each fresh log file.
type AuditLogHeader struct {
	Type       string         `json:"type"`
	Version    string         `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	SystemInfo map[string]any `json:"system_info,omitempty"`
}
