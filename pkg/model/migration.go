package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Operation identifies the kind of file operation a migration record describes.
type Operation string

const (
	OpMove            Operation = "move"
	OpCopy            Operation = "copy"
	OpArchive         Operation = "archive"
	OpDelete          Operation = "delete"
	OpConsolidate     Operation = "consolidate"
	OpRollbackMove    Operation = "rollback_move"
	OpRollbackRestore Operation = "rollback_restore"
)

// Reversible reports whether the operation moved content somewhere it can be
// recovered from. Deletes are only reversible through an archived copy.
func (o Operation) Reversible() bool {
	switch o {
	case OpMove, OpCopy, OpArchive, OpConsolidate:
		return true
	}
	return false
}

// MigrationStatus is the lifecycle state of a migration record.
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationSuccess    MigrationStatus = "success"
	MigrationFailed     MigrationStatus = "failed"
	MigrationRolledBack MigrationStatus = "rolled_back"
)

// MigrationRecord is the durable description of one attempted file operation.
// A record starts pending and transitions exactly once to success or failed;
// rolled_back is applied later when a reversal undoes a successful operation.
type MigrationRecord struct {
	Timestamp       time.Time       `json:"timestamp"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	Operation       Operation       `json:"operation"`
	SourcePath      string          `json:"source_path"`
	DestPath        string          `json:"dest_path,omitempty"`
	SourceHash      HashValue       `json:"source_hash,omitempty"`
	DestHash        HashValue       `json:"dest_hash,omitempty"`
	FileSize        int64           `json:"file_size"`
	FileModified    *time.Time      `json:"file_modified,omitempty"`
	FilePermissions uint32          `json:"file_permissions,omitempty"`
	Reason          string          `json:"reason"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	Status          MigrationStatus `json:"status"`
	Error           string          `json:"error,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	RollbackTime    *time.Time      `json:"rollback_time,omitempty"`
	RollbackError   string          `json:"rollback_error,omitempty"`
}

// ArchivePath returns the archived-copy location recorded for a delete, if
// any. Deletes without one are irreversible.
func (r *MigrationRecord) ArchivePath() string {
	if r.Metadata == nil {
		return ""
	}
	if p, ok := r.Metadata["archive_path"].(string); ok {
		return p
	}
	return ""
}

// TransactionStatus is the lifecycle state of a transaction.
type TransactionStatus string

const (
	TxInProgress     TransactionStatus = "in_progress"
	TxCommitted      TransactionStatus = "committed"
	TxPartialFailure TransactionStatus = "partial_failure"
	TxRolledBack     TransactionStatus = "rolled_back"
)

// Transaction is an ordered, append-only batch of migration records sharing
// one id. Only one transaction may be in progress per tracker instance.
type Transaction struct {
	ID               string             `json:"id"`
	Description      string             `json:"description"`
	StartTime        time.Time          `json:"start_time"`
	EndTime          *time.Time         `json:"end_time,omitempty"`
	Operations       []*MigrationRecord `json:"operations"`
	Status           TransactionStatus  `json:"status"`
	FailedOperations int                `json:"failed_operations,omitempty"`
	RollbackTime     *time.Time         `json:"rollback_time,omitempty"`
}

// NewTransactionID derives a transaction id from the clock and the
// description: <YYYYMMDD_HHMMSS>_<sha256(description)[:8]>.
func NewTransactionID(description string, now time.Time) string {
	sum := sha256.Sum256([]byte(description))
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), hex.EncodeToString(sum[:])[:8])
}

// MigrationSummary aggregates the master migration log for reporting.
type MigrationSummary struct {
	TotalMigrations int               `json:"total_migrations"`
	Successful      int               `json:"successful"`
	Failed          int               `json:"failed"`
	Pending         int               `json:"pending"`
	RolledBack      int               `json:"rolled_back"`
	ByOperation     map[Operation]int `json:"by_operation"`
	TotalSizeMoved  int64             `json:"total_size_moved"`
}

// IntegrityIssueType classifies a finding from an integrity scan.
type IntegrityIssueType string

const (
	IssueMissingDestination IntegrityIssueType = "missing_destination"
	IssueHashMismatch       IntegrityIssueType = "hash_mismatch"
	IssueSourceNotRemoved   IntegrityIssueType = "source_not_removed"
	IssueUnknownOutcome     IntegrityIssueType = "unknown_outcome"
)

// IntegrityIssue is one non-fatal finding from VerifyMigrationIntegrity.
// source_not_removed is expected immediately after a rollback; callers that
// hold rollback context must filter it explicitly rather than the scan
// suppressing the signal.
type IntegrityIssue struct {
	Type         IntegrityIssueType `json:"type"`
	Message      string             `json:"message"`
	Record       *MigrationRecord   `json:"migration"`
	ExpectedHash HashValue          `json:"expected_hash,omitempty"`
	CurrentHash  HashValue          `json:"current_hash,omitempty"`
}
