package tracker

import (
	"fmt"
	"os"

	"github.com/vibepruner/vibepruner/internal/integrity"
	"github.com/vibepruner/vibepruner/pkg/model"
)

// GetMigrationSummary aggregates the master migration log.
func (t *Tracker) GetMigrationSummary() *model.MigrationSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &model.MigrationSummary{
		TotalMigrations: len(t.migrations),
		ByOperation:     make(map[model.Operation]int),
	}
	for _, rec := range t.migrations {
		switch rec.Status {
		case model.MigrationSuccess:
			s.Successful++
			s.TotalSizeMoved += rec.FileSize
		case model.MigrationFailed:
			s.Failed++
		case model.MigrationPending:
			s.Pending++
		case model.MigrationRolledBack:
			s.RolledBack++
		}
		s.ByOperation[rec.Operation]++
	}
	return s
}

// VerifyMigrationIntegrity re-hashes every successful destination and
// reports non-fatal findings. A pending record is an unknown outcome (the
// process may have died mid-operation) and is flagged for reconciliation.
// source_not_removed after a move is reported unconditionally; only a caller
// that knows a rollback just ran may filter it.
func (t *Tracker) VerifyMigrationIntegrity() []model.IntegrityIssue {
	t.mu.Lock()
	defer t.mu.Unlock()

	var issues []model.IntegrityIssue
	for _, rec := range t.migrations {
		if rec.Status == model.MigrationPending {
			issues = append(issues, model.IntegrityIssue{
				Type:    model.IssueUnknownOutcome,
				Message: fmt.Sprintf("operation outcome unknown, needs reconciliation: %s %s", rec.Operation, rec.SourcePath),
				Record:  rec,
			})
			continue
		}
		if rec.Status != model.MigrationSuccess {
			continue
		}

		if rec.DestPath != "" && rec.DestHash != "" {
			if _, err := os.Stat(rec.DestPath); err != nil {
				issues = append(issues, model.IntegrityIssue{
					Type:    model.IssueMissingDestination,
					Message: fmt.Sprintf("destination file missing: %s", rec.DestPath),
					Record:  rec,
				})
			} else if current, err := integrity.FileSHA256(rec.DestPath); err == nil && current != rec.DestHash {
				issues = append(issues, model.IntegrityIssue{
					Type:         model.IssueHashMismatch,
					Message:      fmt.Sprintf("file hash changed: %s", rec.DestPath),
					Record:       rec,
					ExpectedHash: rec.DestHash,
					CurrentHash:  current,
				})
			}
		}

		if rec.Operation == model.OpMove && rec.SourcePath != "" {
			if _, err := os.Stat(rec.SourcePath); err == nil {
				issues = append(issues, model.IntegrityIssue{
					Type:    model.IssueSourceNotRemoved,
					Message: fmt.Sprintf("source file still exists after move: %s", rec.SourcePath),
					Record:  rec,
				})
			}
		}
	}
	return issues
}
