// Package rollback creates restore points and reverses migrations recorded
// after them. Reversal is best-effort recovery: a single unreversed file
// must not block restoring the rest, so individual failures are accumulated
// and reported, never raised mid-batch.
package rollback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vibepruner/vibepruner/internal/tracker"
	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/errclass"
	"github.com/vibepruner/vibepruner/pkg/fsutil"
	"github.com/vibepruner/vibepruner/pkg/logging"
	"github.com/vibepruner/vibepruner/pkg/metrics"
	"github.com/vibepruner/vibepruner/pkg/model"
	"github.com/vibepruner/vibepruner/pkg/pathutil"
	"github.com/vibepruner/vibepruner/pkg/progress"
)

// Manager owns the work directory's rollback point files and the rollback
// attempt history.
type Manager struct {
	wd         *workdir.WorkDir
	tracker    *tracker.Tracker
	log        *logging.Logger
	reg        *metrics.Registry
	progressCb progress.Callback
	history    []*model.RollbackAttempt
}

// Option configures a Manager.
type Option func(*Manager)

// WithProgress wires a progress callback invoked per reversal step.
func WithProgress(cb progress.Callback) Option {
	return func(m *Manager) { m.progressCb = cb }
}

// New creates a rollback manager over the given tracker and work directory.
func New(wd *workdir.WorkDir, tr *tracker.Tracker, opts ...Option) (*Manager, error) {
	m := &Manager{
		wd:         wd,
		tracker:    tr,
		log:        logging.WithFields(map[string]any{"component": "rollback"}),
		reg:        metrics.Default(),
		progressCb: progress.Noop,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadHistory(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadHistory() error {
	data, err := os.ReadFile(m.wd.RollbackLogPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read rollback history: %w", err)
	}
	if err := json.Unmarshal(data, &m.history); err != nil {
		m.log.ErrorErr("rollback history unparseable, starting empty", err)
		m.history = nil
	}
	return nil
}

// CreateRollbackPoint snapshots the current clock as a fence and writes a
// point file. Every migration recorded after this moment is in scope for a
// later RollbackToPoint.
func (m *Manager) CreateRollbackPoint(description string) (string, error) {
	now := time.Now()
	id := model.NewRollbackPointID(now)

	point := &model.RollbackPoint{
		ID:          id,
		Description: description,
		CreatedAt:   now,
		ProjectState: model.ProjectState{
			Timestamp: now,
			Files:     map[string]string{},
		},
		Status: model.RollbackPointActive,
	}

	if err := m.writePoint(point); err != nil {
		return "", err
	}

	m.log.Info("created rollback point", map[string]any{"rollback_id": id})
	return id, nil
}

// Result reports one RollbackToPoint invocation. A failed rollback is
// partial success with an itemized error list, not an opaque failure.
type Result struct {
	Success            bool     `json:"success"`
	Errors             []string `json:"errors"`
	MigrationsReversed int      `json:"migrations_reversed"`
}

// RollbackToPoint reverses, in strict reverse order, every migration
// recorded after the point was created. Successful operations are reversed
// and marked rolled_back; pending operations are unknown outcomes and are
// surfaced as errors needing reconciliation. When verify is set, a final
// integrity scan folds in any unexpected findings; source_not_removed is
// filtered here, and only here, because this caller knows a reversal just
// recreated those sources.
func (m *Manager) RollbackToPoint(id string, verify bool) (*Result, error) {
	started := time.Now()
	point, err := m.loadPoint(id)
	if err != nil {
		return nil, err
	}

	m.log.Info("starting rollback", map[string]any{"rollback_id": id})

	if _, err := m.tracker.StartTransaction(fmt.Sprintf("Rollback to %s", id)); err != nil {
		return nil, err
	}

	toReverse := m.tracker.MigrationsAfter(point.CreatedAt)
	m.log.Info("collected operations to reverse", map[string]any{"count": len(toReverse)})

	result := &Result{}
	for i := len(toReverse) - 1; i >= 0; i-- {
		rec := toReverse[i]
		m.progressCb("rollback", len(toReverse)-i, len(toReverse), rec.SourcePath)

		switch rec.Status {
		case model.MigrationSuccess:
			if err := m.tracker.ReverseRecord(rec); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf(
					"failed to reverse %s of %s: %v", rec.Operation, rec.SourcePath, err))
				continue
			}
			if err := m.tracker.MarkRolledBack(rec); err != nil {
				return nil, err
			}
			result.MigrationsReversed++
		case model.MigrationPending:
			result.Errors = append(result.Errors, fmt.Sprintf(
				"outcome of %s of %s is unknown (recorded but never completed), reconcile manually",
				rec.Operation, rec.SourcePath))
		default:
			// failed and already-rolled-back records changed nothing on disk
		}
	}

	if verify {
		for _, issue := range m.tracker.VerifyMigrationIntegrity() {
			if issue.Type == model.IssueSourceNotRemoved {
				continue
			}
			if issue.Type == model.IssueUnknownOutcome {
				continue // already reported above
			}
			result.Errors = append(result.Errors, issue.Message)
		}
	}

	result.Success = len(result.Errors) == 0

	if err := m.recordAttempt(id, result); err != nil {
		return nil, err
	}
	if result.Success {
		point.Status = model.RollbackPointConsumed
		if err := m.writePoint(point); err != nil {
			return nil, err
		}
	}
	if _, err := m.tracker.CommitTransaction(); err != nil {
		return nil, err
	}

	m.reg.RecordRollback(result.MigrationsReversed, len(result.Errors), time.Since(started))
	m.log.Info("rollback finished", map[string]any{
		"rollback_id": id,
		"success":     result.Success,
		"reversed":    result.MigrationsReversed,
		"errors":      len(result.Errors),
	})
	return result, nil
}

// ListRollbackPoints returns all rollback points, newest first. Unparseable
// point files are skipped.
func (m *Manager) ListRollbackPoints() ([]*model.RollbackPoint, error) {
	matches, err := filepath.Glob(filepath.Join(m.wd.Root, "rollback_*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob rollback points: %w", err)
	}

	var points []*model.RollbackPoint
	for _, file := range matches {
		if filepath.Base(file) == "rollback_log.json" {
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var point model.RollbackPoint
		if err := json.Unmarshal(data, &point); err != nil {
			m.log.Warn("skipping unparseable rollback point", map[string]any{"file": file})
			continue
		}
		points = append(points, &point)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].CreatedAt.After(points[j].CreatedAt)
	})
	return points, nil
}

// CleanupOldRollbackPoints deletes point files older than daysToKeep days
// and returns how many were removed.
func (m *Manager) CleanupOldRollbackPoints(daysToKeep int) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)

	matches, err := filepath.Glob(filepath.Join(m.wd.Root, "rollback_*.json"))
	if err != nil {
		return 0, fmt.Errorf("glob rollback points: %w", err)
	}

	cleaned := 0
	for _, file := range matches {
		if filepath.Base(file) == "rollback_log.json" {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				m.log.Warn("could not remove old rollback point", map[string]any{
					"file": file, "error": err.Error(),
				})
				continue
			}
			cleaned++
		}
	}

	m.log.Info("cleaned up old rollback points", map[string]any{"count": cleaned})
	return cleaned, nil
}

// History returns recorded rollback attempts, oldest first.
func (m *Manager) History() []*model.RollbackAttempt {
	out := make([]*model.RollbackAttempt, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) loadPoint(id string) (*model.RollbackPoint, error) {
	// Tolerate being handed the full file-style id.
	id = strings.TrimSuffix(strings.TrimPrefix(id, "rollback_"), ".json")

	// The id becomes a file name in the work directory root.
	if err := pathutil.ValidateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(m.wd.RollbackPointPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("rollback point not found: %s", id)
		}
		return nil, fmt.Errorf("read rollback point %s: %w", id, err)
	}
	var point model.RollbackPoint
	if err := json.Unmarshal(data, &point); err != nil {
		return nil, fmt.Errorf("parse rollback point %s: %w", id, err)
	}
	return &point, nil
}

func (m *Manager) writePoint(point *model.RollbackPoint) error {
	data, err := json.MarshalIndent(point, "", "  ")
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal rollback point: %v", err)
	}
	if err := fsutil.AtomicWrite(m.wd.RollbackPointPath(point.ID), data, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("write rollback point: %v", err)
	}
	return nil
}

func (m *Manager) recordAttempt(id string, result *Result) error {
	attempt := &model.RollbackAttempt{
		RollbackID:         id,
		Timestamp:          time.Now(),
		Success:            result.Success,
		Errors:             result.Errors,
		MigrationsReversed: result.MigrationsReversed,
	}
	m.history = append(m.history, attempt)

	data, err := json.MarshalIndent(m.history, "", "  ")
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal rollback history: %v", err)
	}
	if err := fsutil.AtomicWrite(m.wd.RollbackLogPath(), data, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("write rollback history: %v", err)
	}
	return nil
}
