// Package tracker records and verifies every attempted file operation. The
// migration log is the system of record: persistence failures are fatal,
// while hashing failures on a missing source are expected and non-fatal.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vibepruner/vibepruner/internal/integrity"
	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/errclass"
	"github.com/vibepruner/vibepruner/pkg/fsutil"
	"github.com/vibepruner/vibepruner/pkg/logging"
	"github.com/vibepruner/vibepruner/pkg/metrics"
	"github.com/vibepruner/vibepruner/pkg/model"
	"github.com/vibepruner/vibepruner/pkg/pathutil"
)

// Tracker tracks file migrations with checksums and metadata. At most one
// transaction may be in progress per tracker instance.
type Tracker struct {
	wd  *workdir.WorkDir
	log *logging.Logger
	reg *metrics.Registry

	mu         sync.Mutex
	migrations []*model.MigrationRecord
	current    *model.Transaction
}

// New opens the migration log under wd. A corrupt master log is backed up
// to migration_log.json.backup and tracking starts fresh; losing the ability
// to record new operations is worse than starting a new log.
func New(wd *workdir.WorkDir) (*Tracker, error) {
	t := &Tracker{
		wd:  wd,
		log: logging.WithFields(map[string]any{"component": "tracker"}),
		reg: metrics.Default(),
	}

	if err := t.loadMigrations(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) loadMigrations() error {
	path := t.wd.MigrationLogPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		t.migrations = []*model.MigrationRecord{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read migration log: %w", err)
	}

	var records []*model.MigrationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.log.ErrorErr("migration log corrupt, backing up and starting fresh", err)
		if err := fsutil.CopyFile(path, path+".backup"); err != nil {
			return fmt.Errorf("back up corrupt migration log: %w", err)
		}
		t.migrations = []*model.MigrationRecord{}
		return nil
	}
	t.migrations = records
	return nil
}

// StartTransaction starts a new migration transaction and persists it
// immediately. Fails if a transaction is already in progress; the tracker
// is not reentrant.
func (t *Tracker) StartTransaction(description string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		return "", errclass.ErrTransactionActive.WithMessagef(
			"transaction %s is already in progress", t.current.ID)
	}

	now := time.Now()
	t.current = &model.Transaction{
		ID:          model.NewTransactionID(description, now),
		Description: description,
		StartTime:   now,
		Operations:  []*model.MigrationRecord{},
		Status:      model.TxInProgress,
	}

	if err := t.persistTransactionLocked(); err != nil {
		t.current = nil
		return "", err
	}

	t.reg.RecordTransaction()
	t.log.Info("started transaction", map[string]any{
		"transaction_id": t.current.ID,
		"description":    description,
	})
	return t.current.ID, nil
}

// TrackMigration records one attempted file operation before the caller
// performs the actual I/O. The source hash and file facts are captured
// best-effort: a missing or unreadable source yields null fields, never an
// error. Persistence failures propagate.
func (t *Tracker) TrackMigration(source, dest string, op model.Operation, reason string, metadata map[string]any) (*model.MigrationRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trackLocked(source, dest, op, reason, metadata)
}

func (t *Tracker) trackLocked(source, dest string, op model.Operation, reason string, metadata map[string]any) (*model.MigrationRecord, error) {
	absSource, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	absDest := ""
	if dest != "" {
		if absDest, err = filepath.Abs(dest); err != nil {
			return nil, fmt.Errorf("resolve dest path: %w", err)
		}
	}

	// Archive destinations must stay inside the tree being pruned.
	if op == model.OpArchive && absDest != "" {
		if err := pathutil.ValidatePathSafety(t.wd.ProjectRoot, absDest); err != nil {
			return nil, err
		}
	}

	rec := &model.MigrationRecord{
		Timestamp:  time.Now(),
		Operation:  op,
		SourcePath: absSource,
		DestPath:   absDest,
		Reason:     reason,
		Metadata:   metadata,
		Status:     model.MigrationPending,
	}
	if t.current != nil {
		rec.TransactionID = t.current.ID
	}

	if hash, ok := integrity.TryFileSHA256(absSource); ok {
		rec.SourceHash = hash
	}
	if facts, ok := integrity.CaptureFacts(absSource); ok {
		rec.FileSize = facts.Size
		mod := facts.Modified
		rec.FileModified = &mod
		rec.FilePermissions = uint32(facts.Permissions)
	}

	if t.current != nil {
		t.current.Operations = append(t.current.Operations, rec)
		if err := t.persistTransactionLocked(); err != nil {
			return nil, err
		}
	}

	t.migrations = append(t.migrations, rec)
	if err := t.persistMigrationsLocked(); err != nil {
		return nil, err
	}

	t.reg.RecordMigration()
	t.log.Info("tracked migration", map[string]any{
		"operation": string(op),
		"source":    absSource,
		"dest":      absDest,
	})
	return rec, nil
}

// CompleteMigration sets the record's terminal status after the caller has
// performed the I/O. A record transitions exactly once. For move, copy and
// archive operations a reported success is downgraded to failed when the
// destination is missing or its hash does not match the captured source
// hash; integrity mismatches are never silent.
func (t *Tracker) CompleteMigration(rec *model.MigrationRecord, success bool, opErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completeLocked(rec, success, opErr)
}

func (t *Tracker) completeLocked(rec *model.MigrationRecord, success bool, opErr error) error {
	if rec.Status != model.MigrationPending {
		return errclass.ErrAlreadyCompleted.WithMessagef(
			"record for %s already %s", rec.SourcePath, rec.Status)
	}

	now := time.Now()
	rec.CompletedAt = &now
	if success {
		rec.Status = model.MigrationSuccess
	} else {
		rec.Status = model.MigrationFailed
	}
	if opErr != nil {
		rec.Error = opErr.Error()
	}

	transfer := rec.Operation == model.OpMove || rec.Operation == model.OpCopy || rec.Operation == model.OpArchive

	if success && rec.DestPath != "" {
		if hash, err := integrity.FileSHA256(rec.DestPath); err == nil {
			rec.DestHash = hash
			if transfer && rec.SourceHash != "" && rec.SourceHash != rec.DestHash {
				rec.Status = model.MigrationFailed
				rec.Error = errclass.ErrIntegrity.WithMessagef(
					"hash mismatch after %s: %s", rec.Operation, rec.SourcePath).Error()
				t.log.Error("hash verification failed", map[string]any{
					"source": rec.SourcePath,
					"dest":   rec.DestPath,
				})
			}
		} else if transfer {
			rec.Status = model.MigrationFailed
			rec.Error = errclass.ErrIntegrity.WithMessagef(
				"destination missing after %s: %s", rec.Operation, rec.DestPath).Error()
		}
	}

	if err := t.persistMigrationsLocked(); err != nil {
		return err
	}
	if t.current != nil {
		if err := t.persistTransactionLocked(); err != nil {
			return err
		}
	}

	t.reg.RecordCompletion(rec.Status == model.MigrationSuccess)
	t.log.Info("migration completed", map[string]any{
		"operation": string(rec.Operation),
		"source":    rec.SourcePath,
		"status":    string(rec.Status),
	})
	return nil
}

// CommitTransaction marks the active transaction committed, or
// partial_failure when any member record is not success, archives it to a
// per-transaction file, and clears the active-transaction state.
func (t *Tracker) CommitTransaction() (*model.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return nil, errclass.ErrNoTransaction.WithMessage("no active transaction to commit")
	}

	tx := t.current
	now := time.Now()
	tx.EndTime = &now
	tx.Status = model.TxCommitted

	failed := 0
	for _, op := range tx.Operations {
		if op.Status != model.MigrationSuccess {
			failed++
		}
	}
	if failed > 0 {
		tx.Status = model.TxPartialFailure
		tx.FailedOperations = failed
	}

	if err := t.archiveTransactionLocked(tx); err != nil {
		return nil, err
	}
	if err := os.Remove(t.wd.TransactionLogPath()); err != nil && !os.IsNotExist(err) {
		return nil, errclass.ErrPersistence.WithMessagef("clear transaction log: %v", err)
	}

	t.current = nil
	t.log.Info("committed transaction", map[string]any{
		"transaction_id": tx.ID,
		"status":         string(tx.Status),
	})
	return tx, nil
}

// RollbackTransaction reverses, in reverse order, every successful operation
// of the given transaction (or the active one when id is empty), marking
// reversed records rolled_back. Individual reversal failures are recorded on
// the record and do not abort the remainder.
func (t *Tracker) RollbackTransaction(transactionID string) (*model.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var tx *model.Transaction
	switch {
	case transactionID == "":
		if t.current == nil {
			return nil, errclass.ErrNoTransaction.WithMessage("no transaction to roll back")
		}
		tx = t.current
	case t.current != nil && t.current.ID == transactionID:
		tx = t.current
	default:
		loaded, err := t.loadTransactionLocked(transactionID)
		if err != nil {
			return nil, err
		}
		tx = loaded
	}

	t.log.Info("rolling back transaction", map[string]any{"transaction_id": tx.ID})

	now := time.Now()
	for i := len(tx.Operations) - 1; i >= 0; i-- {
		op := tx.Operations[i]
		if op.Status != model.MigrationSuccess {
			continue
		}
		if err := t.reverseLocked(op); err != nil {
			op.RollbackError = err.Error()
			t.log.ErrorErr("failed to reverse operation", err, map[string]any{
				"operation": string(op.Operation),
				"source":    op.SourcePath,
			})
			continue
		}
		rbTime := now
		op.Status = model.MigrationRolledBack
		op.RollbackTime = &rbTime
	}

	tx.Status = model.TxRolledBack
	tx.RollbackTime = &now

	if tx == t.current {
		if err := t.persistTransactionLocked(); err != nil {
			return nil, err
		}
	} else {
		t.syncMasterLocked(tx)
		if err := t.archiveTransactionLocked(tx); err != nil {
			return nil, err
		}
	}
	if err := t.persistMigrationsLocked(); err != nil {
		return nil, err
	}

	t.log.Info("completed transaction rollback", map[string]any{"transaction_id": tx.ID})
	return tx, nil
}

// ReverseRecord reverses a single successful operation. This is the shared
// reversal primitive used by both transaction rollback and the rollback
// manager's point-in-time restore.
func (t *Tracker) ReverseRecord(rec *model.MigrationRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reverseLocked(rec)
}

// MarkRolledBack transitions a successful record to rolled_back and persists
// the master log. Used by the rollback manager after ReverseRecord succeeds.
func (t *Tracker) MarkRolledBack(rec *model.MigrationRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec.Status != model.MigrationSuccess {
		return errclass.ErrReversalFailed.WithMessagef(
			"cannot mark %s record rolled back: %s", rec.Status, rec.SourcePath)
	}
	now := time.Now()
	rec.Status = model.MigrationRolledBack
	rec.RollbackTime = &now
	return t.persistMigrationsLocked()
}

// Migrations returns a snapshot of the master migration log.
func (t *Tracker) Migrations() []*model.MigrationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*model.MigrationRecord, len(t.migrations))
	copy(out, t.migrations)
	return out
}

// MigrationsAfter returns records with a timestamp strictly after ts, in
// log order.
func (t *Tracker) MigrationsAfter(ts time.Time) []*model.MigrationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*model.MigrationRecord
	for _, rec := range t.migrations {
		if rec.Timestamp.After(ts) {
			out = append(out, rec)
		}
	}
	return out
}

// CurrentTransactionID returns the active transaction id, or empty.
func (t *Tracker) CurrentTransactionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return ""
	}
	return t.current.ID
}

// LoadTransaction loads an archived transaction by id. The active
// transaction is returned directly when the id matches.
func (t *Tracker) LoadTransaction(id string) (*model.Transaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.ID == id {
		return t.current, nil
	}
	return t.loadTransactionLocked(id)
}

// ListTransactions returns all archived transactions.
func (t *Tracker) ListTransactions() ([]*model.Transaction, error) {
	entries, err := os.ReadDir(t.wd.TransactionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read transactions dir: %w", err)
	}

	var txs []*model.Transaction
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(t.wd.TransactionsDir(), e.Name()))
		if err != nil {
			continue
		}
		var tx model.Transaction
		if err := json.Unmarshal(data, &tx); err != nil {
			t.log.Warn("skipping unparseable transaction file", map[string]any{"file": e.Name()})
			continue
		}
		txs = append(txs, &tx)
	}
	return txs, nil
}

func (t *Tracker) loadTransactionLocked(id string) (*model.Transaction, error) {
	// The id becomes a file name under transactions/; reject anything that
	// could resolve outside it.
	if err := pathutil.ValidateID(id); err != nil {
		return nil, err
	}
	path := filepath.Join(t.wd.TransactionsDir(), id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("transaction not found: %s", id)
		}
		return nil, fmt.Errorf("read transaction %s: %w", id, err)
	}
	var tx model.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("parse transaction %s: %w", id, err)
	}
	return &tx, nil
}

// syncMasterLocked copies terminal rollback state from a loaded transaction's
// records onto the matching master-log records. The live transaction shares
// record pointers with the master log, but a transaction loaded from its
// archive file does not.
func (t *Tracker) syncMasterLocked(tx *model.Transaction) {
	for _, op := range tx.Operations {
		for _, rec := range t.migrations {
			if rec.TransactionID == tx.ID &&
				rec.SourcePath == op.SourcePath &&
				rec.Operation == op.Operation &&
				rec.Timestamp.Equal(op.Timestamp) {
				rec.Status = op.Status
				rec.RollbackTime = op.RollbackTime
				rec.RollbackError = op.RollbackError
				break
			}
		}
	}
}

func (t *Tracker) persistMigrationsLocked() error {
	data, err := json.MarshalIndent(t.migrations, "", "  ")
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal migration log: %v", err)
	}
	if err := fsutil.AtomicWrite(t.wd.MigrationLogPath(), data, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("write migration log: %v", err)
	}
	return nil
}

func (t *Tracker) persistTransactionLocked() error {
	if t.current == nil {
		return nil
	}
	data, err := json.MarshalIndent(t.current, "", "  ")
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal transaction: %v", err)
	}
	if err := fsutil.AtomicWrite(t.wd.TransactionLogPath(), data, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("write transaction log: %v", err)
	}
	return nil
}

func (t *Tracker) archiveTransactionLocked(tx *model.Transaction) error {
	if err := os.MkdirAll(t.wd.TransactionsDir(), 0755); err != nil {
		return errclass.ErrPersistence.WithMessagef("create transactions dir: %v", err)
	}
	data, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal transaction: %v", err)
	}
	path := filepath.Join(t.wd.TransactionsDir(), tx.ID+".json")
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("archive transaction: %v", err)
	}
	return nil
}
