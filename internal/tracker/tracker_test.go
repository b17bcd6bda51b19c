package tracker_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibepruner/vibepruner/internal/tracker"
	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/errclass"
	"github.com/vibepruner/vibepruner/pkg/fsutil"
	"github.com/vibepruner/vibepruner/pkg/model"
)

func newTestTracker(t *testing.T) (*tracker.Tracker, *workdir.WorkDir, string) {
	t.Helper()
	project := t.TempDir()
	wd, err := workdir.Init(project)
	require.NoError(t, err)
	tr, err := tracker.New(wd)
	require.NoError(t, err)
	return tr, wd, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// moveTracked performs a tracked, completed move the way a driver would.
func moveTracked(t *testing.T, tr *tracker.Tracker, src, dst string) *model.MigrationRecord {
	t.Helper()
	rec, err := tr.TrackMigration(src, dst, model.OpMove, "test move", nil)
	require.NoError(t, err)
	require.NoError(t, fsutil.MoveFile(src, dst))
	require.NoError(t, tr.CompleteMigration(rec, true, nil))
	return rec
}

func TestTrackMigration_CapturesSourceFacts(t *testing.T) {
	tr, _, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	writeFile(t, src, "hello")

	rec, err := tr.TrackMigration(src, filepath.Join(project, "b.txt"), model.OpMove, "dedupe", nil)
	require.NoError(t, err)

	assert.Equal(t, model.MigrationPending, rec.Status)
	assert.NotEmpty(t, rec.SourceHash)
	assert.Equal(t, int64(5), rec.FileSize)
	require.NotNil(t, rec.FileModified)
	assert.True(t, filepath.IsAbs(rec.SourcePath))
}

func TestTrackMigration_MissingSourceIsNotAnError(t *testing.T) {
	tr, _, project := newTestTracker(t)

	rec, err := tr.TrackMigration(filepath.Join(project, "ghost.txt"), "", model.OpDelete, "gone", nil)
	require.NoError(t, err)
	assert.Empty(t, rec.SourceHash)
	assert.Zero(t, rec.FileSize)
}

func TestCompleteMigration_SuccessWithMatchingHash(t *testing.T) {
	tr, _, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	dst := filepath.Join(project, "moved", "a.txt")
	writeFile(t, src, "payload")

	rec := moveTracked(t, tr, src, dst)

	assert.Equal(t, model.MigrationSuccess, rec.Status)
	assert.Equal(t, rec.SourceHash, rec.DestHash)
	require.NotNil(t, rec.CompletedAt)
}

func TestCompleteMigration_HashMismatchDowngradesToFailed(t *testing.T) {
	tr, _, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	dst := filepath.Join(project, "b.txt")
	writeFile(t, src, "original")

	rec, err := tr.TrackMigration(src, dst, model.OpCopy, "copy", nil)
	require.NoError(t, err)

	// Destination content differs from what was captured at track time.
	writeFile(t, dst, "tampered")
	err = tr.CompleteMigration(rec, true, nil)
	require.NoError(t, err)

	assert.Equal(t, model.MigrationFailed, rec.Status)
	assert.Contains(t, rec.Error, "E_INTEGRITY")
}

func TestCompleteMigration_MissingDestinationDowngradesToFailed(t *testing.T) {
	tr, _, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	dst := filepath.Join(project, "never-created.txt")
	writeFile(t, src, "content")

	rec, err := tr.TrackMigration(src, dst, model.OpMove, "move", nil)
	require.NoError(t, err)

	err = tr.CompleteMigration(rec, true, nil)
	require.NoError(t, err)

	assert.Equal(t, model.MigrationFailed, rec.Status)
	assert.Contains(t, rec.Error, "E_INTEGRITY")
}

func TestCompleteMigration_TransitionsExactlyOnce(t *testing.T) {
	tr, _, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	writeFile(t, src, "x")

	rec, err := tr.TrackMigration(src, "", model.OpDelete, "del", nil)
	require.NoError(t, err)
	require.NoError(t, tr.CompleteMigration(rec, true, nil))

	err = tr.CompleteMigration(rec, false, fmt.Errorf("late failure"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrAlreadyCompleted))
	assert.Equal(t, model.MigrationSuccess, rec.Status)
}

func TestStartTransaction_RejectsNested(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	_, err := tr.StartTransaction("first")
	require.NoError(t, err)

	_, err = tr.StartTransaction("second")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrTransactionActive))
}

func TestCommitTransaction_AllSuccess(t *testing.T) {
	tr, wd, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	dst := filepath.Join(project, "b.txt")
	writeFile(t, src, "data")

	txID, err := tr.StartTransaction("move things")
	require.NoError(t, err)
	moveTracked(t, tr, src, dst)

	tx, err := tr.CommitTransaction()
	require.NoError(t, err)

	assert.Equal(t, txID, tx.ID)
	assert.Equal(t, model.TxCommitted, tx.Status)
	require.NotNil(t, tx.EndTime)

	// The transaction is archived and the active slot is cleared.
	_, err = os.Stat(filepath.Join(wd.TransactionsDir(), tx.ID+".json"))
	require.NoError(t, err)
	_, err = os.Stat(wd.TransactionLogPath())
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, tr.CurrentTransactionID())
}

func TestCommitTransaction_PartialFailure(t *testing.T) {
	tr, _, project := newTestTracker(t)
	good := filepath.Join(project, "good.txt")
	writeFile(t, good, "ok")

	_, err := tr.StartTransaction("mixed outcome")
	require.NoError(t, err)

	moveTracked(t, tr, good, filepath.Join(project, "good-moved.txt"))

	bad, err := tr.TrackMigration(filepath.Join(project, "bad.txt"), "", model.OpDelete, "del", nil)
	require.NoError(t, err)
	require.NoError(t, tr.CompleteMigration(bad, false, fmt.Errorf("permission denied")))

	tx, err := tr.CommitTransaction()
	require.NoError(t, err)
	assert.Equal(t, model.TxPartialFailure, tx.Status)
	assert.Equal(t, 1, tx.FailedOperations)
}

func TestCommitTransaction_NoActive(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	_, err := tr.CommitTransaction()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrNoTransaction))
}

func TestRollbackTransaction_RestoresMovedFile(t *testing.T) {
	tr, _, project := newTestTracker(t)
	src := filepath.Join(project, "keep", "a.txt")
	dst := filepath.Join(project, "trash", "a.txt")
	writeFile(t, src, "precious")

	_, err := tr.StartTransaction("relocate")
	require.NoError(t, err)
	moveTracked(t, tr, src, dst)
	tx, err := tr.CommitTransaction()
	require.NoError(t, err)

	rolled, err := tr.RollbackTransaction(tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxRolledBack, rolled.Status)

	content, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "precious", string(content))
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))

	// Master log: original record rolled_back, plus a rollback_move record.
	var rolledBack, rollbackMoves int
	for _, rec := range tr.Migrations() {
		switch {
		case rec.Operation == model.OpMove && rec.Status == model.MigrationRolledBack:
			rolledBack++
		case rec.Operation == model.OpRollbackMove && rec.Status == model.MigrationSuccess:
			rollbackMoves++
		}
	}
	assert.Equal(t, 1, rolledBack)
	assert.Equal(t, 1, rollbackMoves)
}

func TestRollbackTransaction_ReversalErrorDoesNotAbort(t *testing.T) {
	tr, _, project := newTestTracker(t)
	a := filepath.Join(project, "a.txt")
	b := filepath.Join(project, "b.txt")
	writeFile(t, a, "aaa")
	writeFile(t, b, "bbb")

	_, err := tr.StartTransaction("two moves")
	require.NoError(t, err)
	recA := moveTracked(t, tr, a, filepath.Join(project, "out", "a.txt"))
	moveTracked(t, tr, b, filepath.Join(project, "out", "b.txt"))
	tx, err := tr.CommitTransaction()
	require.NoError(t, err)

	// Sabotage the first move's destination so its reversal fails.
	require.NoError(t, os.Remove(recA.DestPath))

	rolled, err := tr.RollbackTransaction(tx.ID)
	require.NoError(t, err)

	var withError, reversed int
	for _, op := range rolled.Operations {
		if op.RollbackError != "" {
			withError++
		}
		if op.Status == model.MigrationRolledBack {
			reversed++
		}
	}
	assert.Equal(t, 1, withError, "broken reversal must be recorded")
	assert.Equal(t, 1, reversed, "the other move must still be reversed")

	_, err = os.Stat(b)
	require.NoError(t, err, "second file must be restored despite the first failing")
}

func TestRollbackTransaction_UnknownID(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	_, err := tr.RollbackTransaction("20240101_000000_deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrNotFound))
}

func TestNew_CorruptLogBackedUpAndFresh(t *testing.T) {
	_, wd, _ := newTestTracker(t)
	require.NoError(t, os.WriteFile(wd.MigrationLogPath(), []byte("{corrupt"), 0644))

	tr, err := tracker.New(wd)
	require.NoError(t, err)
	assert.Empty(t, tr.Migrations())

	backup, err := os.ReadFile(wd.MigrationLogPath() + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "{corrupt", string(backup))
}

func TestMigrationLog_SurvivesReopen(t *testing.T) {
	tr, wd, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	writeFile(t, src, "x")
	moveTracked(t, tr, src, filepath.Join(project, "b.txt"))

	reopened, err := tracker.New(wd)
	require.NoError(t, err)
	records := reopened.Migrations()
	require.Len(t, records, 1)
	assert.Equal(t, model.MigrationSuccess, records[0].Status)
}

func TestMigrationsAfter(t *testing.T) {
	tr, _, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	writeFile(t, src, "x")

	before := time.Now().Add(-time.Minute)
	moveTracked(t, tr, src, filepath.Join(project, "b.txt"))

	assert.Len(t, tr.MigrationsAfter(before), 1)
	assert.Empty(t, tr.MigrationsAfter(time.Now().Add(time.Minute)))
}

func TestTransactionIDs_CannotTraverseOutOfTransactionsDir(t *testing.T) {
	tr, _, project := newTestTracker(t)

	// A transaction-shaped file planted outside transactions/ must stay
	// unreachable through an id.
	planted, err := json.Marshal(&model.Transaction{ID: "evil", Status: model.TxCommitted})
	require.NoError(t, err)
	writeFile(t, filepath.Join(project, "evil.json"), string(planted))

	_, err = tr.LoadTransaction("../../evil")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrNameInvalid))

	_, err = tr.RollbackTransaction("../../evil")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrNameInvalid))
}

func TestTrackMigration_ArchiveDestMustStayInProject(t *testing.T) {
	tr, _, project := newTestTracker(t)
	src := filepath.Join(project, "a.txt")
	writeFile(t, src, "x")

	outside := filepath.Join(t.TempDir(), "a.txt")
	_, err := tr.TrackMigration(src, outside, model.OpArchive, "archive", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrPathEscape))

	inside := filepath.Join(project, "archived", "a.txt")
	_, err = tr.TrackMigration(src, inside, model.OpArchive, "archive", nil)
	require.NoError(t, err)
}
