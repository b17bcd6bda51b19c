package tracker

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vibepruner/vibepruner/pkg/errclass"
	"github.com/vibepruner/vibepruner/pkg/fsutil"
	"github.com/vibepruner/vibepruner/pkg/model"
)

// reverseLocked undoes one successful operation. Reversal order matters to
// callers: they must apply reversals in reverse chronological order so a
// later move is undone before an earlier dependent operation.
func (t *Tracker) reverseLocked(rec *model.MigrationRecord) error {
	switch rec.Operation {
	case model.OpMove, model.OpArchive:
		return t.reverseMoveLocked(rec)
	case model.OpDelete:
		return t.reverseDeleteLocked(rec)
	case model.OpCopy:
		return t.reverseCopyLocked(rec)
	case model.OpConsolidate:
		return t.reverseConsolidateLocked(rec)
	default:
		// rollback_move / rollback_restore records are themselves the
		// product of a reversal and are not reversed again.
		return nil
	}
}

// reverseMoveLocked moves the destination file back to the source path,
// recreating parent directories and restoring saved mtime and permissions
// where available.
func (t *Tracker) reverseMoveLocked(rec *model.MigrationRecord) error {
	if rec.DestPath == "" {
		return errclass.ErrReversalFailed.WithMessagef(
			"no destination recorded for %s of %s", rec.Operation, rec.SourcePath)
	}
	if _, err := os.Stat(rec.DestPath); err != nil {
		return errclass.ErrReversalFailed.WithMessagef(
			"destination file not found for rollback: %s", rec.DestPath)
	}

	rev, err := t.trackLocked(rec.DestPath, rec.SourcePath, model.OpRollbackMove,
		fmt.Sprintf("Rollback of %s", rec.Operation),
		map[string]any{"original_transaction_id": rec.TransactionID})
	if err != nil {
		return err
	}

	if err := fsutil.MoveFile(rec.DestPath, rec.SourcePath); err != nil {
		if cerr := t.completeLocked(rev, false, err); cerr != nil {
			return cerr
		}
		return errclass.ErrReversalFailed.WithMessagef(
			"move %s back to %s: %v", rec.DestPath, rec.SourcePath, err)
	}

	t.restoreFileMetadata(rec.SourcePath, rec)
	return t.completeLocked(rev, true, nil)
}

// reverseDeleteLocked restores a deleted file from its archived copy.
// Deletes must go through archive, never direct unlink, precisely so they
// remain reversible; a delete without an archived copy is logged as a
// warning and left unreversed.
func (t *Tracker) reverseDeleteLocked(rec *model.MigrationRecord) error {
	archivePath := rec.ArchivePath()
	if archivePath == "" {
		t.log.Warn("cannot reverse delete, no archived copy recorded", map[string]any{
			"source": rec.SourcePath,
		})
		return nil
	}
	if _, err := os.Stat(archivePath); err != nil {
		return errclass.ErrReversalFailed.WithMessagef(
			"archived copy missing for deleted file: %s", archivePath)
	}

	rev, err := t.trackLocked(archivePath, rec.SourcePath, model.OpRollbackRestore,
		"Rollback of delete",
		map[string]any{"original_transaction_id": rec.TransactionID})
	if err != nil {
		return err
	}

	if err := fsutil.CopyFile(archivePath, rec.SourcePath); err != nil {
		if cerr := t.completeLocked(rev, false, err); cerr != nil {
			return cerr
		}
		return errclass.ErrReversalFailed.WithMessagef(
			"restore %s from archive: %v", rec.SourcePath, err)
	}

	t.restoreFileMetadata(rec.SourcePath, rec)
	return t.completeLocked(rev, true, nil)
}

// reverseCopyLocked deletes the copy.
func (t *Tracker) reverseCopyLocked(rec *model.MigrationRecord) error {
	if rec.DestPath == "" {
		return nil
	}
	if err := os.Remove(rec.DestPath); err != nil && !os.IsNotExist(err) {
		return errclass.ErrReversalFailed.WithMessagef(
			"remove copy %s: %v", rec.DestPath, err)
	}
	return nil
}

// reverseConsolidateLocked re-materializes each original file from content
// stored in the record's metadata under "original_files".
func (t *Tracker) reverseConsolidateLocked(rec *model.MigrationRecord) error {
	originals, ok := rec.Metadata["original_files"].([]any)
	if !ok {
		return errclass.ErrReversalFailed.WithMessagef(
			"consolidate record for %s carries no original_files metadata", rec.DestPath)
	}

	for _, raw := range originals {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path, _ := entry["path"].(string)
		content, hasContent := entry["content"].(string)
		if path == "" || !hasContent {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errclass.ErrReversalFailed.WithMessagef(
				"recreate directory for %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return errclass.ErrReversalFailed.WithMessagef(
				"restore original file %s: %v", path, err)
		}
		t.log.Info("restored original file", map[string]any{"path": path})
	}
	return nil
}

// restoreFileMetadata restores saved mtime and permissions. Best-effort: a
// file restored with the wrong mtime is still restored.
func (t *Tracker) restoreFileMetadata(path string, rec *model.MigrationRecord) {
	if rec.FileModified != nil {
		if err := os.Chtimes(path, time.Now(), *rec.FileModified); err != nil {
			t.log.Warn("could not restore mtime", map[string]any{
				"path": path, "error": err.Error(),
			})
		}
	}
	if rec.FilePermissions != 0 {
		if err := os.Chmod(path, os.FileMode(rec.FilePermissions)); err != nil {
			t.log.Warn("could not restore permissions", map[string]any{
				"path": path, "error": err.Error(),
			})
		}
	}
}
