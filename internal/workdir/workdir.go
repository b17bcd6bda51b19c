// Package workdir manages the .vibepruner work directory: its layout,
// initialization, and discovery from a working directory.
package workdir

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vibepruner/vibepruner/pkg/errclass"
	"github.com/vibepruner/vibepruner/pkg/fsutil"
)

const (
	FormatVersion     = 1
	DirName           = ".vibepruner"
	FormatVersionFile = "format_version"
	WorkdirIDFile     = "workdir_id"
)

// WorkDir represents an initialized work directory for one project.
type WorkDir struct {
	// ProjectRoot is the directory being pruned.
	ProjectRoot string
	// Root is the .vibepruner directory itself.
	Root          string
	FormatVersion int
	WorkdirID     string
}

// Init creates the work directory structure under projectRoot. Calling Init
// on an already-initialized project is not an error; the existing identity
// is kept.
func Init(projectRoot string) (*WorkDir, error) {
	root := filepath.Join(projectRoot, DirName)

	if _, err := os.Stat(filepath.Join(root, FormatVersionFile)); err == nil {
		return Open(projectRoot)
	}

	dirs := []string{
		root,
		filepath.Join(root, "transactions"),
		filepath.Join(root, "sessions"),
		filepath.Join(root, "audit"),
		filepath.Join(root, "audit", "archive"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(root, FormatVersionFile), []byte("1\n"), 0644); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}

	id := newWorkdirID()
	if err := os.WriteFile(filepath.Join(root, WorkdirIDFile), []byte(id+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write workdir_id: %w", err)
	}

	if err := fsutil.FsyncDir(root); err != nil {
		return nil, fmt.Errorf("fsync work dir: %w", err)
	}

	return &WorkDir{
		ProjectRoot:   projectRoot,
		Root:          root,
		FormatVersion: FormatVersion,
		WorkdirID:     id,
	}, nil
}

// Open opens an existing work directory under projectRoot.
func Open(projectRoot string) (*WorkDir, error) {
	root := filepath.Join(projectRoot, DirName)
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, errclass.ErrNotFound.WithMessagef("no %s directory in %s", DirName, projectRoot)
	}

	version, err := readFormatVersion(root)
	if err != nil {
		return nil, err
	}
	if version > FormatVersion {
		return nil, fmt.Errorf("work directory format version %d > supported %d", version, FormatVersion)
	}

	id, _ := readWorkdirID(root)
	return &WorkDir{
		ProjectRoot:   projectRoot,
		Root:          root,
		FormatVersion: version,
		WorkdirID:     id,
	}, nil
}

// Discover walks up from cwd to find the project root (directory containing
// .vibepruner/).
func Discover(cwd string) (*WorkDir, error) {
	path := cwd
	for {
		if info, err := os.Stat(filepath.Join(path, DirName)); err == nil && info.IsDir() {
			return Open(path)
		}
		parent := filepath.Dir(path)
		if parent == path {
			return nil, errclass.ErrNotFound.WithMessage(
				"no vibepruner work directory found (no .vibepruner/ in parent directories)")
		}
		path = parent
	}
}

// Path helpers for the persisted layout.

func (w *WorkDir) MigrationLogPath() string   { return filepath.Join(w.Root, "migration_log.json") }
func (w *WorkDir) TransactionLogPath() string { return filepath.Join(w.Root, "transaction_log.json") }
func (w *WorkDir) TransactionsDir() string    { return filepath.Join(w.Root, "transactions") }
func (w *WorkDir) RollbackLogPath() string    { return filepath.Join(w.Root, "rollback_log.json") }
func (w *WorkDir) SessionPath() string        { return filepath.Join(w.Root, "current_session.json") }
func (w *WorkDir) SessionsDir() string        { return filepath.Join(w.Root, "sessions") }
func (w *WorkDir) LockPath() string           { return filepath.Join(w.Root, "session.lock") }
func (w *WorkDir) CheckpointPath() string     { return filepath.Join(w.Root, "checkpoint.json") }
func (w *WorkDir) AuditDir() string           { return filepath.Join(w.Root, "audit") }

// RollbackPointPath returns the file for one rollback point.
func (w *WorkDir) RollbackPointPath(id string) string {
	return filepath.Join(w.Root, fmt.Sprintf("rollback_%s.json", id))
}

func readFormatVersion(root string) (int, error) {
	data, err := os.ReadFile(filepath.Join(root, FormatVersionFile))
	if err != nil {
		return 0, fmt.Errorf("read format_version: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse format_version: %w", err)
	}
	return v, nil
}

func readWorkdirID(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, WorkdirIDFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func newWorkdirID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("vibepruner: crypto/rand failed (system error): " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
