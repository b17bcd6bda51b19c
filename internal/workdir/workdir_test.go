package workdir_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/errclass"
)

func TestInit_CreatesLayout(t *testing.T) {
	project := t.TempDir()

	wd, err := workdir.Init(project)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(project, ".vibepruner"), wd.Root)
	assert.Equal(t, 1, wd.FormatVersion)
	assert.NotEmpty(t, wd.WorkdirID)

	for _, dir := range []string{
		wd.TransactionsDir(),
		wd.SessionsDir(),
		wd.AuditDir(),
		filepath.Join(wd.AuditDir(), "archive"),
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestInit_Idempotent(t *testing.T) {
	project := t.TempDir()

	first, err := workdir.Init(project)
	require.NoError(t, err)
	second, err := workdir.Init(project)
	require.NoError(t, err)

	assert.Equal(t, first.WorkdirID, second.WorkdirID)
}

func TestOpen_Missing(t *testing.T) {
	_, err := workdir.Open(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrNotFound))
}

func TestOpen_UnsupportedVersion(t *testing.T) {
	project := t.TempDir()
	_, err := workdir.Init(project)
	require.NoError(t, err)

	versionFile := filepath.Join(project, ".vibepruner", "format_version")
	require.NoError(t, os.WriteFile(versionFile, []byte("99\n"), 0644))

	_, err = workdir.Open(project)
	require.Error(t, err)
}

func TestDiscover_WalksUp(t *testing.T) {
	project := t.TempDir()
	_, err := workdir.Init(project)
	require.NoError(t, err)

	nested := filepath.Join(project, "src", "deep", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0755))

	wd, err := workdir.Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(project, ".vibepruner"), wd.Root)
}

func TestDiscover_NotFound(t *testing.T) {
	_, err := workdir.Discover(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errclass.ErrNotFound))
}

func TestPathHelpers(t *testing.T) {
	project := t.TempDir()
	wd, err := workdir.Init(project)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(wd.Root, "migration_log.json"), wd.MigrationLogPath())
	assert.Equal(t, filepath.Join(wd.Root, "transaction_log.json"), wd.TransactionLogPath())
	assert.Equal(t, filepath.Join(wd.Root, "rollback_log.json"), wd.RollbackLogPath())
	assert.Equal(t, filepath.Join(wd.Root, "current_session.json"), wd.SessionPath())
	assert.Equal(t, filepath.Join(wd.Root, "session.lock"), wd.LockPath())
	assert.Equal(t, filepath.Join(wd.Root, "rollback_20240101_000000_rollback.json"),
		wd.RollbackPointPath("20240101_000000_rollback"))
}
