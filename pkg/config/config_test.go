package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "300s", cfg.Session.LockStaleness)
	assert.Equal(t, "30s", cfg.Session.CheckpointInterval)
	assert.Equal(t, 100, cfg.Audit.MaxLogSizeMB)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.True(t, cfg.Audit.IncludeUserInfo)
	assert.Equal(t, 30, cfg.Rollback.KeepDays)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_MissingFileMeansDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Session.LockStaleness = "10m"
	cfg.Audit.MaxLogSizeMB = 5
	cfg.Logging.Format = "text"
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "10m", loaded.Session.LockStaleness)
	assert.Equal(t, 5, loaded.Audit.MaxLogSizeMB)
	assert.Equal(t, "text", loaded.Logging.Format)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := "session:\n  lock_staleness: 2m\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.LockStaleness())
	assert.Equal(t, 30*time.Second, cfg.CheckpointInterval())
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestDurationFallbacks(t *testing.T) {
	cfg := Default()
	cfg.Session.LockStaleness = "garbage"
	assert.Equal(t, 300*time.Second, cfg.LockStaleness())

	cfg.Session.CheckpointInterval = "-5s"
	assert.Equal(t, 30*time.Second, cfg.CheckpointInterval())
}

func TestMaxLogSizeBytes(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(100*1024*1024), cfg.MaxLogSizeBytes())

	cfg.Audit.MaxLogSizeMB = 2
	assert.Equal(t, int64(2*1024*1024), cfg.MaxLogSizeBytes())

	cfg.Audit.MaxLogSizeMB = 0
	assert.Equal(t, int64(100*1024*1024), cfg.MaxLogSizeBytes())
}
