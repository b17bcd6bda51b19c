// Package integrity provides content hashing and file-fact capture for
// migration records and audit entries.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vibepruner/vibepruner/pkg/model"
)

// FileSHA256 computes the hex SHA-256 of a file's content.
func FileSHA256(path string) (model.HashValue, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return model.HashValue(hex.EncodeToString(h.Sum(nil))), nil
}

// TryFileSHA256 is the best-effort variant used while building migration
// records: a missing or unreadable source is an expected, common case (e.g.
// retrying or resuming) and yields ok=false rather than an error.
func TryFileSHA256(path string) (model.HashValue, bool) {
	h, err := FileSHA256(path)
	if err != nil {
		return "", false
	}
	return h, true
}

// FileFacts captures the metadata stored alongside a migration record.
type FileFacts struct {
	Size        int64
	Modified    time.Time
	Permissions os.FileMode
	IsSymlink   bool
}

// CaptureFacts stats a file and returns its facts, or ok=false if it cannot
// be statted. Like hashing, this is best-effort.
func CaptureFacts(path string) (FileFacts, bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return FileFacts{}, false
	}
	return FileFacts{
		Size:        info.Size(),
		Modified:    info.ModTime(),
		Permissions: info.Mode().Perm(),
		IsSymlink:   info.Mode()&os.ModeSymlink != 0,
	}, true
}
