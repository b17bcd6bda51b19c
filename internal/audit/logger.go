// Package audit appends tamper-evident JSONL entries recording every
// decision and mutation the tool performs. Each line carries a checksum
// over its canonical JSON form; log files rotate daily and by size.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/vibepruner/vibepruner/internal/integrity"
	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/config"
	"github.com/vibepruner/vibepruner/pkg/errclass"
	"github.com/vibepruner/vibepruner/pkg/jsonutil"
	"github.com/vibepruner/vibepruner/pkg/logging"
	"github.com/vibepruner/vibepruner/pkg/model"
)

const headerVersion = "1.0"

// Logger appends audit entries to the work directory's audit log.
//
// "Check rotation, then append" must be one critical section: the in-process
// mutex covers both, and an exclusive flock guards against a second process
// appending to the same file.
type Logger struct {
	wd  *workdir.WorkDir
	cfg *config.Config
	log *logging.Logger

	mu      sync.Mutex
	context model.AuditContext
}

// New creates an audit logger over a work directory.
func New(wd *workdir.WorkDir, cfg *config.Config) *Logger {
	if cfg == nil {
		cfg = config.Default()
	}

	ctx := model.AuditContext{
		ProcessID: os.Getpid(),
	}
	if cwd, err := os.Getwd(); err == nil {
		ctx.WorkingDirectory = cwd
	}
	if cfg.Audit.IncludeUserInfo {
		if u, err := user.Current(); err == nil {
			ctx.User = u.Username
		}
		if host, err := os.Hostname(); err == nil {
			ctx.Hostname = host
		}
	}

	return &Logger{
		wd:      wd,
		cfg:     cfg,
		log:     logging.WithFields(map[string]any{"component": "audit"}),
		context: ctx,
	}
}

// activePath returns today's log file. Deriving the name from the current
// date gives daily rotation for free: the first append of a new day lands
// in a fresh file.
func (l *Logger) activePath(now time.Time) string {
	return filepath.Join(l.wd.AuditDir(), fmt.Sprintf("audit_%s.jsonl", now.Format("20060102")))
}

// LogEvent appends one audit entry and returns its id. The entry is also
// mirrored to the structured log at its recorded severity.
func (l *Logger) LogEvent(eventType model.AuditEventType, description string, severity model.Severity, details map[string]any) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry := &model.AuditEntry{
		ID:          model.NewAuditEntryID(now),
		Timestamp:   now,
		EventType:   eventType,
		Description: description,
		Severity:    severity,
		Details:     details,
		Context:     l.context,
	}

	checksum, err := entryChecksum(entry)
	if err != nil {
		return "", errclass.ErrPersistence.WithMessagef("compute audit checksum: %v", err)
	}
	entry.Checksum = checksum

	if err := l.appendLocked(entry, now); err != nil {
		return "", err
	}

	l.log.Log(severityLevel(severity), description, map[string]any{
		"event_type": string(eventType),
		"audit_id":   entry.ID,
	})
	return entry.ID, nil
}

// LogFileOperation audits one file mutation. For operations that remove or
// relocate the source (move, delete, archive) the source is hashed before
// the mutation happens; afterwards there is nothing left to hash.
func (l *Logger) LogFileOperation(op model.Operation, sourcePath, destPath string, details map[string]any) (string, error) {
	merged := map[string]any{
		"operation":   string(op),
		"source_path": sourcePath,
	}
	if destPath != "" {
		merged["dest_path"] = destPath
	}
	for k, v := range details {
		merged[k] = v
	}

	if facts, ok := integrity.CaptureFacts(sourcePath); ok {
		merged["file_size"] = facts.Size
		merged["file_modified"] = facts.Modified.Format(time.RFC3339)
	}
	switch op {
	case model.OpMove, model.OpDelete, model.OpArchive:
		if h, ok := integrity.TryFileSHA256(sourcePath); ok {
			merged["source_hash"] = string(h)
		}
	}

	desc := fmt.Sprintf("File operation: %s %s", op, sourcePath)
	return l.LogEvent(model.EventFileOperation, desc, model.SeverityInfo, merged)
}

// LogTestRun audits a test execution.
func (l *Logger) LogTestRun(testName string, passed bool, details map[string]any) (string, error) {
	merged := map[string]any{
		"test_name": testName,
		"passed":    passed,
	}
	for k, v := range details {
		merged[k] = v
	}

	severity := model.SeverityInfo
	if !passed {
		severity = model.SeverityWarning
	}
	desc := fmt.Sprintf("Test run: %s (passed=%t)", testName, passed)
	return l.LogEvent(model.EventTestRun, desc, severity, merged)
}

// LogTestComparison audits a before/after test baseline comparison.
func (l *Logger) LogTestComparison(testName string, baselineMatch bool, details map[string]any) (string, error) {
	merged := map[string]any{
		"test_name":      testName,
		"baseline_match": baselineMatch,
	}
	for k, v := range details {
		merged[k] = v
	}

	severity := model.SeverityInfo
	if !baselineMatch {
		severity = model.SeverityWarning
	}
	desc := fmt.Sprintf("Test comparison: %s (match=%t)", testName, baselineMatch)
	return l.LogEvent(model.EventTestCompare, desc, severity, merged)
}

// LogUserDecision audits an approval or rejection by the user.
func (l *Logger) LogUserDecision(decision string, approved bool, details map[string]any) (string, error) {
	merged := map[string]any{
		"decision": decision,
		"approved": approved,
	}
	for k, v := range details {
		merged[k] = v
	}

	verb := "rejected"
	if approved {
		verb = "approved"
	}
	desc := fmt.Sprintf("User decision: %s %s", decision, verb)
	return l.LogEvent(model.EventUserDecision, desc, model.SeverityInfo, merged)
}

// LogConfigChange audits a configuration change.
func (l *Logger) LogConfigChange(key string, oldValue, newValue any) (string, error) {
	desc := fmt.Sprintf("Configuration changed: %s", key)
	return l.LogEvent(model.EventConfigChange, desc, model.SeverityInfo, map[string]any{
		"key":       key,
		"old_value": oldValue,
		"new_value": newValue,
	})
}

// LogError audits an error condition.
func (l *Logger) LogError(message string, details map[string]any) (string, error) {
	return l.LogEvent(model.EventError, message, model.SeverityError, details)
}

// VerifyEntry recomputes an entry's checksum and reports whether it matches
// the recorded one.
func VerifyEntry(entry *model.AuditEntry) bool {
	sum, err := entryChecksum(entry)
	if err != nil {
		return false
	}
	return sum == entry.Checksum
}

// CleanupArchives removes archived audit files older than the configured
// retention window and returns how many were removed.
func (l *Logger) CleanupArchives() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	retention := l.cfg.Audit.RetentionDays
	if retention <= 0 {
		retention = 365
	}
	cutoff := time.Now().AddDate(0, 0, -retention)

	archiveDir := filepath.Join(l.wd.AuditDir(), "archive")
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read audit archive: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(archiveDir, e.Name())); err != nil {
				l.log.Warn("could not remove archived audit log", map[string]any{
					"file": e.Name(), "error": err.Error(),
				})
				continue
			}
			removed++
		}
	}

	l.log.Info("cleaned up archived audit logs", map[string]any{"count": removed})
	return removed, nil
}

func (l *Logger) appendLocked(entry *model.AuditEntry, now time.Time) error {
	path := l.activePath(now)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errclass.ErrPersistence.WithMessagef("create audit dir: %v", err)
	}

	if err := l.rotateIfNeededLocked(path, now); err != nil {
		return err
	}

	fresh := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fresh = true
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("open audit log: %v", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return errclass.ErrPersistence.WithMessagef("flock audit log: %v", err)
	}
	defer unlockFile(file)

	if fresh {
		if err := l.writeHeaderLocked(file, now); err != nil {
			return err
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal audit entry: %v", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return errclass.ErrPersistence.WithMessagef("write audit entry: %v", err)
	}
	if err := file.Sync(); err != nil {
		return errclass.ErrPersistence.WithMessagef("sync audit log: %v", err)
	}
	return nil
}

// rotateIfNeededLocked archives the active file when it has grown past the
// configured ceiling. The archived name keeps the original date and gains a
// time suffix so repeated same-day rotations never collide.
func (l *Logger) rotateIfNeededLocked(path string, now time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // no active file yet
	}
	if info.Size() < l.cfg.MaxLogSizeBytes() {
		return nil
	}

	archiveDir := filepath.Join(l.wd.AuditDir(), "archive")
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return errclass.ErrPersistence.WithMessagef("create audit archive dir: %v", err)
	}

	base := filepath.Base(path)
	name := base[:len(base)-len(filepath.Ext(base))]
	dest := filepath.Join(archiveDir, fmt.Sprintf("%s_%s.jsonl", name, now.Format("150405")))

	if err := os.Rename(path, dest); err != nil {
		return errclass.ErrPersistence.WithMessagef("rotate audit log: %v", err)
	}

	l.log.Info("rotated audit log", map[string]any{
		"archived": dest,
		"size":     info.Size(),
	})
	return nil
}

func (l *Logger) writeHeaderLocked(file *os.File, now time.Time) error {
	header := model.AuditLogHeader{
		Type:      "audit_log_header",
		Version:   headerVersion,
		CreatedAt: now,
		SystemInfo: map[string]any{
			"platform":   runtime.GOOS,
			"arch":       runtime.GOARCH,
			"go_version": runtime.Version(),
			"process_id": os.Getpid(),
			"workdir_id": l.wd.WorkdirID,
		},
	}
	line, err := json.Marshal(header)
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal audit header: %v", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return errclass.ErrPersistence.WithMessagef("write audit header: %v", err)
	}
	return nil
}

// entryChecksum hashes the canonical JSON form of the entry with the
// checksum field excluded.
func entryChecksum(entry *model.AuditEntry) (model.HashValue, error) {
	stripped := *entry
	stripped.Checksum = ""

	sum, err := jsonutil.CanonicalSHA256(&stripped)
	if err != nil {
		return "", err
	}
	return model.HashValue(sum), nil
}

func severityLevel(s model.Severity) logging.Level {
	switch s {
	case model.SeverityWarning:
		return logging.LevelWarn
	case model.SeverityError:
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
