// Package session owns crash-recovery state for one run of the tool against
// one project: a single-writer lock file, periodic checkpointing, and
// resumption of abandoned sessions.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vibepruner/vibepruner/internal/workdir"
	"github.com/vibepruner/vibepruner/pkg/errclass"
	"github.com/vibepruner/vibepruner/pkg/fsutil"
	"github.com/vibepruner/vibepruner/pkg/logging"
	"github.com/vibepruner/vibepruner/pkg/model"
	"github.com/vibepruner/vibepruner/pkg/pathutil"
)

const (
	defaultLockStaleness      = 300 * time.Second
	defaultCheckpointInterval = 30 * time.Second
	checkpointStopTimeout     = 5 * time.Second
)

// ResumePolicy decides whether an abandoned session found in the
// current-session slot should be resumed or archived. The default resumes.
type ResumePolicy func(*model.Session) bool

// Manager manages session state with recovery capabilities.
//
// The periodic checkpoint goroutine and the foreground caller both mutate
// and persist the same session object; every read-modify-persist sequence
// holds mu for its full duration.
type Manager struct {
	wd           *workdir.WorkDir
	log          *logging.Logger
	staleness    time.Duration
	interval     time.Duration
	resumePolicy ResumePolicy

	mu       sync.Mutex
	session  *model.Session
	isActive bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockStaleness overrides the lock staleness threshold.
func WithLockStaleness(d time.Duration) Option {
	return func(m *Manager) { m.staleness = d }
}

// WithCheckpointInterval overrides the periodic checkpoint interval.
func WithCheckpointInterval(d time.Duration) Option {
	return func(m *Manager) { m.interval = d }
}

// WithResumePolicy injects the abandoned-session decision.
func WithResumePolicy(p ResumePolicy) Option {
	return func(m *Manager) { m.resumePolicy = p }
}

// NewManager creates a session manager over a work directory.
func NewManager(wd *workdir.WorkDir, opts ...Option) *Manager {
	m := &Manager{
		wd:           wd,
		log:          logging.WithFields(map[string]any{"component": "session"}),
		staleness:    defaultLockStaleness,
		interval:     defaultCheckpointInterval,
		resumePolicy: func(*model.Session) bool { return true },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartOptions controls StartSession behavior.
type StartOptions struct {
	// ResumeID resumes a specific current or archived session.
	ResumeID string
	// TakeOver permits starting despite a live (non-stale) lock. Taking
	// over a live lock is an explicit, loggable decision, never silent.
	TakeOver bool
}

// StartSession starts a new session or resumes an existing one. A live lock
// without TakeOver fails with E_LOCK_CONFLICT; a stale lock (older than the
// staleness threshold) is abandoned and taken over with a logged warning.
func (m *Manager) StartSession(projectPath string, opts StartOptions) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return nil, errclass.ErrLockConflict.WithMessagef(
			"session %s already running in this process", m.session.ID)
	}

	if lock := m.readLock(); lock != nil {
		if lock.IsStale(time.Now(), m.staleness) {
			m.log.Warn("found stale session lock, taking over", map[string]any{
				"session_id": lock.SessionID,
				"lock_age":   time.Since(lock.Timestamp).String(),
				"pid":        lock.PID,
			})
		} else if opts.TakeOver {
			m.log.Warn("taking over live session lock on explicit request", map[string]any{
				"session_id": lock.SessionID,
				"pid":        lock.PID,
			})
		} else {
			return nil, errclass.ErrLockConflict.WithMessagef(
				"another session is running (session %s, pid %d, started %s)",
				lock.SessionID, lock.PID, lock.Timestamp.Format(time.RFC3339))
		}
	}

	now := time.Now()
	switch {
	case opts.ResumeID != "":
		sess, err := m.loadSessionLocked(opts.ResumeID)
		if err != nil {
			return nil, err
		}
		resumed := now
		sess.ResumedAt = &resumed
		sess.Status = model.SessionActive
		m.session = sess
		m.log.Info("resuming session", map[string]any{"session_id": sess.ID})

	default:
		if abandoned := m.checkAbandonedLocked(); abandoned != nil {
			m.log.Info("found abandoned session", map[string]any{"session_id": abandoned.ID})
			if m.resumePolicy(abandoned) {
				resumed := now
				abandoned.ResumedAt = &resumed
				m.session = abandoned
			} else {
				if err := m.archiveSessionLocked(abandoned); err != nil {
					return nil, err
				}
				m.session = model.NewSession(projectPath, now)
			}
		} else {
			m.session = model.NewSession(projectPath, now)
		}
	}

	if err := m.writeLockLocked(); err != nil {
		m.session = nil
		return nil, err
	}
	if err := m.persistLocked(); err != nil {
		m.session = nil
		return nil, err
	}

	m.isActive = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.checkpointLoop(m.stopCh, m.doneCh)

	m.log.Info("session started", map[string]any{"session_id": m.session.ID})
	return m.session, nil
}

// UpdatePhase advances the driver-supplied phase label.
func (m *Manager) UpdatePhase(phase string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return errclass.ErrNoSession.WithMessage("no active session")
	}

	now := time.Now()
	m.session.Phase = phase
	m.session.PhaseUpdatedAt = &now
	if metadata != nil {
		if m.session.PhaseMetadata == nil {
			m.session.PhaseMetadata = make(map[string]map[string]any)
		}
		m.session.PhaseMetadata[phase] = metadata
	}

	if err := m.persistLocked(); err != nil {
		return err
	}
	m.log.Info("session phase updated", map[string]any{"phase": phase})
	return nil
}

// AddCheckpoint appends a named checkpoint and mirrors it to the standalone
// checkpoint file for quick access on resume.
func (m *Manager) AddCheckpoint(name string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return errclass.ErrNoSession.WithMessage("no active session")
	}

	cp := model.Checkpoint{
		Name:      name,
		Timestamp: time.Now(),
		Data:      data,
	}
	m.session.Checkpoints = append(m.session.Checkpoints, cp)

	cpData, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal checkpoint: %v", err)
	}
	if err := fsutil.AtomicWrite(m.wd.CheckpointPath(), cpData, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("write checkpoint: %v", err)
	}

	if err := m.persistLocked(); err != nil {
		return err
	}
	m.log.Debug("checkpoint added", map[string]any{"name": name})
	return nil
}

// GetLastCheckpoint returns the most recent checkpoint, optionally filtered
// by name. Returns nil when none matches.
func (m *Manager) GetLastCheckpoint(name string) *model.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	for i := len(m.session.Checkpoints) - 1; i >= 0; i-- {
		cp := m.session.Checkpoints[i]
		if name == "" || cp.Name == name {
			out := cp
			return &out
		}
	}
	return nil
}

// RecordOperation records a driver-supplied operation payload. Completed
// operations increment the operations_completed counter; anything else
// lands in the pending list.
func (m *Manager) RecordOperation(op model.OperationRecord, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return errclass.ErrNoSession.WithMessage("no active session")
	}

	if op == nil {
		op = model.OperationRecord{}
	}
	op["timestamp"] = time.Now().Format(time.RFC3339Nano)
	op["status"] = status

	if status == "completed" {
		m.session.CompletedOperations = append(m.session.CompletedOperations, op)
		m.session.Stats["operations_completed"]++
	} else {
		m.session.PendingOperations = append(m.session.PendingOperations, op)
	}
	return m.persistLocked()
}

// RecordError records an error against the session.
func (m *Manager) RecordError(errMsg string, context map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return errclass.ErrNoSession.WithMessage("no active session")
	}

	m.session.Errors = append(m.session.Errors, model.SessionError{
		Timestamp: time.Now(),
		Error:     errMsg,
		Phase:     m.session.Phase,
		Context:   context,
	})
	if err := m.persistLocked(); err != nil {
		return err
	}
	m.log.Error("session error recorded", map[string]any{"error": errMsg})
	return nil
}

// UpdateStats adds deltas to the session's running counters. Unknown
// counter names are created; the driver owns the counter vocabulary.
func (m *Manager) UpdateStats(deltas map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return errclass.ErrNoSession.WithMessage("no active session")
	}

	for k, v := range deltas {
		m.session.Stats[k] += v
	}
	return m.persistLocked()
}

// EndSession stops the checkpoint goroutine, persists final state, archives
// the session, and releases the lock.
func (m *Manager) EndSession(status model.SessionStatus) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return errclass.ErrNoSession.WithMessage("no active session")
	}

	m.isActive = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	// Stop the checkpoint writer before final persistence so nothing
	// writes the session file after teardown.
	if stopCh != nil {
		close(stopCh)
		select {
		case <-doneCh:
		case <-time.After(checkpointStopTimeout):
			m.log.Warn("checkpoint goroutine did not stop in time")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.session.EndedAt = &now
	m.session.Status = status
	m.session.DurationSeconds = now.Sub(m.session.StartedAt).Seconds()

	if err := m.persistLocked(); err != nil {
		return err
	}
	if err := m.archiveSessionLocked(m.session); err != nil {
		return err
	}
	if err := os.Remove(m.wd.LockPath()); err != nil && !os.IsNotExist(err) {
		return errclass.ErrPersistence.WithMessagef("remove session lock: %v", err)
	}

	m.log.Info("session ended", map[string]any{
		"session_id": m.session.ID,
		"status":     string(status),
	})
	m.session = nil
	return nil
}

// MarkInterrupted synchronously flags the session interrupted and persists
// it. Called from the shutdown coordinator's signal path.
func (m *Manager) MarkInterrupted(signalName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || !m.isActive {
		return nil
	}

	m.session.Interrupted = true
	m.session.InterruptSignal = signalName
	return m.persistLocked()
}

// Active reports whether a session is currently running in this manager.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

// Current returns the running session, or nil.
func (m *Manager) Current() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// GetSessionSummary condenses the current session for reporting.
func (m *Manager) GetSessionSummary() *model.SessionSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}

	end := time.Now()
	if m.session.EndedAt != nil {
		end = *m.session.EndedAt
	}
	return &model.SessionSummary{
		ID:              m.session.ID,
		Phase:           m.session.Phase,
		Status:          m.session.Status,
		DurationSeconds: end.Sub(m.session.StartedAt).Seconds(),
		Stats:           m.session.Stats,
		ErrorCount:      len(m.session.Errors),
		CheckpointCount: len(m.session.Checkpoints),
	}
}

// ListSessions returns archived sessions, newest first.
func (m *Manager) ListSessions() ([]*model.Session, error) {
	entries, err := os.ReadDir(m.wd.SessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var sessions []*model.Session
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.wd.SessionsDir(), e.Name()))
		if err != nil {
			continue
		}
		var sess model.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			m.log.Warn("skipping unparseable session file", map[string]any{"file": e.Name()})
			continue
		}
		sessions = append(sessions, &sess)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

func (m *Manager) checkpointLoop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			if m.isActive && m.session != nil {
				if err := m.persistLocked(); err != nil {
					m.log.ErrorErr("periodic checkpoint failed", err)
				} else {
					m.log.Debug("automatic checkpoint saved")
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *Manager) persistLocked() error {
	data, err := json.MarshalIndent(m.session, "", "  ")
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal session: %v", err)
	}
	if err := fsutil.AtomicWrite(m.wd.SessionPath(), data, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("write session: %v", err)
	}
	return nil
}

func (m *Manager) writeLockLocked() error {
	lock := &model.LockRecord{
		SessionID: m.session.ID,
		Timestamp: time.Now(),
		PID:       os.Getpid(),
	}
	data, err := json.Marshal(lock)
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal lock: %v", err)
	}
	if err := fsutil.AtomicWrite(m.wd.LockPath(), data, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("write lock: %v", err)
	}
	return nil
}

// readLock returns the current lock record, or nil when absent. A corrupt
// lock file is treated as absent; refusing to start because a crashed
// process half-wrote its lock would defeat recovery.
func (m *Manager) readLock() *model.LockRecord {
	data, err := os.ReadFile(m.wd.LockPath())
	if err != nil {
		return nil
	}
	var lock model.LockRecord
	if err := json.Unmarshal(data, &lock); err != nil {
		m.log.Warn("unparseable session lock, ignoring", map[string]any{"error": err.Error()})
		return nil
	}
	return &lock
}

// checkAbandonedLocked returns a session left active in the current-session
// slot by a crashed or killed process.
func (m *Manager) checkAbandonedLocked() *model.Session {
	data, err := os.ReadFile(m.wd.SessionPath())
	if err != nil {
		return nil
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		m.log.Warn("unparseable current session file, ignoring", map[string]any{"error": err.Error()})
		return nil
	}
	if sess.Status != model.SessionActive {
		return nil
	}
	return &sess
}

func (m *Manager) loadSessionLocked(id string) (*model.Session, error) {
	// The id becomes a file name under sessions/.
	if err := pathutil.ValidateID(id); err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(m.wd.SessionPath()); err == nil {
		var sess model.Session
		if err := json.Unmarshal(data, &sess); err == nil && sess.ID == id {
			return &sess, nil
		}
	}

	data, err := os.ReadFile(filepath.Join(m.wd.SessionsDir(), id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("session not found: %s", id)
		}
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return &sess, nil
}

// archiveSessionLocked moves a session into the archive and clears the
// current-session slot. Sessions are never deleted.
func (m *Manager) archiveSessionLocked(sess *model.Session) error {
	if err := os.MkdirAll(m.wd.SessionsDir(), 0755); err != nil {
		return errclass.ErrPersistence.WithMessagef("create sessions dir: %v", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return errclass.ErrPersistence.WithMessagef("marshal session: %v", err)
	}
	path := filepath.Join(m.wd.SessionsDir(), sess.ID+".json")
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return errclass.ErrPersistence.WithMessagef("archive session: %v", err)
	}

	if err := os.Remove(m.wd.SessionPath()); err != nil && !os.IsNotExist(err) {
		return errclass.ErrPersistence.WithMessagef("remove current session file: %v", err)
	}
	return nil
}
