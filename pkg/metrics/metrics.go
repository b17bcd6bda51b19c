// Package metrics provides in-process operation counters for the core.
// Counters are cheap enough to record unconditionally and are surfaced by
// the status command.
package metrics

import (
	"sync"
	"time"
)

// Registry holds operation counters.
type Registry struct {
	mu sync.Mutex

	migrationsTracked   int64
	migrationsSucceeded int64
	migrationsFailed    int64
	transactionsOpened  int64
	rollbacksRun        int64
	reversalsApplied    int64
	reversalErrors      int64
	rollbackDuration    time.Duration
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// RecordMigration records a tracked migration attempt.
func (r *Registry) RecordMigration() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.migrationsTracked++
}

// RecordCompletion records a migration's terminal status.
func (r *Registry) RecordCompletion(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.migrationsSucceeded++
	} else {
		r.migrationsFailed++
	}
}

// RecordTransaction records a transaction start.
func (r *Registry) RecordTransaction() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactionsOpened++
}

// RecordRollback records one rollback run.
func (r *Registry) RecordRollback(reversed, errors int, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollbacksRun++
	r.reversalsApplied += int64(reversed)
	r.reversalErrors += int64(errors)
	r.rollbackDuration += duration
}

// Snapshot returns a copy of all counters keyed by name.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]int64{
		"migrations_tracked":   r.migrationsTracked,
		"migrations_succeeded": r.migrationsSucceeded,
		"migrations_failed":    r.migrationsFailed,
		"transactions_opened":  r.transactionsOpened,
		"rollbacks_run":        r.rollbacksRun,
		"reversals_applied":    r.reversalsApplied,
		"reversal_errors":      r.reversalErrors,
		"rollback_duration_ms": r.rollbackDuration.Milliseconds(),
	}
}
