package metrics

import (
	"testing"
	"time"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.RecordMigration()
	r.RecordMigration()
	r.RecordCompletion(true)
	r.RecordCompletion(false)
	r.RecordTransaction()
	r.RecordRollback(3, 1, 250*time.Millisecond)

	snap := r.Snapshot()
	want := map[string]int64{
		"migrations_tracked":   2,
		"migrations_succeeded": 1,
		"migrations_failed":    1,
		"transactions_opened":  1,
		"rollbacks_run":        1,
		"reversals_applied":    3,
		"reversal_errors":      1,
		"rollback_duration_ms": 250,
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("%s: expected %d, got %d", k, v, snap[k])
		}
	}
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	snap := r.Snapshot()
	snap["migrations_tracked"] = 99

	if r.Snapshot()["migrations_tracked"] != 0 {
		t.Error("mutating a snapshot must not affect the registry")
	}
}
