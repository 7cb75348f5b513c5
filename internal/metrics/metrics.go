package metrics

import (
	"sync"
	"sync/atomic"
)

// MetricKey is a strongly typed metric identifier.
type MetricKey string

// Metric keys (centralized)
const (
	// Store
	KVKeysTotal     MetricKey = "kv_keys_total"
	KVCreatesTotal  MetricKey = "kv_creates_total"
	KVReadsTotal    MetricKey = "kv_reads_total"
	KVMissesTotal   MetricKey = "kv_misses_total"
	KVExpiredTotal  MetricKey = "kv_expired_total"
	KVRemovesTotal  MetricKey = "kv_removes_total"
	KVBatchesTotal  MetricKey = "kv_batches_total"
	KVRejectedTotal MetricKey = "kv_rejected_total"

	// Persistence
	PersistSavesTotal         MetricKey = "persist_saves_total"
	PersistSaveFailuresTotal  MetricKey = "persist_save_failures_total"
	PersistLoadFailuresTotal  MetricKey = "persist_load_failures_total"
	PersistBytesWrittenTotal  MetricKey = "persist_bytes_written_total"
	PersistSnapshotBytes      MetricKey = "persist_snapshot_bytes"
	PersistOversizeSavesTotal MetricKey = "persist_oversize_saves_total"

	// TTL
	TTLCleanupRunsTotal MetricKey = "ttl_cleanup_runs_total"
	TTLKeysRemovedTotal MetricKey = "ttl_keys_removed_total"
)

// Registry stores all metrics.
type Registry struct {
	mu       sync.RWMutex
	counters map[MetricKey]*int64
}

// NewRegistry creates a metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[MetricKey]*int64),
	}
}

// Inc increments a metric by 1.
func (r *Registry) Inc(key MetricKey) {
	r.Add(key, 1)
}

// Add increments a metric by delta.
func (r *Registry) Add(key MetricKey, delta int64) {
	atomic.AddInt64(r.counter(key), delta)
}

// Set overwrites a metric, for gauge-style values.
func (r *Registry) Set(key MetricKey, value int64) {
	atomic.StoreInt64(r.counter(key), value)
}

func (r *Registry) counter(key MetricKey) *int64 {
	r.mu.RLock()
	ptr, ok := r.counters[key]
	r.mu.RUnlock()

	if ok {
		return ptr
	}

	// Slow path: metric not yet initialized
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if ptr, ok = r.counters[key]; ok {
		return ptr
	}

	var val int64
	r.counters[key] = &val
	return &val
}

// Snapshot returns a copy of all metrics, safe to mutate.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.counters))
	for key, ptr := range r.counters {
		out[string(key)] = atomic.LoadInt64(ptr)
	}
	return out
}
