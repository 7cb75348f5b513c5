package table

import (
	"sort"
	"time"
)

// Table is the in-memory mapping from key to Entry.
//
// Table does no locking of its own. The owning store serializes every
// access behind its store-wide lock, together with the file I/O.
type Table struct {
	data map[string]Entry
}

// New returns an empty table.
func New() *Table {
	return &Table{data: make(map[string]Entry)}
}

// Get returns the entry stored under key.
func (t *Table) Get(key string) (Entry, bool) {
	e, ok := t.data[key]
	return e, ok
}

// Put inserts or replaces the entry stored under key.
func (t *Table) Put(key string, e Entry) {
	t.data[key] = e
}

// Delete removes key and reports whether it was present.
func (t *Table) Delete(key string) bool {
	if _, ok := t.data[key]; !ok {
		return false
	}
	delete(t.data, key)
	return true
}

// IsExpired returns false when key is absent or never expires, otherwise
// whether now is strictly past its expiry. It never mutates the table.
func (t *Table) IsExpired(key string, now time.Time) bool {
	e, ok := t.data[key]
	if !ok {
		return false
	}
	return e.IsExpired(now)
}

// RemoveExpired removes every entry expired at now and returns the
// removed keys.
//
// This is used by both the background TTL cleaner and explicit sweeps.
func (t *Table) RemoveExpired(now time.Time) []string {
	var removed []string
	for k, v := range t.data {
		if v.IsExpired(now) {
			delete(t.data, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not
// yet swept.
func (t *Table) Len() int {
	return len(t.data)
}

// Keys returns all keys in sorted order.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.data))
	for k := range t.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a copy of every entry, expired-but-unswept included.
func (t *Table) Snapshot() map[string]Entry {
	out := make(map[string]Entry, len(t.data))
	for k, v := range t.data {
		out[k] = v
	}
	return out
}

// Load inserts entries one by one, replacing any existing keys.
// No limits are checked: data on disk may predate stricter limits.
func (t *Table) Load(entries map[string]Entry) {
	for k, v := range entries {
		t.data[k] = v
	}
}
