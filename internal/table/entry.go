package table

import (
	"encoding/json"
	"time"
)

// Never is the expiry sentinel for entries without a TTL.
const Never int64 = 0

// Entry represents a single value stored in the table.
//
// Design choices:
// - Value is kept in its compact serialized form, so size checks and
//   snapshots never re-encode it.
// - ExpiresAt is an absolute Unix timestamp in seconds, computed once at
//   insertion. Zero means "no expiration".
type Entry struct {
	Value     json.RawMessage
	ExpiresAt int64
}

// NewEntry builds an entry whose expiry is now+ttlSeconds, or Never when
// ttlSeconds is zero.
func NewEntry(value json.RawMessage, ttlSeconds int64, now time.Time) Entry {
	e := Entry{Value: value, ExpiresAt: Never}
	if ttlSeconds > 0 {
		e.ExpiresAt = now.Unix() + ttlSeconds
	}
	return e
}

// IsExpired checks whether the entry is expired at the given time.
func (e Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt == Never {
		return false
	}
	return now.Unix() > e.ExpiresAt
}
