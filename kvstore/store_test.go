package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ttl-kvstore/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ---------------- Helpers ---------------- */

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestStore(t *testing.T, clock *fakeClock) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "datastore.json")
	opts := Options{Path: path, DisableSweep: true}
	if clock != nil {
		opts.Now = clock.Now
	}
	s, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func readFileJSON(t *testing.T, path string) map[string]map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

/* ---------------- Create / Read ---------------- */

func TestStoreCreate_Read(t *testing.T) {
	s, path := openTestStore(t, nil)

	t.Run("create and read existing key", func(t *testing.T) {
		require.NoError(t, s.Create("user1", map[string]any{"name": "Ann"}, 0))

		v, err := s.Read("user1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"name":"Ann"}`, string(v))
	})

	t.Run("read non-existing key", func(t *testing.T) {
		_, err := s.Read("missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, CodeKeyNotFound, CodeOf(err))
	})

	t.Run("raw json is stored compact", func(t *testing.T) {
		require.NoError(t, s.Create("raw", json.RawMessage("{ \"a\" : [1, 2] }"), 0))

		v, err := s.Read("raw")
		require.NoError(t, err)
		assert.Equal(t, `{"a":[1,2]}`, string(v))
	})

	t.Run("create persists snapshot", func(t *testing.T) {
		doc := readFileJSON(t, path)
		require.Contains(t, doc, "user1")
		assert.JSONEq(t, `{"name":"Ann"}`, string(doc["user1"]["value"]))
		assert.Equal(t, "0", string(doc["user1"]["ttl"]))
	})
}

func TestStoreCreate_Uniqueness(t *testing.T) {
	s, _ := openTestStore(t, nil)

	require.NoError(t, s.Create("k", map[string]any{"v": 1}, 0))

	for _, other := range []any{map[string]any{"v": 2}, "x", nil} {
		err := s.Create("k", other, 0)
		assert.ErrorIs(t, err, ErrKeyExists)
	}

	v, err := s.Read("k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(v), "original value must not be overwritten")
}

func TestStoreCreate_Limits(t *testing.T) {
	s, _ := openTestStore(t, nil)

	t.Run("key of 32 bytes accepted", func(t *testing.T) {
		assert.NoError(t, s.Create(strings.Repeat("k", 32), 1, 0))
	})

	t.Run("key of 33 bytes rejected", func(t *testing.T) {
		for _, ttl := range []int64{0, 5} {
			err := s.Create(strings.Repeat("k", 33), 1, ttl)
			assert.ErrorIs(t, err, ErrKeyTooLong)
		}
	})

	t.Run("value of exactly 16 KiB accepted", func(t *testing.T) {
		// the serialized string adds two quote bytes
		value := strings.Repeat("a", DefaultMaxValueSize-2)
		assert.NoError(t, s.Create("max", value, 0))
	})

	t.Run("value of 16 KiB + 1 rejected", func(t *testing.T) {
		value := strings.Repeat("a", DefaultMaxValueSize-1)
		for _, ttl := range []int64{0, 5} {
			err := s.Create("big", value, ttl)
			assert.ErrorIs(t, err, ErrValueTooLarge)
		}
		_, err := s.Read("big")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("key length checked before value size", func(t *testing.T) {
		err := s.Create(strings.Repeat("k", 33), strings.Repeat("a", DefaultMaxValueSize), 0)
		assert.ErrorIs(t, err, ErrKeyTooLong)
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.Create("bad", json.RawMessage(`{"a":`), 0), ErrInvalidValue)
		assert.ErrorIs(t, s.Create("chan", make(chan int), 0), ErrInvalidValue)
	})

	t.Run("negative ttl rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.Create("neg", 1, -1), ErrInvalidTTL)
	})

	assert.Equal(t, int64(8), s.Stats()[string(metrics.KVRejectedTotal)])
}

func TestStoreCreate_SizeIsUnescapedForm(t *testing.T) {
	s, path := openTestStore(t, nil)

	// compact form is exactly 16 KiB including the two quotes
	atLimit := strings.Repeat("<", DefaultMaxValueSize-2)

	require.NoError(t, s.Create("plain", atLimit, 0))
	require.NoError(t, s.Create("raw", json.RawMessage(`"`+atLimit+`"`), 0))

	over := strings.Repeat("&", DefaultMaxValueSize-1)
	assert.ErrorIs(t, s.Create("over", over, 0), ErrValueTooLarge)
	assert.ErrorIs(t, s.Create("over", json.RawMessage(`"`+over+`"`), 0), ErrValueTooLarge)

	v, err := s.Read("plain")
	require.NoError(t, err)
	assert.Len(t, v, DefaultMaxValueSize)

	doc := readFileJSON(t, path)
	assert.Len(t, doc["plain"]["value"], DefaultMaxValueSize, "snapshot keeps the unescaped form")
}

func TestStoreCreate_ValidationOrder(t *testing.T) {
	s, _ := openTestStore(t, nil)
	longKey := strings.Repeat("k", 33)

	assert.ErrorIs(t, s.Create(longKey, 1, -1), ErrKeyTooLong)
	assert.ErrorIs(t, s.Create("k", strings.Repeat("a", DefaultMaxValueSize), -1), ErrValueTooLarge)
	assert.ErrorIs(t, s.Create("k", 1, -1), ErrInvalidTTL)

	err := s.BatchCreate([]Pair{{Key: longKey, Value: 1}}, -1)
	assert.ErrorIs(t, err, ErrKeyTooLong)
	err = s.BatchCreate([]Pair{{Key: "k", Value: 1}}, -1)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

/* ---------------- Expiry ---------------- */

func TestStoreRead_ExpiryMonotonicity(t *testing.T) {
	clock := newFakeClock()
	s, path := openTestStore(t, clock)

	require.NoError(t, s.Create("temp", map[string]any{"n": 1}, 2))

	for i := 0; i < 2; i++ {
		v, err := s.Read("temp")
		require.NoError(t, err, "read at +%ds", i)
		assert.JSONEq(t, `{"n":1}`, string(v))
		clock.Advance(time.Second)
	}

	// now == expiry is still live
	_, err := s.Read("temp")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Read("temp")
	assert.ErrorIs(t, err, ErrKeyExpired)

	_, err = s.Read("temp")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	assert.NotContains(t, readFileJSON(t, path), "temp", "eviction must be persisted")
	assert.Equal(t, int64(1), s.Stats()[string(metrics.KVExpiredTotal)])
}

func TestStoreCreate_ReplacesExpiredEntry(t *testing.T) {
	clock := newFakeClock()
	s, _ := openTestStore(t, clock)

	require.NoError(t, s.Create("k", "old", 1))
	clock.Advance(2 * time.Second)

	require.NoError(t, s.Create("k", "new", 0))

	v, err := s.Read("k")
	require.NoError(t, err)
	assert.Equal(t, `"new"`, string(v))
}

func TestStoreRemove(t *testing.T) {
	clock := newFakeClock()
	s, path := openTestStore(t, clock)

	t.Run("remove existing key", func(t *testing.T) {
		require.NoError(t, s.Create("k1", 1, 0))
		require.NoError(t, s.Remove("k1"))

		_, err := s.Read("k1")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.NotContains(t, readFileJSON(t, path), "k1")
	})

	t.Run("remove missing key", func(t *testing.T) {
		assert.ErrorIs(t, s.Remove("nope"), ErrKeyNotFound)
	})

	t.Run("remove expired but unswept key", func(t *testing.T) {
		require.NoError(t, s.Create("k2", 2, 1))
		clock.Advance(5 * time.Second)

		assert.NoError(t, s.Remove("k2"))
		assert.ErrorIs(t, s.Remove("k2"), ErrKeyNotFound)
	})
}

/* ---------------- Batch ---------------- */

func TestStoreBatchCreate(t *testing.T) {
	s, path := openTestStore(t, nil)

	t.Run("inserts every pair with one save", func(t *testing.T) {
		savesBefore := s.Stats()[string(metrics.PersistSavesTotal)]

		require.NoError(t, s.BatchCreate([]Pair{
			{Key: "k1", Value: map[string]any{"a": 1}},
			{Key: "k2", Value: map[string]any{"b": 2}},
		}, 0))

		assert.Equal(t, savesBefore+1, s.Stats()[string(metrics.PersistSavesTotal)])

		v, err := s.Read("k1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(v))
		v, err = s.Read("k2")
		require.NoError(t, err)
		assert.JSONEq(t, `{"b":2}`, string(v))
	})

	t.Run("existing key rejects whole batch", func(t *testing.T) {
		err := s.BatchCreate([]Pair{
			{Key: "k1", Value: map[string]any{"a": 9}},
			{Key: "k3", Value: map[string]any{"c": 3}},
		}, 0)
		assert.ErrorIs(t, err, ErrDuplicateKeyInBatch)

		_, err = s.Read("k3")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.NotContains(t, readFileJSON(t, path), "k3")

		v, err := s.Read("k1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a":1}`, string(v))
	})

	t.Run("duplicate inside batch rejected", func(t *testing.T) {
		err := s.BatchCreate([]Pair{
			{Key: "d", Value: 1},
			{Key: "d", Value: 2},
		}, 0)
		assert.ErrorIs(t, err, ErrDuplicateKeyInBatch)

		_, err = s.Read("d")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("per entry limits", func(t *testing.T) {
		err := s.BatchCreate([]Pair{
			{Key: "ok", Value: 1},
			{Key: strings.Repeat("x", 33), Value: 1},
		}, 0)
		assert.ErrorIs(t, err, ErrKeyTooLong)

		err = s.BatchCreate([]Pair{
			{Key: "ok", Value: 1},
			{Key: "huge", Value: strings.Repeat("a", DefaultMaxValueSize)},
		}, 0)
		assert.ErrorIs(t, err, ErrValueTooLarge)

		_, err = s.Read("ok")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("batch size limit", func(t *testing.T) {
		pairs := make([]Pair, DefaultMaxBatchSize+1)
		for i := range pairs {
			pairs[i] = Pair{Key: fmt.Sprintf("b%d", i), Value: i}
		}
		assert.ErrorIs(t, s.BatchCreate(pairs, 0), ErrBatchTooLarge)

		require.NoError(t, s.BatchCreate(pairs[:DefaultMaxBatchSize], 0))
		assert.Equal(t, 2+DefaultMaxBatchSize, s.Len())
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		assert.NoError(t, s.BatchCreate(nil, 0))
	})
}

func TestStoreBatchCreate_SharedTTL(t *testing.T) {
	clock := newFakeClock()
	s, _ := openTestStore(t, clock)

	require.NoError(t, s.BatchCreate([]Pair{{Key: "a", Value: 1}, {Key: "b", Value: 2}}, 10))

	clock.Advance(11 * time.Second)
	_, err := s.Read("a")
	assert.ErrorIs(t, err, ErrKeyExpired)
	_, err = s.Read("b")
	assert.ErrorIs(t, err, ErrKeyExpired)
}

func TestStoreBatchCreate_ReplacesExpiredKeys(t *testing.T) {
	clock := newFakeClock()
	s, _ := openTestStore(t, clock)

	require.NoError(t, s.Create("a", "old", 1))
	clock.Advance(2 * time.Second)

	require.NoError(t, s.BatchCreate([]Pair{{Key: "a", Value: "new"}}, 0))
	v, err := s.Read("a")
	require.NoError(t, err)
	assert.Equal(t, `"new"`, string(v))
}

/* ---------------- Sweep ---------------- */

func TestStoreSweep(t *testing.T) {
	clock := newFakeClock()
	s, path := openTestStore(t, clock)

	require.NoError(t, s.Create("short", 1, 1))
	require.NoError(t, s.Create("long", 2, 100))
	require.NoError(t, s.Create("forever", 3, 0))

	removed, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	clock.Advance(2 * time.Second)
	savesBefore := s.Stats()[string(metrics.PersistSavesTotal)]

	removed, err = s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"forever", "long"}, s.Keys())
	assert.Equal(t, savesBefore+1, s.Stats()[string(metrics.PersistSavesTotal)])
	assert.NotContains(t, readFileJSON(t, path), "short")

	removed, err = s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Equal(t, savesBefore+1, s.Stats()[string(metrics.PersistSavesTotal)], "no save without removals")
}

func TestStoreBackgroundSweep(t *testing.T) {
	clock := newFakeClock()
	path := filepath.Join(t.TempDir(), "datastore.json")

	s, err := Open(Options{
		Path:          path,
		Now:           clock.Now,
		SweepInterval: Duration(5 * time.Millisecond),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Create("gone", 1, 1))
	require.NoError(t, s.Create("kept", 2, 0))
	clock.Advance(2 * time.Second)

	assert.Eventually(t, func() bool {
		return s.Len() == 1
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return s.Stats()[string(metrics.TTLKeysRemovedTotal)] == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"kept"}, s.Keys())
}

/* ---------------- Concurrency ---------------- */

func TestStoreConcurrentCreates(t *testing.T) {
	s, path := openTestStore(t, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		succeeded int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Create("key", i, 0); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrKeyExists)
			}
			_ = s.Create(fmt.Sprintf("k%d", i), i, 0)
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded, "exactly one create of the same key wins")
	assert.Equal(t, 51, s.Len())
	assert.Len(t, readFileJSON(t, path), 51)
}

func TestStoreConcurrentCreateAndRead(t *testing.T) {
	s, _ := openTestStore(t, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, s.Create("key1", map[string]any{"name": "Alice"}, 0))
	}()
	go func() {
		defer wg.Done()
		assert.Eventually(t, func() bool {
			v, err := s.Read("key1")
			return err == nil && string(v) == `{"name":"Alice"}`
		}, time.Second, time.Millisecond)
	}()
	wg.Wait()
}

/* ---------------- End to end ---------------- */

func TestStoreEndToEnd_RealClockExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps for 3 seconds")
	}

	s, _ := openTestStore(t, nil)

	require.NoError(t, s.Create("user1", map[string]any{"name": "Ann"}, 2))

	v, err := s.Read("user1")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ann"}`, string(v))

	time.Sleep(3 * time.Second)

	_, err = s.Read("user1")
	assert.ErrorIs(t, err, ErrKeyExpired)

	_, err = s.Read("user1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
