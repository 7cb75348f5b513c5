package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"ttl-kvstore/internal/health"
	"ttl-kvstore/internal/logs"
	"ttl-kvstore/internal/metrics"
	"ttl-kvstore/internal/persist"
	"ttl-kvstore/internal/table"
	"ttl-kvstore/internal/ttl"
)

type (
	// HealthReport summarizes store health from metrics and recent logs.
	HealthReport = health.Report
	// LogEntry is one recorded log line.
	LogEntry = logs.Entry
)

// Pair is one key-value pair of a batch.
type Pair struct {
	Key   string
	Value any
}

// entryTable is the narrow view of the table the store depends on.
type entryTable interface {
	Get(key string) (table.Entry, bool)
	Put(key string, e table.Entry)
	Delete(key string) bool
	IsExpired(key string, now time.Time) bool
	RemoveExpired(now time.Time) []string
	Len() int
	Keys() []string
	Snapshot() map[string]table.Entry
	Load(entries map[string]table.Entry)
}

// Store is a concurrency-safe key-value store with TTL expiration.
//
// Design principles:
// - One exclusive lock guards the table and every snapshot write
// - Snapshots are written synchronously after each mutation
// - Expiry is observed lazily on Read and periodically by the sweeper
type Store struct {
	mu      sync.Mutex
	id      string
	opts    Options
	entries entryTable
	backend persist.Snapshotter
	logger  *logs.Logger
	metrics *metrics.Registry
	health  *health.Analyzer
	now     func() time.Time
	loadErr error
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Open creates a Store, hydrating it from the snapshot at opts.Path.
//
// A missing snapshot starts an empty store. A snapshot that cannot be
// parsed is logged and also starts an empty store; the error is kept
// in LoadErr. Open fails only when the backend itself cannot be opened.
func Open(opts Options) (*Store, error) {
	o := DefaultOptions()
	o.Merge(&opts)

	backend, err := persist.Open(o.Backend, o.Path)
	if err != nil {
		return nil, &Error{Code: CodePersistenceLoadFailure, Op: "open", Err: err}
	}

	logger := logs.NewLogger(o.LogBufferSize, logs.ParseLevel(o.LogLevel))
	if o.LogSink != nil {
		logger.WithSink(o.LogSink)
	}
	reg := metrics.NewRegistry()

	s := &Store{
		id:      uuid.NewString(),
		opts:    o,
		entries: table.New(),
		backend: backend,
		logger:  logger,
		metrics: reg,
		health:  health.NewAnalyzer(reg, logger),
		now:     o.Now,
	}

	s.load()

	if !o.DisableSweep {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		cleaner := ttl.NewCleaner(sweeper{s}, time.Duration(o.SweepInterval), logger, reg)
		go func() {
			defer close(s.done)
			cleaner.Start(ctx)
		}()
	}

	s.logger.Info("store opened",
		"store_id", s.id,
		"backend", string(o.Backend),
		"path", o.Path,
		"entries", s.entries.Len(),
	)
	return s, nil
}

func (s *Store) load() {
	records, err := s.backend.Load()
	if err != nil {
		s.loadErr = &Error{Code: CodePersistenceLoadFailure, Op: "load", Err: err}
		s.metrics.Inc(metrics.PersistLoadFailuresTotal)
		s.logger.Warn("snapshot load failed, starting empty",
			"store_id", s.id, "path", s.opts.Path, "err", err.Error())
		return
	}

	loaded := make(map[string]table.Entry, len(records))
	for k, r := range records {
		loaded[k] = table.Entry{Value: r.Value, ExpiresAt: r.TTL}
	}
	s.entries.Load(loaded)
	s.metrics.Set(metrics.KVKeysTotal, int64(s.entries.Len()))
}

// ID returns the identifier of this store instance, as seen in its logs.
func (s *Store) ID() string {
	return s.id
}

// LoadErr returns the snapshot load error recorded by Open, if any.
func (s *Store) LoadErr() error {
	return s.loadErr
}

// Create inserts key with value, expiring ttlSeconds from now (0 = never).
//
// An expired entry still occupying key is evicted first and does not
// count as existing.
func (s *Store) Create(key string, value any, ttlSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "create"
	if s.closed {
		return &Error{Code: CodeStoreClosed, Op: op, Key: key}
	}
	if len(key) > s.opts.MaxKeyLength {
		return s.reject(op, key, CodeKeyTooLong, nil)
	}
	raw, err := s.encodeValue(op, key, value)
	if err != nil {
		return err
	}
	if ttlSeconds < 0 {
		return s.reject(op, key, CodeInvalidTTL, nil)
	}

	now := s.now()
	if _, ok := s.entries.Get(key); ok {
		if !s.entries.IsExpired(key, now) {
			return s.reject(op, key, CodeKeyExists, nil)
		}
		s.evict(key)
	}

	s.entries.Put(key, table.NewEntry(raw, ttlSeconds, now))
	s.metrics.Inc(metrics.KVCreatesTotal)

	return s.save(op, key, true)
}

// Read returns the value stored under key.
//
// Reading an expired key evicts it, persists the eviction and returns
// KeyExpired; later reads return KeyNotFound.
func (s *Store) Read(key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "read"
	if s.closed {
		return nil, &Error{Code: CodeStoreClosed, Op: op, Key: key}
	}
	s.metrics.Inc(metrics.KVReadsTotal)

	e, ok := s.entries.Get(key)
	if !ok {
		s.metrics.Inc(metrics.KVMissesTotal)
		return nil, &Error{Code: CodeKeyNotFound, Op: op, Key: key}
	}

	if s.entries.IsExpired(key, s.now()) {
		s.evict(key)
		if err := s.save(op, key, true); err != nil {
			return nil, err
		}
		return nil, &Error{Code: CodeKeyExpired, Op: op, Key: key}
	}

	return append(json.RawMessage(nil), e.Value...), nil
}

// Remove deletes key. Expired entries not yet swept can still be removed.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "remove"
	if s.closed {
		return &Error{Code: CodeStoreClosed, Op: op, Key: key}
	}
	if !s.entries.Delete(key) {
		return s.reject(op, key, CodeKeyNotFound, nil)
	}
	s.metrics.Inc(metrics.KVRemovesTotal)

	return s.save(op, key, true)
}

// BatchCreate inserts every pair with a shared TTL, or none of them.
//
// The whole batch is validated before anything changes. A key repeated
// inside the batch, or already live in the store, fails the batch with
// DuplicateKeyInBatch. The applied batch is persisted with one write.
func (s *Store) BatchCreate(pairs []Pair, ttlSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const op = "batch_create"
	if s.closed {
		return &Error{Code: CodeStoreClosed, Op: op}
	}
	if len(pairs) > s.opts.MaxBatchSize {
		return s.reject(op, "", CodeBatchTooLarge, nil)
	}

	now := s.now()
	raws := make([]json.RawMessage, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	var stale []string

	for i, p := range pairs {
		if len(p.Key) > s.opts.MaxKeyLength {
			return s.reject(op, p.Key, CodeKeyTooLong, nil)
		}
		raw, err := s.encodeValue(op, p.Key, p.Value)
		if err != nil {
			return err
		}
		raws[i] = raw

		if _, dup := seen[p.Key]; dup {
			return s.reject(op, p.Key, CodeDuplicateKeyInBatch, nil)
		}
		seen[p.Key] = struct{}{}

		if _, ok := s.entries.Get(p.Key); ok {
			if !s.entries.IsExpired(p.Key, now) {
				return s.reject(op, p.Key, CodeDuplicateKeyInBatch, nil)
			}
			stale = append(stale, p.Key)
		}
	}

	if ttlSeconds < 0 {
		return s.reject(op, "", CodeInvalidTTL, nil)
	}

	if len(pairs) == 0 {
		return nil
	}

	for _, key := range stale {
		s.evict(key)
	}
	for i, p := range pairs {
		s.entries.Put(p.Key, table.NewEntry(raws[i], ttlSeconds, now))
	}
	s.metrics.Inc(metrics.KVBatchesTotal)
	s.metrics.Add(metrics.KVCreatesTotal, int64(len(pairs)))

	return s.save(op, "", true)
}

// Sweep removes every expired entry and persists once if any were removed.
func (s *Store) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, &Error{Code: CodeStoreClosed, Op: "sweep"}
	}
	return s.sweepLocked()
}

func (s *Store) sweepLocked() (int, error) {
	removed := s.entries.RemoveExpired(s.now())
	if len(removed) == 0 {
		return 0, nil
	}
	s.metrics.Add(metrics.KVExpiredTotal, int64(len(removed)))
	return len(removed), s.save("sweep", "", true)
}

// Flush writes the current table to the snapshot. Use it to retry after
// a PersistenceWriteFailure.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &Error{Code: CodeStoreClosed, Op: "flush"}
	}
	return s.save("flush", "", false)
}

// Len returns the number of stored entries, including expired entries
// that have not been swept yet.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

// Keys returns all stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Keys()
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() map[string]int64 {
	return s.metrics.Snapshot()
}

// Health evaluates the store's counters and recent logs.
func (s *Store) Health() HealthReport {
	return s.health.Analyze()
}

// Logs returns up to the n most recent log entries.
func (s *Store) Logs(n int) []LogEntry {
	return s.logger.GetLast(n)
}

// Close stops the sweeper, writes a final snapshot and releases the
// backend. Calling Close more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	saveErr := s.save("close", "", false)
	closeErr := s.backend.Close()
	s.logger.Info("store closed", "store_id", s.id, "entries", s.entries.Len())

	return errors.Join(saveErr, closeErr)
}

// save writes the full table. mutated marks whether the caller already
// changed the table, which is reported on failure.
func (s *Store) save(op, key string, mutated bool) error {
	s.metrics.Set(metrics.KVKeysTotal, int64(s.entries.Len()))

	snapshot := s.entries.Snapshot()
	records := make(map[string]persist.Record, len(snapshot))
	for k, e := range snapshot {
		records[k] = persist.Record{Value: e.Value, TTL: e.ExpiresAt}
	}

	n, err := s.backend.Save(records)
	if err != nil {
		s.metrics.Inc(metrics.PersistSaveFailuresTotal)
		s.logger.Error("snapshot save failed",
			"store_id", s.id, "op", op, "key", key, "err", err.Error())
		return &Error{
			Code:            CodePersistenceWriteFailure,
			Op:              op,
			Key:             key,
			AppliedInMemory: mutated,
			Err:             err,
		}
	}

	s.metrics.Inc(metrics.PersistSavesTotal)
	s.metrics.Add(metrics.PersistBytesWrittenTotal, n)
	s.metrics.Set(metrics.PersistSnapshotBytes, n)

	if n > s.opts.MaxFileSize {
		s.metrics.Inc(metrics.PersistOversizeSavesTotal)
		s.logger.Warn("snapshot exceeds size ceiling",
			"store_id", s.id, "bytes", n, "max", s.opts.MaxFileSize)
	}
	return nil
}

// evict drops an expired entry.
func (s *Store) evict(key string) {
	if s.entries.Delete(key) {
		s.metrics.Inc(metrics.KVExpiredTotal)
	}
}

func (s *Store) reject(op, key string, code Code, err error) error {
	s.metrics.Inc(metrics.KVRejectedTotal)
	s.logger.Debug("operation rejected", "op", op, "key", key, "code", string(code))
	return &Error{Code: code, Op: op, Key: key, Err: err}
}

// encodeValue returns the compact, unescaped JSON form of value and
// enforces the value size limit on it.
func (s *Store) encodeValue(op, key string, value any) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)
	switch v := value.(type) {
	case json.RawMessage:
		raw, err = compact(v)
	case []byte:
		raw, err = compact(v)
	default:
		raw, err = persist.Marshal(v)
	}
	if err != nil {
		return nil, s.reject(op, key, CodeInvalidValue, err)
	}
	if len(raw) > s.opts.MaxValueSize {
		return nil, s.reject(op, key, CodeValueTooLarge, nil)
	}
	return raw, nil
}

func compact(doc []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// sweeper adapts Store to the TTL cleaner. Ticks that land after Close
// are ignored.
type sweeper struct {
	s *Store
}

func (w sweeper) Sweep() (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if w.s.closed {
		return 0, nil
	}
	return w.s.sweepLocked()
}
