package persist

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	boltBucket = []byte("kvstore")
	boltKey    = []byte("snapshot")
)

// BoltSnapshotter stores the snapshot document under a single key of a
// Bolt bucket. Each Save is one update transaction.
type BoltSnapshotter struct {
	db *bolt.DB
}

// OpenBolt opens or creates the Bolt database at path. It fails if another
// process holds the database lock for more than a second.
func OpenBolt(path string) (*BoltSnapshotter, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, path, err)
	}
	return &BoltSnapshotter{db: db}, nil
}

func (s *BoltSnapshotter) Load() (map[string]Record, error) {
	var data []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(boltKey)
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	if data == nil {
		return map[string]Record{}, nil
	}

	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return records, nil
}

func (s *BoltSnapshotter) Save(records map[string]Record) (int64, error) {
	data, err := Encode(records)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(boltKey, data)
	}); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return int64(len(data)), nil
}

func (s *BoltSnapshotter) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
