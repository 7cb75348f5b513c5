// Package persist keeps a durable mirror of the entry table. Every save
// writes a complete snapshot; there is no incremental log.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for snapshot operations.
var (
	ErrLoadFailed     = errors.New("load failed")
	ErrSaveFailed     = errors.New("save failed")
	ErrCorrupt        = errors.New("corrupt snapshot")
	ErrUnknownBackend = errors.New("unknown backend")
)

// Record is the on-disk form of one entry. TTL holds the absolute expiry
// in Unix seconds, 0 meaning never.
type Record struct {
	Value json.RawMessage `json:"value"`
	TTL   int64           `json:"ttl"`
}

// Snapshotter reads and writes whole-table snapshots.
type Snapshotter interface {
	// Load returns the last saved snapshot. A missing snapshot yields an
	// empty map and no error.
	Load() (map[string]Record, error)
	// Save replaces the stored snapshot with records and returns the
	// encoded size in bytes.
	Save(records map[string]Record) (int64, error)
	// Close releases any resources held by the backend.
	Close() error
}

// Backend names a Snapshotter implementation.
type Backend string

const (
	BackendFile Backend = "file"
	BackendBolt Backend = "bolt"
)

// Open returns the Snapshotter for backend rooted at path.
func Open(backend Backend, path string) (Snapshotter, error) {
	switch backend {
	case BackendFile, "":
		return NewFileSnapshotter(path), nil
	case BackendBolt:
		s, err := OpenBolt(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// Encode serializes records as a single JSON object. An empty snapshot
// encodes as "{}", never as zero bytes.
func Encode(records map[string]Record) ([]byte, error) {
	if records == nil {
		records = map[string]Record{}
	}
	return Marshal(records)
}

// Marshal encodes v as compact JSON without HTML escaping, so the bytes
// match what a stored value's size limit was checked against.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) (map[string]Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorrupt)
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if records == nil {
		return nil, fmt.Errorf("%w: top level is not an object", ErrCorrupt)
	}

	for k, r := range records {
		if r.Value == nil {
			r.Value = json.RawMessage("null")
			records[k] = r
		}
	}
	return records, nil
}
