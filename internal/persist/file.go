package persist

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileSnapshotter stores the snapshot as one JSON document in a flat file.
type FileSnapshotter struct {
	path string
}

// NewFileSnapshotter creates a snapshotter writing to path.
func NewFileSnapshotter(path string) *FileSnapshotter {
	return &FileSnapshotter{path: path}
}

// Path returns the target file path.
func (s *FileSnapshotter) Path() string {
	return s.path
}

func (s *FileSnapshotter) Load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, s.path, err)
	}

	records, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, s.path, err)
	}
	return records, nil
}

// Save writes the snapshot to a temporary file in the target directory
// and renames it over the target, so readers see either the old or the
// new snapshot in full.
func (s *FileSnapshotter) Save(records map[string]Record) (int64, error) {
	data, err := Encode(records)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSaveFailed, s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSaveFailed, s.path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSaveFailed, s.path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: %s: %v", ErrSaveFailed, s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: %s: %v", ErrSaveFailed, s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: %s: %v", ErrSaveFailed, s.path, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: %s: %v", ErrSaveFailed, s.path, err)
	}

	return int64(len(data)), nil
}

func (s *FileSnapshotter) Close() error {
	return nil
}
