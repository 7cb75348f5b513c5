package kvstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ttl-kvstore/internal/persist"
)

// Default limits.
const (
	DefaultPath          = "datastore.json"
	DefaultMaxKeyLength  = 32
	DefaultMaxValueSize  = 16 * 1024
	DefaultMaxBatchSize  = 100
	DefaultMaxFileSize   = 1 << 30
	DefaultSweepInterval = 10 * time.Minute
	DefaultLogBufferSize = 1000
	DefaultLogLevel      = "INFO"
)

// Snapshot backends.
const (
	BackendFile = persist.BackendFile
	BackendBolt = persist.BackendBolt
)

// Duration is a time.Duration that reads and writes JSON as "10m"-style strings.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Options configures a Store. Zero values fall back to the defaults.
type Options struct {
	Path    string          `json:"path,omitempty"`
	Backend persist.Backend `json:"backend,omitempty"`

	MaxKeyLength int `json:"max_key_length,omitempty"`
	MaxValueSize int `json:"max_value_size,omitempty"`
	MaxBatchSize int `json:"max_batch_size,omitempty"`
	// MaxFileSize is advisory: larger snapshots are still written, with a warning.
	MaxFileSize int64 `json:"max_file_size,omitempty"`

	SweepInterval Duration `json:"sweep_interval,omitempty"`
	DisableSweep  bool     `json:"disable_sweep,omitempty"`

	LogBufferSize int    `json:"log_buffer_size,omitempty"`
	LogLevel      string `json:"log_level,omitempty"`

	// LogSink, when set, receives a copy of every log entry.
	LogSink *slog.Logger `json:"-"`
	// Now is the clock used for expiry. Defaults to time.Now.
	Now func() time.Time `json:"-"`
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Path:          DefaultPath,
		Backend:       BackendFile,
		MaxKeyLength:  DefaultMaxKeyLength,
		MaxValueSize:  DefaultMaxValueSize,
		MaxBatchSize:  DefaultMaxBatchSize,
		MaxFileSize:   DefaultMaxFileSize,
		SweepInterval: Duration(DefaultSweepInterval),
		LogBufferSize: DefaultLogBufferSize,
		LogLevel:      DefaultLogLevel,
		Now:           time.Now,
	}
}

// Merge applies non-zero values from source into o.
func (o *Options) Merge(source *Options) {
	if source.Path != "" {
		o.Path = source.Path
	}
	if source.Backend != "" {
		o.Backend = source.Backend
	}
	if source.MaxKeyLength > 0 {
		o.MaxKeyLength = source.MaxKeyLength
	}
	if source.MaxValueSize > 0 {
		o.MaxValueSize = source.MaxValueSize
	}
	if source.MaxBatchSize > 0 {
		o.MaxBatchSize = source.MaxBatchSize
	}
	if source.MaxFileSize > 0 {
		o.MaxFileSize = source.MaxFileSize
	}
	if source.SweepInterval > 0 {
		o.SweepInterval = source.SweepInterval
	}
	if source.DisableSweep {
		o.DisableSweep = true
	}
	if source.LogBufferSize > 0 {
		o.LogBufferSize = source.LogBufferSize
	}
	if source.LogLevel != "" {
		o.LogLevel = source.LogLevel
	}
	if source.LogSink != nil {
		o.LogSink = source.LogSink
	}
	if source.Now != nil {
		o.Now = source.Now
	}
}

// LoadOptions reads a JSON options file and merges it over the defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read options %s: %w", path, err)
	}

	var file Options
	if err := json.Unmarshal(data, &file); err != nil {
		return opts, fmt.Errorf("parse options %s: %w", path, err)
	}

	opts.Merge(&file)
	return opts, nil
}
