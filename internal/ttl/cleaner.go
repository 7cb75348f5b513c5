package ttl

import (
	"context"
	"time"

	"ttl-kvstore/internal/logs"
	"ttl-kvstore/internal/metrics"
)

// Store defines the minimal contract required by the TTL cleaner.
// This keeps the cleaner decoupled from the concrete store implementation.
type Store interface {
	// Sweep removes expired keys, persists if any were removed, and
	// returns how many were removed.
	Sweep() (int, error)
}

// Cleaner periodically removes expired keys from the store.
type Cleaner struct {
	store    Store
	interval time.Duration
	logger   *logs.Logger
	metrics  *metrics.Registry
}

// NewCleaner creates a new instance of TTL Cleaner.
func NewCleaner(
	store Store,
	interval time.Duration,
	logger *logs.Logger,
	reg *metrics.Registry,
) *Cleaner {
	return &Cleaner{
		store:    store,
		interval: interval,
		logger:   logger,
		metrics:  reg,
	}
}

// Start runs the cleanup loop until the context is cancelled.
// It blocks and should typically be run in a separate goroutine.
func (c *Cleaner) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runOnce()
		case <-ctx.Done():
			c.logger.Debug("ttl cleaner stopped")
			return
		}
	}
}

// runOnce performs a single cleanup cycle.
func (c *Cleaner) runOnce() {
	c.metrics.Inc(metrics.TTLCleanupRunsTotal)

	removed, err := c.store.Sweep()
	if removed > 0 {
		c.metrics.Add(metrics.TTLKeysRemovedTotal, int64(removed))
		c.logger.Info("ttl cleaner removed expired keys", "removed", removed)
	}
	if err != nil {
		c.logger.Error("ttl sweep failed", "err", err.Error())
	}
}
