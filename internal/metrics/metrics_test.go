package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_IncAndAdd(t *testing.T) {
	r := NewRegistry()

	r.Inc(KVCreatesTotal)
	r.Add(KVCreatesTotal, 2)

	snap := r.Snapshot()
	assert.Equal(t, int64(3), snap[string(KVCreatesTotal)])
}

func TestRegistry_MultipleMetrics(t *testing.T) {
	r := NewRegistry()

	r.Inc(KVReadsTotal)
	r.Inc(KVMissesTotal)
	r.Add(TTLKeysRemovedTotal, 5)

	snap := r.Snapshot()

	assert.Equal(t, int64(1), snap[string(KVReadsTotal)])
	assert.Equal(t, int64(1), snap[string(KVMissesTotal)])
	assert.Equal(t, int64(5), snap[string(TTLKeysRemovedTotal)])
}

func TestRegistry_Set(t *testing.T) {
	r := NewRegistry()

	r.Set(PersistSnapshotBytes, 120)
	r.Set(PersistSnapshotBytes, 2)

	assert.Equal(t, int64(2), r.Snapshot()[string(PersistSnapshotBytes)])
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	r := NewRegistry()
	wg := sync.WaitGroup{}

	workers := 50
	increments := 100

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				r.Inc(PersistSavesTotal)
			}
		}()
	}

	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, int64(workers*increments), snap[string(PersistSavesTotal)])
}

func TestRegistry_SnapshotIsDeepCopy(t *testing.T) {
	r := NewRegistry()

	r.Inc(KVKeysTotal)
	snap1 := r.Snapshot()

	snap1[string(KVKeysTotal)] = 999

	snap2 := r.Snapshot()

	assert.Equal(t, int64(1), snap2[string(KVKeysTotal)],
		"internal state should not be affected by snapshot mutation")
}

func TestRegistry_UnknownMetricHandledGracefully(t *testing.T) {
	r := NewRegistry()

	r.Inc("unknown_metric")

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap["unknown_metric"])
}
