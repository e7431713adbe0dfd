package stats

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"daemondb/internal/buffer"
)

// snapshotTTL bounds how stale a served PoolStats snapshot can be. A miss
// takes the buffer pool's mutex to read its counters; a sub-second TTL
// keeps a debug endpoint being polled in a tight loop from contending on
// that mutex more than once a tick.
const snapshotTTL = 500 * time.Millisecond

const snapshotKey = "pool"

// PoolStats is a point-in-time read of the buffer pool's counters.
type PoolStats struct {
	Hits, Misses, Evictions, Flushes uint64
	ResidentPages, FreeFrames        int
	PoolSize                         int
}

// Cache serves PoolStats snapshots, recomputing at most once per TTL
// window via a ristretto cache sitting in front of the buffer pool's own
// mutex-guarded counters. Wiring ristretto here — rather than against
// page frames, which the buffer pool exclusively owns per spec.md §5 —
// keeps this purely a derived-data cache with no bearing on page
// residency or eviction.
type Cache struct {
	pm    *buffer.PoolManager
	cache *ristretto.Cache[string, PoolStats]
}

// New wraps pm with a ristretto-backed stats cache.
func New(pm *buffer.PoolManager) (*Cache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, PoolStats]{
		NumCounters: 100,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{pm: pm, cache: rc}, nil
}

// Snapshot returns the most recent PoolStats, recomputing from the
// buffer pool only if the cached value has aged past snapshotTTL.
func (c *Cache) Snapshot() PoolStats {
	if v, ok := c.cache.Get(snapshotKey); ok {
		return v
	}

	hits, misses, evictions, flushes, resident, free := c.pm.Snapshot()
	snap := PoolStats{
		Hits:          hits,
		Misses:        misses,
		Evictions:     evictions,
		Flushes:       flushes,
		ResidentPages: resident,
		FreeFrames:    free,
		PoolSize:      c.pm.PoolSize(),
	}

	c.cache.SetWithTTL(snapshotKey, snap, 1, snapshotTTL)
	c.cache.Wait()
	return snap
}

// Close releases the underlying ristretto cache's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}
