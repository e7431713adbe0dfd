package hash

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daemondb/internal/buffer"
	"daemondb/internal/diskio"
)

func newTestTable(t *testing.T, numBuckets int) *Table {
	t.Helper()
	disk := diskio.NewInMemoryDiskManager()
	pm := buffer.NewPoolManager(64, disk)
	table, err := New("t", pm, Uint64Comparator, numBuckets, XXHash)
	require.NoError(t, err)
	return table
}

func TestInsertThenGetValueRoundTrips(t *testing.T) {
	table := newTestTable(t, 16)

	require.True(t, table.Insert(nil, 1, 100))
	values, ok := table.GetValue(nil, 1)
	require.True(t, ok)
	assert.Equal(t, []uint64{100}, values)
}

func TestGetValueMissingKeyReturnsFalse(t *testing.T) {
	table := newTestTable(t, 16)
	values, ok := table.GetValue(nil, 999)
	assert.False(t, ok)
	assert.Empty(t, values)
}

func TestInsertDuplicatePairIsSuppressed(t *testing.T) {
	table := newTestTable(t, 16)
	require.True(t, table.Insert(nil, 1, 100))
	assert.False(t, table.Insert(nil, 1, 100), "the same (key,value) pair twice is a no-op")

	values, ok := table.GetValue(nil, 1)
	require.True(t, ok)
	assert.Equal(t, []uint64{100}, values, "no duplicate entry was created")
}

func TestInsertSameKeyDifferentValuesIsAMultimap(t *testing.T) {
	table := newTestTable(t, 16)
	require.True(t, table.Insert(nil, 1, 100))
	require.True(t, table.Insert(nil, 1, 200))

	values, ok := table.GetValue(nil, 1)
	require.True(t, ok)
	assert.ElementsMatch(t, []uint64{100, 200}, values)
}

func TestRemoveTombstoneDoesNotInterruptLaterProbes(t *testing.T) {
	table := newTestTable(t, 4) // small, forces collisions within BlockArraySize
	for i := uint64(0); i < 8; i++ {
		require.True(t, table.Insert(nil, i, i*10))
	}

	require.True(t, table.Remove(nil, 3, 30))

	// Every other key must still resolve correctly; the tombstone left
	// at key 3's slot must not stop probing for keys that hashed past it.
	for i := uint64(0); i < 8; i++ {
		if i == 3 {
			continue
		}
		values, ok := table.GetValue(nil, i)
		require.True(t, ok, "key %d should still be found", i)
		assert.Contains(t, values, i*10)
	}

	_, ok := table.GetValue(nil, 3)
	assert.False(t, ok, "removed key should no longer be found")
}

func TestRemoveOnlyMatchesExactKeyValuePair(t *testing.T) {
	table := newTestTable(t, 16)
	require.True(t, table.Insert(nil, 5, 50))
	require.True(t, table.Insert(nil, 5, 51))

	assert.False(t, table.Remove(nil, 5, 999), "no entry has this value")
	assert.True(t, table.Remove(nil, 5, 50))

	values, ok := table.GetValue(nil, 5)
	require.True(t, ok)
	assert.Equal(t, []uint64{51}, values)
}

func TestResizeGrowsAndPreservesAllEntries(t *testing.T) {
	table := newTestTable(t, 8)

	const n = 400 // comfortably larger than the initial 8-slot table
	for i := uint64(0); i < n; i++ {
		require.True(t, table.Insert(nil, i, i))
	}

	sizeAfter := table.GetSize()
	assert.Greater(t, sizeAfter, uint64(8), "inserting far more keys than the initial size must have triggered at least one Resize")

	for i := uint64(0); i < n; i++ {
		values, ok := table.GetValue(nil, i)
		require.True(t, ok, "key %d must survive resize", i)
		assert.Contains(t, values, i)
	}
}

func TestProbeSequenceTerminatesOnFullTable(t *testing.T) {
	// A single-block table whose slots are all occupied (not necessarily
	// readable) must report full rather than loop forever.
	table := newTestTable(t, BlockArraySize)
	for i := uint64(0); i < BlockArraySize; i++ {
		require.True(t, table.Insert(nil, i, i))
	}

	ok, full := table.tryInsert(uint64(BlockArraySize), uint64(BlockArraySize))
	assert.False(t, ok)
	assert.True(t, full, "a table with every slot occupied must report full, not hang")
}

func TestConcurrentInsertsAllSucceed(t *testing.T) {
	table := newTestTable(t, 32)

	const n = 200
	var wg sync.WaitGroup
	for i := uint64(0); i < n; i++ {
		wg.Add(1)
		go func(key uint64) {
			defer wg.Done()
			table.Insert(nil, key, key*2)
		}(i)
	}
	wg.Wait()

	for i := uint64(0); i < n; i++ {
		values, ok := table.GetValue(nil, i)
		require.True(t, ok, "key %d missing after concurrent inserts", i)
		assert.Contains(t, values, i*2)
	}
}

func TestHashFunctionsAreDeterministic(t *testing.T) {
	for i := uint64(0); i < 100; i++ {
		assert.Equal(t, XXHash(i), XXHash(i), fmt.Sprintf("XXHash(%d) must be stable across calls", i))
	}
}

func TestUint64ComparatorOrdering(t *testing.T) {
	assert.Equal(t, -1, Uint64Comparator(1, 2))
	assert.Equal(t, 1, Uint64Comparator(2, 1))
	assert.Equal(t, 0, Uint64Comparator(2, 2))
}
