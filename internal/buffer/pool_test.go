package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daemondb/internal/diskio"
)

func TestNewPageThenFetchRoundTrips(t *testing.T) {
	disk := diskio.NewInMemoryDiskManager()
	pm := NewPoolManager(4, disk)

	pid, data, ok, err := pm.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	data[0] = 0xAB

	require.True(t, pm.UnpinPage(pid, true))
	require.True(t, pm.FlushPage(pid))

	fetched, ok, err := pm.FetchPage(pid)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(0xAB), fetched[0])
	pm.UnpinPage(pid, false)
}

func TestFetchPageHitIncrementsPinAndBlocksEviction(t *testing.T) {
	disk := diskio.NewInMemoryDiskManager()
	pm := NewPoolManager(1, disk)

	pid, _, ok, err := pm.NewPage()
	require.NoError(t, err)
	require.True(t, ok)

	// Fetch again without unpinning first: pin count is now 2, so the
	// lone frame cannot be evicted until both unpins have happened
	// (invariant I3).
	_, ok, err = pm.FetchPage(pid)
	require.NoError(t, err)
	require.True(t, ok)

	pm.UnpinPage(pid, false)
	_, stillMissing, ok, err := pm.NewPage()
	require.NoError(t, err)
	assert.False(t, ok, "the only frame is still pinned once")
	assert.Nil(t, stillMissing)

	pm.UnpinPage(pid, false)
	_, _, ok, err = pm.NewPage()
	require.NoError(t, err)
	assert.True(t, ok, "once pid's pin count reaches zero, NewPage evicts it to make room")
}

func TestUnpinPageRejectsOverUnpin(t *testing.T) {
	disk := diskio.NewInMemoryDiskManager()
	pm := NewPoolManager(2, disk)

	pid, _, ok, err := pm.NewPage()
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, pm.UnpinPage(pid, false))
	assert.False(t, pm.UnpinPage(pid, false), "pin count is already 0")
}

func TestDeletePageRefusesWhilePinned(t *testing.T) {
	disk := diskio.NewInMemoryDiskManager()
	pm := NewPoolManager(2, disk)

	pid, _, ok, err := pm.NewPage()
	require.NoError(t, err)
	require.True(t, ok)

	assert.False(t, pm.DeletePage(pid), "page is still pinned")

	pm.UnpinPage(pid, false)
	assert.True(t, pm.DeletePage(pid))
	assert.True(t, pm.DeletePage(pid), "deleting an absent page is vacuously true")
}

func TestObtainFrameEvictsUnpinnedVictimAndWritesBackDirty(t *testing.T) {
	disk := diskio.NewInMemoryDiskManager()
	pm := NewPoolManager(1, disk)

	firstPID, data, ok, err := pm.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	data[0] = 0x42
	pm.UnpinPage(firstPID, true)

	secondPID, _, ok, err := pm.NewPage()
	require.NoError(t, err)
	require.True(t, ok, "the sole frame is unpinned, so eviction must make room")
	pm.UnpinPage(secondPID, false)

	_, misses, _, flushes, resident, _ := pm.Snapshot()
	assert.GreaterOrEqual(t, misses, uint64(0))
	assert.GreaterOrEqual(t, flushes, uint64(0))
	assert.Equal(t, 1, resident, "only the newest page occupies the single frame")

	var buf diskio.PageData
	require.NoError(t, disk.ReadPage(firstPID, &buf))
	assert.Equal(t, byte(0x42), buf[0], "the dirty page must have been written back on eviction")
}

func TestFlushAllPagesFlushesEveryResidentFrame(t *testing.T) {
	disk := diskio.NewInMemoryDiskManager()
	pm := NewPoolManager(3, disk)

	var pids []diskio.PageID
	for i := 0; i < 3; i++ {
		pid, data, ok, err := pm.NewPage()
		require.NoError(t, err)
		require.True(t, ok)
		data[0] = byte(i)
		pm.UnpinPage(pid, true)
		pids = append(pids, pid)
	}

	pm.FlushAllPages()

	for i, pid := range pids {
		var buf diskio.PageData
		require.NoError(t, disk.ReadPage(pid, &buf))
		assert.Equal(t, byte(i), buf[0])
	}
}

func TestFetchPageSurfacesReadError(t *testing.T) {
	disk := &failingDiskManager{InMemoryDiskManager: diskio.NewInMemoryDiskManager(), failReads: true}
	pm := NewPoolManager(1, disk)

	pid := disk.AllocatePage()
	data, ok, err := pm.FetchPage(pid)
	require.True(t, ok, "the frame is still obtained and considered resident even though the read failed")
	require.Error(t, err, "a disk read failure must be propagated to the caller, not swallowed")
	assert.NotNil(t, data)
	pm.UnpinPage(pid, false)
}

func TestObtainFrameAbortsEvictionOnFailedWriteBack(t *testing.T) {
	disk := &failingDiskManager{InMemoryDiskManager: diskio.NewInMemoryDiskManager(), failWrites: true}
	pm := NewPoolManager(1, disk)

	firstPID, data, ok, err := pm.NewPage()
	require.NoError(t, err)
	require.True(t, ok)
	data[0] = 0x99
	pm.UnpinPage(firstPID, true)

	_, _, ok, err = pm.NewPage()
	assert.False(t, ok, "the eviction write-back failed, so no frame was obtained")
	require.Error(t, err)

	refetched, ok, err := pm.FetchPage(firstPID)
	require.NoError(t, err)
	require.True(t, ok, "the failed eviction must have left the original page resident")
	assert.Equal(t, byte(0x99), refetched[0], "the dirty bytes must not have been lost")
}

// failingDiskManager wraps an InMemoryDiskManager and injects I/O errors,
// to exercise the error paths a real disk can hit but an in-memory one
// never does on its own.
type failingDiskManager struct {
	*diskio.InMemoryDiskManager
	failReads  bool
	failWrites bool
}

func (f *failingDiskManager) ReadPage(pid diskio.PageID, buf *diskio.PageData) error {
	if f.failReads {
		return assert.AnError
	}
	return f.InMemoryDiskManager.ReadPage(pid, buf)
}

func (f *failingDiskManager) WritePage(pid diskio.PageID, buf *diskio.PageData) error {
	if f.failWrites {
		return assert.AnError
	}
	return f.InMemoryDiskManager.WritePage(pid, buf)
}
