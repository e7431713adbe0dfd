package diskio

import "sync"

// InMemoryDiskManager is a DiskManager that never touches the filesystem.
// It exists for buffer pool and hash table tests that need a disk
// manager's semantics (in particular: a page that was written survives an
// eviction) without the overhead of real I/O.
type InMemoryDiskManager struct {
	mu       sync.Mutex
	pages    map[PageID]PageData
	nextID   PageID
	freeList []PageID
	writes   uint64
	reads    uint64
}

// NewInMemoryDiskManager returns an empty in-memory disk manager.
func NewInMemoryDiskManager() *InMemoryDiskManager {
	return &InMemoryDiskManager{
		pages: make(map[PageID]PageData),
	}
}

// ReadPage copies pid's stored bytes into buf, or zeroes buf if pid was
// never written (mirrors a freshly allocated, never-flushed page).
func (dm *InMemoryDiskManager) ReadPage(pid PageID, buf *PageData) error {
	if pid == InvalidPageID {
		panic("diskio: ReadPage called with InvalidPageID")
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.reads++
	if data, ok := dm.pages[pid]; ok {
		*buf = data
		return nil
	}
	*buf = PageData{}
	return nil
}

// WritePage stores a copy of buf under pid.
func (dm *InMemoryDiskManager) WritePage(pid PageID, buf *PageData) error {
	if pid == InvalidPageID {
		panic("diskio: WritePage called with InvalidPageID")
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.pages[pid] = *buf
	dm.writes++
	return nil
}

// AllocatePage returns a fresh id, reusing a deallocated one if available.
func (dm *InMemoryDiskManager) AllocatePage() PageID {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if n := len(dm.freeList); n > 0 {
		pid := dm.freeList[n-1]
		dm.freeList = dm.freeList[:n-1]
		return pid
	}

	pid := dm.nextID
	dm.nextID++
	return pid
}

// DeallocatePage drops pid's stored bytes and marks it free for reuse.
func (dm *InMemoryDiskManager) DeallocatePage(pid PageID) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.pages, pid)
	dm.freeList = append(dm.freeList, pid)
}

// Stats returns the running read/write counters.
func (dm *InMemoryDiskManager) Stats() (reads, writes uint64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.reads, dm.writes
}
