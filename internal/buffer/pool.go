package buffer

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"daemondb/internal/diskio"
)

/*
PoolManager maps page identifiers to frame identifiers and arbitrates
replacement via a ClockReplacer. It owns every frame's byte storage for
the lifetime of the process; callers only ever hold a pinned, counted
reference into a frame they fetched. The page table, free list, and
replacer state are all protected by one mutex, held for the duration of
each call — eviction's write-back happens under that same lock, matching
the simplest correct scheme spec.md §5 calls out explicitly.
*/
type PoolManager struct {
	mu sync.Mutex

	frames   []diskio.PageData
	pageIDs  []diskio.PageID
	pinCount []int32
	dirty    []bool

	pageTable map[diskio.PageID]int
	freeList  []int

	replacer *ClockReplacer
	disk     diskio.DiskManager

	hits, misses, evictions, flushes uint64
}

// NewPoolManager allocates poolSize frames backed by disk.
func NewPoolManager(poolSize int, disk diskio.DiskManager) *PoolManager {
	pm := &PoolManager{
		frames:    make([]diskio.PageData, poolSize),
		pageIDs:   make([]diskio.PageID, poolSize),
		pinCount:  make([]int32, poolSize),
		dirty:     make([]bool, poolSize),
		pageTable: make(map[diskio.PageID]int, poolSize),
		freeList:  make([]int, poolSize),
		replacer:  NewClockReplacer(poolSize),
		disk:      disk,
	}
	for i := range pm.pageIDs {
		pm.pageIDs[i] = diskio.InvalidPageID
		pm.freeList[i] = i
	}
	return pm
}

// PoolSize returns the number of frames managed by the pool.
func (pm *PoolManager) PoolSize() int {
	return len(pm.frames)
}

// FetchPage pins and returns pid's frame, loading it from disk into a
// free or evicted frame on a miss. ok is false iff no frame is available
// (every frame pinned and the page was not already resident) — spec.md
// §7's NoFrameAvailable, a null/absent result, not an error. err carries
// an IOError instead. If the eviction write-back failed, no frame is
// returned and the victim stays resident, unpinned and dirty. If the disk
// read failed, the frame is returned zeroed, resident and pinned, with
// its dirty flag set. The caller decides whether to retry.
func (pm *PoolManager) FetchPage(pid diskio.PageID) (data *diskio.PageData, ok bool, err error) {
	if pid == diskio.InvalidPageID {
		panic("buffer: FetchPage called with InvalidPageID")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if frame, resident := pm.pageTable[pid]; resident {
		pm.pinCount[frame]++
		pm.replacer.Pin(frame)
		pm.hits++
		return &pm.frames[frame], true, nil
	}
	pm.misses++

	frame, obtained, ferr := pm.obtainFrame()
	if ferr != nil {
		return nil, false, fmt.Errorf("buffer: fetch page %d: %w", pid, ferr)
	}
	if !obtained {
		return nil, false, nil
	}

	pm.pageTable[pid] = frame
	pm.pageIDs[frame] = pid
	pm.dirty[frame] = false
	pm.pinCount[frame] = 1
	if err := pm.disk.ReadPage(pid, &pm.frames[frame]); err != nil {
		// The frame is left zeroed and resident; mark it dirty so the
		// mismatch with whatever is really on disk is not lost and a
		// flush does not silently skip it.
		pm.frames[frame] = diskio.PageData{}
		pm.dirty[frame] = true
		return &pm.frames[frame], true, fmt.Errorf("buffer: fetch page %d: %w", pid, err)
	}

	return &pm.frames[frame], true, nil
}

// UnpinPage decrements pid's pin count and, once it reaches zero, hands
// the frame back to the replacer as an eviction candidate. A true dirty
// flag is sticky: passing dirty=false never clears a flag a previous
// unpin already set.
func (pm *PoolManager) UnpinPage(pid diskio.PageID, dirty bool) bool {
	if pid == diskio.InvalidPageID {
		panic("buffer: UnpinPage called with InvalidPageID")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	frame, resident := pm.pageTable[pid]
	if !resident {
		return false
	}

	if pm.pinCount[frame] <= 0 {
		return false
	}

	pm.pinCount[frame]--
	if dirty {
		pm.dirty[frame] = true
	}
	if pm.pinCount[frame] == 0 {
		pm.replacer.Unpin(frame)
	}
	return true
}

// FlushPage writes pid's current bytes to disk if it is resident,
// regardless of its dirty flag, and clears the flag on success.
func (pm *PoolManager) FlushPage(pid diskio.PageID) bool {
	if pid == diskio.InvalidPageID {
		panic("buffer: FlushPage called with InvalidPageID")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	frame, resident := pm.pageTable[pid]
	if !resident {
		return false
	}

	if err := pm.disk.WritePage(pid, &pm.frames[frame]); err != nil {
		fmt.Printf("[PoolManager] FlushPage write error pageID=%d: %v\n", pid, err)
		return false
	}
	pm.dirty[frame] = false
	pm.flushes++
	return true
}

// NewPage allocates a fresh page id from the disk manager, zeroes a frame
// for it, pins it, and returns it. ok is false iff every frame is pinned
// (NoFrameAvailable); err carries an IOError from a failed eviction
// write-back, per the same contract as FetchPage.
func (pm *PoolManager) NewPage() (pid diskio.PageID, data *diskio.PageData, ok bool, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	frame, obtained, ferr := pm.obtainFrame()
	if ferr != nil {
		return diskio.InvalidPageID, nil, false, fmt.Errorf("buffer: new page: %w", ferr)
	}
	if !obtained {
		return diskio.InvalidPageID, nil, false, nil
	}

	newID := pm.disk.AllocatePage()
	pm.frames[frame] = diskio.PageData{}
	pm.pageTable[newID] = frame
	pm.pageIDs[frame] = newID
	pm.dirty[frame] = false
	pm.pinCount[frame] = 1

	return newID, &pm.frames[frame], true, nil
}

// DeletePage erases pid from the buffer pool and deallocates it on disk.
// It vacuously succeeds if pid was never resident, and refuses (returning
// false) if the page is still pinned.
func (pm *PoolManager) DeletePage(pid diskio.PageID) bool {
	if pid == diskio.InvalidPageID {
		panic("buffer: DeletePage called with InvalidPageID")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	frame, resident := pm.pageTable[pid]
	if !resident {
		return true
	}

	if pm.pinCount[frame] > 0 {
		return false
	}

	delete(pm.pageTable, pid)
	pm.frames[frame] = diskio.PageData{}
	pm.pageIDs[frame] = diskio.InvalidPageID
	pm.dirty[frame] = false
	pm.replacer.Pin(frame) // remove from replacer's unpinned set before freeing
	pm.freeList = append(pm.freeList, frame)
	pm.disk.DeallocatePage(pid)

	return true
}

// FlushAllPages writes every resident page to disk.
func (pm *PoolManager) FlushAllPages() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	flushed := 0
	for frame, pid := range pm.pageIDs {
		if pid == diskio.InvalidPageID {
			continue
		}
		if err := pm.disk.WritePage(pid, &pm.frames[frame]); err != nil {
			fmt.Printf("[PoolManager] FlushAllPages write error pageID=%d: %v\n", pid, err)
			continue
		}
		pm.dirty[frame] = false
		pm.flushes++
		flushed++
	}
	if flushed > 0 {
		fmt.Printf("[PoolManager] FlushAllPages flushed %d pages (%s)\n",
			flushed, humanize.Bytes(uint64(flushed)*diskio.PageSize))
	}
}

// obtainFrame pops a free frame, or asks the replacer for a victim and
// evicts it (writing back first if dirty). Caller must hold pm.mu. A
// failed write-back aborts the eviction rather than discarding the only
// copy of the victim's modified bytes: the dirty flag stays set, the
// victim stays resident, and the replacer gets the frame back as a
// candidate for a later attempt, per spec.md §7's IOError contract.
func (pm *PoolManager) obtainFrame() (frame int, ok bool, err error) {
	if n := len(pm.freeList); n > 0 {
		frame := pm.freeList[n-1]
		pm.freeList = pm.freeList[:n-1]
		return frame, true, nil
	}

	frame, found := pm.replacer.Victim()
	if !found {
		return 0, false, nil
	}

	victimPID := pm.pageIDs[frame]
	if victimPID != diskio.InvalidPageID && pm.dirty[frame] {
		if werr := pm.disk.WritePage(victimPID, &pm.frames[frame]); werr != nil {
			pm.replacer.Unpin(frame)
			return 0, false, fmt.Errorf("evict page %d: %w", victimPID, werr)
		}
		pm.dirty[frame] = false
	}

	if victimPID != diskio.InvalidPageID {
		pm.evictions++
		delete(pm.pageTable, victimPID)
		fmt.Printf("[PoolManager] EVICT frame=%d pageID=%d\n", frame, victimPID)
	}

	return frame, true, nil
}

// Snapshot returns the counters consulted by internal/stats.
func (pm *PoolManager) Snapshot() (hits, misses, evictions, flushes uint64, resident, free int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.hits, pm.misses, pm.evictions, pm.flushes, len(pm.pageTable), len(pm.freeList)
}
