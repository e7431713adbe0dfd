package hash

import (
	"fmt"
	"sync"

	"daemondb/internal/buffer"
	"daemondb/internal/diskio"
	"daemondb/internal/txn"
)

// maxResizeRetries bounds the Insert retry loop that replaces the
// original source's unbounded "resize then recurse" pattern (design note
// in spec.md §9: "Recursive self-call on Insert after Resize should
// become a bounded retry loop, not unbounded recursion"). A handful of
// doublings is already far more capacity than any reasonable workload
// would need in one Insert call.
const maxResizeRetries = 32

/*
Table is the linear-probe open-addressing hash index of spec.md §4.D. Its
header and block pages live entirely in the buffer pool; Table itself
holds only the header page's id, the comparator/hash function, and the
latches described in spec.md §5 — a table-wide readers-writer latch plus
one readers-writer latch per resident block page, created lazily and
never removed (a block page id is never reused for a different logical
block once assigned).
*/
type Table struct {
	name   string
	bpm    *buffer.PoolManager
	cmp    KeyComparator
	hashFn HashFunction

	headerPageID diskio.PageID

	tableLatch sync.RWMutex

	latchesMu sync.Mutex
	latches   map[diskio.PageID]*sync.RWMutex
}

// New constructs a linear-probe hash table backed by bpm, allocating a
// header page and enough block pages to cover numBuckets slots.
func New(name string, bpm *buffer.PoolManager, cmp KeyComparator, numBuckets int, hashFn HashFunction) (*Table, error) {
	headerPID, headerData, ok, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("hash: allocating header page for table %q: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("hash: no frame available to allocate header page for table %q", name)
	}

	header := NewHeaderPage(headerData)
	header.SetPageID(headerPID)
	header.SetSize(uint64(numBuckets))

	numBlocks := numBlocksFor(uint64(numBuckets))
	for i := 0; i < numBlocks; i++ {
		blockPID, _, ok, err := bpm.NewPage()
		if err != nil {
			bpm.UnpinPage(headerPID, true)
			return nil, fmt.Errorf("hash: allocating block page %d/%d for table %q: %w", i, numBlocks, name, err)
		}
		if !ok {
			bpm.UnpinPage(headerPID, true)
			return nil, fmt.Errorf("hash: no frame available to allocate block page %d/%d for table %q", i, numBlocks, name)
		}
		header.AddBlockPageID(blockPID)
		bpm.UnpinPage(blockPID, false)
	}
	bpm.UnpinPage(headerPID, true)

	return &Table{
		name:         name,
		bpm:          bpm,
		cmp:          cmp,
		hashFn:       hashFn,
		headerPageID: headerPID,
		latches:      make(map[diskio.PageID]*sync.RWMutex),
	}, nil
}

// Open wraps an already-created table's header page id, for a caller
// (the catalog, a REPL reopening a table by name) that allocated the
// table in an earlier call to New and now just needs a handle to it.
func Open(name string, bpm *buffer.PoolManager, cmp KeyComparator, hashFn HashFunction, headerPageID diskio.PageID) *Table {
	return &Table{
		name:         name,
		bpm:          bpm,
		cmp:          cmp,
		hashFn:       hashFn,
		headerPageID: headerPageID,
		latches:      make(map[diskio.PageID]*sync.RWMutex),
	}
}

// HeaderPageID returns the page id of this table's header page, the
// handle a catalog needs to Open the table again later.
func (t *Table) HeaderPageID() diskio.PageID {
	return t.headerPageID
}

func numBlocksFor(size uint64) int {
	return int((size + BlockArraySize - 1) / BlockArraySize)
}

// GetSize returns the header's current logical slot count S.
func (t *Table) GetSize() uint64 {
	return t.headerField(func(h HeaderPage) uint64 { return h.GetSize() })
}

func (t *Table) headerField(read func(HeaderPage) uint64) uint64 {
	data, ok, err := t.bpm.FetchPage(t.headerPageID)
	if err != nil {
		panic(fmt.Sprintf("hash: header page fetch: %v", err))
	}
	if !ok {
		panic("hash: header page could not be fetched")
	}
	v := read(NewHeaderPage(data))
	t.bpm.UnpinPage(t.headerPageID, false)
	return v
}

func (t *Table) numBlocksResident() int {
	return int(t.headerField(func(h HeaderPage) uint64 { return uint64(h.NumBlocks()) }))
}

func (t *Table) blockPageID(index int) diskio.PageID {
	data, ok, err := t.bpm.FetchPage(t.headerPageID)
	if err != nil {
		panic(fmt.Sprintf("hash: header page fetch: %v", err))
	}
	if !ok {
		panic("hash: header page could not be fetched")
	}
	pid := NewHeaderPage(data).GetBlockPageID(index)
	t.bpm.UnpinPage(t.headerPageID, false)
	return pid
}

// fetchBlock pins and returns the block page at the given header slot
// index. Callers must later UnpinPage(pid, dirty) exactly once.
func (t *Table) fetchBlock(index int) (diskio.PageID, BlockPage) {
	pid := t.blockPageID(index)
	data, ok, err := t.bpm.FetchPage(pid)
	if err != nil {
		panic(fmt.Sprintf("hash: block page fetch: %v", err))
	}
	if !ok {
		panic("hash: block page could not be fetched")
	}
	return pid, NewBlockPage(data)
}

func (t *Table) blockLatch(pid diskio.PageID) *sync.RWMutex {
	t.latchesMu.Lock()
	defer t.latchesMu.Unlock()
	l, ok := t.latches[pid]
	if !ok {
		l = &sync.RWMutex{}
		t.latches[pid] = l
	}
	return l
}

func (t *Table) probeStart(key uint64, size uint64) (blockIndex, blockOffset int, slot uint64) {
	slot = t.hashFn(key) % size
	return int(slot / BlockArraySize), int(slot % BlockArraySize), slot
}

// GetValue walks the probe sequence for key and returns every live
// value whose key compares equal, in probe order. It stops at the first
// empty (unoccupied) slot; tombstones do not stop the scan.
func (t *Table) GetValue(tx *txn.Txn, key uint64) ([]uint64, bool) {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	size := t.headerField(func(h HeaderPage) uint64 { return h.GetSize() })
	numBlocks := t.numBlocksResident()
	blockIndex, blockOffset, slotBegin := t.probeStart(key, size)

	var results []uint64

	pid, block := t.fetchBlock(blockIndex)
	latch := t.blockLatch(pid)
	latch.RLock()

	curIndex, curOffset := blockIndex, blockOffset
	for block.IsOccupied(curOffset) {
		if block.IsReadable(curOffset) && t.cmp(block.KeyAt(curOffset), key) == 0 {
			results = append(results, block.ValueAt(curOffset))
		}

		curOffset++
		if curOffset == BlockArraySize {
			curOffset = 0
			curIndex = (curIndex + 1) % numBlocks

			latch.RUnlock()
			t.bpm.UnpinPage(pid, false)

			pid, block = t.fetchBlock(curIndex)
			latch = t.blockLatch(pid)
			latch.RLock()
		}

		if uint64(curIndex*BlockArraySize+curOffset) == slotBegin {
			break
		}
	}

	latch.RUnlock()
	t.bpm.UnpinPage(pid, false)

	return results, len(results) > 0
}

// Insert walks the probe sequence attempting a block-level insert at
// each slot. A duplicate (key, value) pair already live is suppressed
// (returns false); equal-key, unequal-value pairs both succeed (the
// table is a multimap). Only empty slots accept the pair; tombstones
// are not reused. A full revolution without an empty slot triggers
// Resize and a bounded retry.
func (t *Table) Insert(tx *txn.Txn, key, value uint64) bool {
	for attempt := 0; attempt < maxResizeRetries; attempt++ {
		ok, full := t.tryInsert(key, value)
		if !full {
			return ok
		}
		t.Resize(t.GetSize())
	}
	panic(fmt.Sprintf("hash: table %q did not converge after %d resizes", t.name, maxResizeRetries))
}

func (t *Table) tryInsert(key, value uint64) (inserted, full bool) {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()
	return t.insertAtProbe(key, value)
}

// insertAtProbe performs the probe-and-insert walk without touching
// tableLatch; callers that already hold it (tryInsert under a read lock,
// Resize's rehash under a write lock) call this directly.
func (t *Table) insertAtProbe(key, value uint64) (inserted, full bool) {
	size := t.headerField(func(h HeaderPage) uint64 { return h.GetSize() })
	numBlocks := t.numBlocksResident()
	blockIndex, blockOffset, slotBegin := t.probeStart(key, size)

	pid, block := t.fetchBlock(blockIndex)
	latch := t.blockLatch(pid)
	latch.Lock()

	curIndex, curOffset := blockIndex, blockOffset
	for {
		if block.Insert(curOffset, key, value) {
			latch.Unlock()
			t.bpm.UnpinPage(pid, true)
			return true, false
		}

		if block.IsReadable(curOffset) && t.cmp(block.KeyAt(curOffset), key) == 0 && block.ValueAt(curOffset) == value {
			latch.Unlock()
			t.bpm.UnpinPage(pid, false)
			return false, false
		}

		curOffset++
		if curOffset == BlockArraySize {
			curOffset = 0
			curIndex = (curIndex + 1) % numBlocks

			latch.Unlock()
			t.bpm.UnpinPage(pid, false)

			pid, block = t.fetchBlock(curIndex)
			latch = t.blockLatch(pid)
			latch.Lock()
		}

		if uint64(curIndex*BlockArraySize+curOffset) == slotBegin {
			latch.Unlock()
			t.bpm.UnpinPage(pid, false)
			return false, true
		}
	}
}

// Remove clears the readable bit of the first live slot matching both
// key and value, leaving a tombstone behind. It stops at the first
// empty slot and returns false if no match is found.
func (t *Table) Remove(tx *txn.Txn, key, value uint64) bool {
	t.tableLatch.RLock()
	defer t.tableLatch.RUnlock()

	size := t.headerField(func(h HeaderPage) uint64 { return h.GetSize() })
	numBlocks := t.numBlocksResident()
	blockIndex, blockOffset, slotBegin := t.probeStart(key, size)

	pid, block := t.fetchBlock(blockIndex)
	latch := t.blockLatch(pid)
	latch.Lock()

	curIndex, curOffset := blockIndex, blockOffset
	for block.IsOccupied(curOffset) {
		if block.IsReadable(curOffset) && t.cmp(block.KeyAt(curOffset), key) == 0 && block.ValueAt(curOffset) == value {
			block.Remove(curOffset)
			latch.Unlock()
			t.bpm.UnpinPage(pid, true)
			return true
		}

		curOffset++
		if curOffset == BlockArraySize {
			curOffset = 0
			curIndex = (curIndex + 1) % numBlocks

			latch.Unlock()
			t.bpm.UnpinPage(pid, false)

			pid, block = t.fetchBlock(curIndex)
			latch = t.blockLatch(pid)
			latch.Lock()
		}

		if uint64(curIndex*BlockArraySize+curOffset) == slotBegin {
			break
		}
	}

	latch.Unlock()
	t.bpm.UnpinPage(pid, false)
	return false
}

// NumBlocks returns how many block pages are currently resident in the
// header's block id list. Exposed for sequential-scan style external
// collaborators that walk block pages directly rather than probing.
func (t *Table) NumBlocks() int {
	return t.numBlocksResident()
}

// FetchBlock pins and returns the block page at the given header slot
// index, for callers outside this package that need to walk blocks in
// page order (a sequential scan) rather than by probe sequence. The
// caller must later call UnpinBlock exactly once.
func (t *Table) FetchBlock(index int) (diskio.PageID, BlockPage) {
	return t.fetchBlock(index)
}

// UnpinBlock releases a block page obtained from FetchBlock.
func (t *Table) UnpinBlock(pid diskio.PageID, dirty bool) {
	t.bpm.UnpinPage(pid, dirty)
}

// RLock/RUnlock let a sequential scan hold the table latch for the
// duration of its walk, the same way GetValue does, without forcing the
// scan through the probe-sequence API.
func (t *Table) RLock()   { t.tableLatch.RLock() }
func (t *Table) RUnlock() { t.tableLatch.RUnlock() }

// Resize doubles the header's logical size and the table's physical
// block count, then rehashes every currently live entry. It runs in
// three passes rather than rehashing a block in place: drain every old
// block into a local slice (each block's latch held only for its own
// scan), grow the block array, then reinsert every drained entry. A
// relocated entry's new home is frequently the very block it came from
// (guaranteed for a single-block table) — holding a block's latch
// across its own reinsertion, as an in-place rehash would, re-locks an
// already-held sync.RWMutex and deadlocks. Growing physical capacity by
// doubling the block count directly, rather than deriving a block count
// from the doubled logical size, keeps capacity ahead of the live entry
// count regardless of how the initial size aligned to BlockArraySize.
// Resize takes the table latch exclusively, blocking every other
// operation for its duration, per spec.md §5.
func (t *Table) Resize(initialSize uint64) {
	t.tableLatch.Lock()
	defer t.tableLatch.Unlock()

	headerData, ok, err := t.bpm.FetchPage(t.headerPageID)
	if err != nil {
		panic(fmt.Sprintf("hash: header page fetch for resize: %v", err))
	}
	if !ok {
		panic("hash: header page could not be fetched for resize")
	}
	header := NewHeaderPage(headerData)
	oldNumBlocks := header.NumBlocks()
	header.SetSize(2 * initialSize)

	type liveEntry struct{ key, value uint64 }
	var drained []liveEntry
	for blockIndex := 0; blockIndex < oldNumBlocks; blockIndex++ {
		pid, block := t.fetchBlock(blockIndex)
		latch := t.blockLatch(pid)
		latch.Lock()

		for offset := 0; offset < BlockArraySize; offset++ {
			if block.IsOccupied(offset) && block.IsReadable(offset) {
				drained = append(drained, liveEntry{block.KeyAt(offset), block.ValueAt(offset)})
			}
		}
		block.Clear()

		latch.Unlock()
		t.bpm.UnpinPage(pid, true)
	}

	newNumBlocks := 2 * oldNumBlocks
	for i := oldNumBlocks; i < newNumBlocks; i++ {
		blockPID, _, ok, err := t.bpm.NewPage()
		if err != nil {
			t.bpm.UnpinPage(t.headerPageID, true)
			panic(fmt.Sprintf("hash: growing table %q: %v", t.name, err))
		}
		if !ok {
			t.bpm.UnpinPage(t.headerPageID, true)
			panic(fmt.Sprintf("hash: no frame available to grow table %q", t.name))
		}
		header.AddBlockPageID(blockPID)
		t.bpm.UnpinPage(blockPID, false)
	}
	t.bpm.UnpinPage(t.headerPageID, true)

	for _, e := range drained {
		inserted, full := t.insertAtProbe(e.key, e.value)
		if full {
			panic(fmt.Sprintf("hash: table %q ran out of room mid-resize", t.name))
		}
		if !inserted {
			panic(fmt.Sprintf("hash: table %q lost an entry during resize rehash", t.name))
		}
	}
}
