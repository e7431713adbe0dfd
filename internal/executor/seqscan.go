package executor

import (
	"daemondb/internal/diskio"
	"daemondb/internal/hash"
)

// Entry is one (key, value) pair yielded by a scan.
type Entry struct {
	Key, Value uint64
}

/*
SeqScan walks every live slot of a hash table's block pages in page
order, the Init/Next shape of
original_source/src/include/execution/executors/seq_scan_executor.h
re-expressed against module D's block pages instead of a row-oriented
heap file — this repo's only on-disk storage structure is the
linear-probe hash table itself, so scanning it block-by-block via
FetchBlock/UnpinBlock stands in for the teacher's GetHeapFileByTable /
GetAllRowPointers walk in query_executor/exec_select.go. There is no
predicate evaluation, projection, or join here: those are Non-goals
this executor does not implement.
*/
type SeqScan struct {
	table *hash.Table

	started   bool
	numBlocks int
	blockIdx  int
	offset    int

	curPID   diskio.PageID
	curBlock hash.BlockPage
	pinned   bool
}

// NewSeqScan builds a scan over table. Call Init before the first Next,
// and Close once the scan is no longer needed (whether or not it ran to
// completion) to release its table latch and any pinned block.
func NewSeqScan(table *hash.Table) *SeqScan {
	return &SeqScan{table: table}
}

// Init takes the table's read latch for the duration of the scan and
// positions at the first block, matching GetValue's latching discipline.
func (s *SeqScan) Init() {
	s.table.RLock()
	s.numBlocks = s.table.NumBlocks()
	s.blockIdx = 0
	s.offset = 0
	s.started = true
	s.advanceBlock()
}

func (s *SeqScan) advanceBlock() {
	if s.pinned {
		s.table.UnpinBlock(s.curPID, false)
		s.pinned = false
	}
	if s.blockIdx >= s.numBlocks {
		return
	}
	s.curPID, s.curBlock = s.table.FetchBlock(s.blockIdx)
	s.pinned = true
}

// Next returns the scan's next live entry, or ok=false once every block
// has been exhausted.
func (s *SeqScan) Next() (entry Entry, ok bool) {
	if !s.started {
		panic("executor: SeqScan.Next called before Init")
	}

	for s.blockIdx < s.numBlocks {
		for s.offset < hash.BlockArraySize {
			i := s.offset
			s.offset++
			if s.curBlock.IsOccupied(i) && s.curBlock.IsReadable(i) {
				return Entry{Key: s.curBlock.KeyAt(i), Value: s.curBlock.ValueAt(i)}, true
			}
		}
		s.blockIdx++
		s.offset = 0
		s.advanceBlock()
	}
	return Entry{}, false
}

// Close releases any block still pinned and the table's read latch. Safe
// to call once whether or not the scan reached its end.
func (s *SeqScan) Close() {
	if !s.started {
		return
	}
	if s.pinned {
		s.table.UnpinBlock(s.curPID, false)
		s.pinned = false
	}
	s.table.RUnlock()
	s.started = false
}
