package hash

import (
	"encoding/binary"

	"daemondb/internal/diskio"
)

// maxHeaderBlockIDs bounds how many block page ids a single header page
// can list: 4 bytes pageID + 8 bytes size + 4 bytes count, leaving the
// rest of the page for a flat array of 4-byte block page ids.
const maxHeaderBlockIDs = (diskio.PageSize - 16) / 4

/*
HeaderPage is a transient view, same discipline as BlockPage: it wraps a
pinned frame's bytes and must not outlive that pin.

On-disk layout (little-endian), per spec.md §6:
  - 4 bytes: this page's own id
  - 8 bytes: logical size S (max slot count)
  - 4 bytes: number of block page ids that follow
  - 4*N bytes: flat array of block page ids

*/
type HeaderPage struct {
	data *diskio.PageData
}

const (
	hdrOffPageID   = 0
	hdrOffSize     = 4
	hdrOffCount    = 12
	hdrOffBlockIDs = 16
)

// NewHeaderPage wraps buf as a header page view.
func NewHeaderPage(buf *diskio.PageData) HeaderPage {
	return HeaderPage{data: buf}
}

// GetPageID returns this header's own page id, as stored by SetPageID.
func (h HeaderPage) GetPageID() diskio.PageID {
	return diskio.PageID(binary.LittleEndian.Uint32(h.data[hdrOffPageID:]))
}

// SetPageID stores this header's own page id.
func (h HeaderPage) SetPageID(pid diskio.PageID) {
	binary.LittleEndian.PutUint32(h.data[hdrOffPageID:], uint32(pid))
}

// GetSize returns the logical slot count S.
func (h HeaderPage) GetSize() uint64 {
	return binary.LittleEndian.Uint64(h.data[hdrOffSize:])
}

// SetSize sets the logical slot count S.
func (h HeaderPage) SetSize(size uint64) {
	binary.LittleEndian.PutUint64(h.data[hdrOffSize:], size)
}

// NumBlocks returns how many block page ids are currently listed.
func (h HeaderPage) NumBlocks() int {
	return int(binary.LittleEndian.Uint32(h.data[hdrOffCount:]))
}

func (h HeaderPage) setNumBlocks(n int) {
	binary.LittleEndian.PutUint32(h.data[hdrOffCount:], uint32(n))
}

// GetBlockPageID returns the i'th block page's id.
func (h HeaderPage) GetBlockPageID(i int) diskio.PageID {
	off := hdrOffBlockIDs + i*4
	return diskio.PageID(binary.LittleEndian.Uint32(h.data[off:]))
}

// AddBlockPageID appends a new block page id, growing NumBlocks by one.
// Block page ids are append-only: Resize only ever adds blocks, never
// removes or reorders existing ones, so existing slots' (block_index,
// block_offset) addressing never changes under a caller's feet.
func (h HeaderPage) AddBlockPageID(pid diskio.PageID) {
	n := h.NumBlocks()
	if n+1 > maxHeaderBlockIDs {
		panic("hash: header page block id list exceeds page size")
	}
	off := hdrOffBlockIDs + n*4
	binary.LittleEndian.PutUint32(h.data[off:], uint32(pid))
	h.setNumBlocks(n + 1)
}
