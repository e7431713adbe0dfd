package buffer

import "sync"

/*
ClockReplacer implements second-chance clock replacement over a fixed
number of frames. It tracks only two bits per frame — pinned and
reference — plus a shared hand cursor, exactly the scheme in the original
bustub ClockReplacer: a frame is never evicted while pinned, and an
unpinned frame survives one extra sweep of the hand if its reference bit
is set.

All frames start pinned so that uninitialized frames (no page resident
yet) are never handed out as victims; the buffer pool unpins a frame only
once it is actually home to a page with pin count zero.
*/
type ClockReplacer struct {
	mu      sync.Mutex
	pinned  []bool
	ref     []bool
	hand    int
	numPins int // count of frames with pinned == true, for Size()
}

// NewClockReplacer allocates a replacer over numFrames frame slots.
func NewClockReplacer(numFrames int) *ClockReplacer {
	r := &ClockReplacer{
		pinned: make([]bool, numFrames),
		ref:    make([]bool, numFrames),
	}
	for i := range r.pinned {
		r.pinned[i] = true
	}
	r.numPins = numFrames
	return r
}

// Victim scans circularly from the hand for an unpinned frame, clearing
// reference bits on the first pass and choosing the first frame whose
// reference bit is already 0. It marks the chosen frame pinned before
// returning it. ok is false iff every frame is pinned.
func (r *ClockReplacer) Victim() (frame int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.pinned)
	if n == 0 {
		return 0, false
	}

	i := r.hand
	for count := 0; count < 2*n; count++ {
		if r.pinned[i] {
			i = (i + 1) % n
			continue
		}

		if r.ref[i] {
			r.ref[i] = false
			i = (i + 1) % n
			continue
		}

		r.pinned[i] = true
		r.numPins++
		r.hand = (i + 1) % n
		return i, true
	}

	return 0, false
}

// Pin marks frame pinned. Idempotent.
func (r *ClockReplacer) Pin(frame int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.pinned[frame] {
		r.pinned[frame] = true
		r.numPins++
	}
}

// Unpin marks frame unpinned and sets its reference bit, giving it one
// free pass the next time the hand sweeps over it. Idempotent.
func (r *ClockReplacer) Unpin(frame int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pinned[frame] {
		r.pinned[frame] = false
		r.numPins--
	}
	r.ref[frame] = true
}

// Size returns the number of currently unpinned frames.
func (r *ClockReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pinned) - r.numPins
}
