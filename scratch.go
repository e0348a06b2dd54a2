package upd

import "github.com/unparanoid/go-upd/internal/constants"

// Scratch bucket capacities. Allocations above the largest bucket fall
// through to plain makes and are dropped on release.
var scratchSizes = [...]int{
	constants.DefaultScratchChunk,
	constants.DefaultScratchChunk * 4,
	constants.DefaultScratchChunk * 16,
	constants.DefaultScratchChunk * 64,
	constants.DefaultScratchChunk * 256,
}

// scratch is the per-isolate allocator for short-lived callback state.
// It is owned by the main loop and keeps size-bucketed freelists, so
// releases may arrive in any order.
type scratch struct {
	free [len(scratchSizes)][][]byte
}

func scratchBucket(n int) int {
	for i, size := range scratchSizes {
		if n <= size {
			return i
		}
	}
	return -1
}

func (s *scratch) alloc(n int) []byte {
	b := scratchBucket(n)
	if b < 0 {
		return make([]byte, n)
	}
	if l := len(s.free[b]); l > 0 {
		p := s.free[b][l-1]
		s.free[b] = s.free[b][:l-1]
		return p[:n]
	}
	return make([]byte, n, scratchSizes[b])
}

func (s *scratch) release(p []byte) {
	b := scratchBucket(cap(p))
	if b < 0 || scratchSizes[b] != cap(p) {
		return
	}
	s.free[b] = append(s.free[b], p[:0])
}

// Stack returns n bytes that stay valid at least until the caller's
// completion callback has run. Stack(0) returns a non-nil empty slice
// that Unstack accepts. Main loop only.
func (iso *Iso) Stack(n int) []byte {
	return iso.scratch.alloc(n)
}

// Unstack releases a slice previously returned by Stack. Releases may
// happen in any order. Main loop only.
func (iso *Iso) Unstack(p []byte) {
	iso.scratch.release(p)
}
