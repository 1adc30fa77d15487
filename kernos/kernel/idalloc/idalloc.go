// Package idalloc hands out small integer ids from a fixed-size set.
//
// Ids are dense and start at 1; 0 is never assigned and can be used as the
// invalid id by callers. The allocator never grows after construction.
package idalloc

import "math/bits"

// Allocator manages ids in [1, Cap()].
type Allocator struct {
	words []uint64 // set bit = id in use, bit i of word w is id w*64+i+1
	size  uint32
	used  uint32
	first uint32 // lowest id that may be free
}

// New returns an allocator for size ids.
func New(size uint32) *Allocator {
	return &Allocator{
		words: make([]uint64, (size+63)/64),
		size:  size,
		first: 1,
	}
}

// Cap returns how many ids can be assigned simultaneously.
func (a *Allocator) Cap() uint32 { return a.size }

// Len returns how many ids are currently assigned.
func (a *Allocator) Len() uint32 { return a.used }

func (a *Allocator) valid(id uint32) bool { return id >= 1 && id <= a.size }

func (a *Allocator) bit(id uint32) (w uint32, mask uint64) {
	i := id - 1
	return i / 64, 1 << (i % 64)
}

// InUse reports whether id is assigned.
func (a *Allocator) InUse(id uint32) bool {
	if !a.valid(id) {
		return false
	}
	w, m := a.bit(id)
	return a.words[w]&m != 0
}

// Alloc assigns the lowest free id. It returns false when every id is in use.
func (a *Allocator) Alloc() (uint32, bool) {
	if a.used >= a.size {
		return 0, false
	}
	start := (a.first - 1) / 64
	for w := start; w < uint32(len(a.words)); w++ {
		free := ^a.words[w]
		if w == start {
			free &^= (uint64(1) << ((a.first - 1) % 64)) - 1
		}
		if free == 0 {
			continue
		}
		id := w*64 + uint32(bits.TrailingZeros64(free)) + 1
		if id > a.size {
			break
		}
		a.words[w] |= 1 << ((id - 1) % 64)
		a.used++
		a.first = id + 1
		return id, true
	}
	return 0, false
}

// Claim assigns a specific id. It returns false if the id is invalid or
// already assigned.
func (a *Allocator) Claim(id uint32) bool {
	if !a.valid(id) {
		return false
	}
	w, m := a.bit(id)
	if a.words[w]&m != 0 {
		return false
	}
	a.words[w] |= m
	a.used++
	if id == a.first {
		a.first++
	}
	return true
}

// Free releases id. It returns false for invalid ids and for ids that are
// not assigned (double free).
func (a *Allocator) Free(id uint32) bool {
	if !a.valid(id) {
		return false
	}
	w, m := a.bit(id)
	if a.words[w]&m == 0 {
		return false
	}
	a.words[w] &^= m
	a.used--
	if id < a.first {
		a.first = id
	}
	return true
}
