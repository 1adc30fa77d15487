package kernel

import (
	"fmt"
	"sort"

	"hwkern/kernos/kernel/idalloc"
)

// Pool is the arena of one object kind.
//
// Storage for every slot is reserved up front. A slot is reserved, then
// published into the live index once its object is initialized, and finally
// retired. Retiring bumps the slot generation.
type Pool[T any] struct {
	kind  Kind
	ids   *idalloc.Allocator
	slots []T
	gens  []uint32
	live  []uint32 // sorted slot ids of published objects
}

// NewPool returns a pool with size slots.
func NewPool[T any](kind Kind, size int) *Pool[T] {
	return &Pool[T]{
		kind:  kind,
		ids:   idalloc.New(uint32(size)),
		slots: make([]T, size),
		gens:  make([]uint32, size),
		live:  make([]uint32, 0, size),
	}
}

func (p *Pool[T]) Kind() Kind { return p.kind }
func (p *Pool[T]) Cap() int   { return int(p.ids.Cap()) }

// Len returns the number of published objects.
func (p *Pool[T]) Len() int { return len(p.live) }

// Reserve claims a free slot and returns its handle and zeroed storage.
func (p *Pool[T]) Reserve() (Handle, *T, error) {
	id, ok := p.ids.Alloc()
	if !ok {
		return Handle{}, nil, fmt.Errorf("%s pool exhausted (%d): %w", p.kind, p.ids.Cap(), ErrOutOfIds)
	}
	var zero T
	p.slots[id-1] = zero
	return Handle{Slot: id, Gen: p.gens[id-1]}, &p.slots[id-1], nil
}

// Unreserve gives back a reserved slot that was never published.
func (p *Pool[T]) Unreserve(h Handle) {
	if p.index(h.Slot) >= 0 || !p.current(h) {
		return
	}
	p.ids.Free(h.Slot)
}

// Publish inserts a reserved slot into the live index.
func (p *Pool[T]) Publish(h Handle) error {
	if !p.current(h) || !p.ids.InUse(h.Slot) {
		return fmt.Errorf("publish stale %s handle %d.%d: %w", p.kind, h.Slot, h.Gen, ErrInvariantViolation)
	}
	i := sort.Search(len(p.live), func(i int) bool { return p.live[i] >= h.Slot })
	if i < len(p.live) && p.live[i] == h.Slot {
		return fmt.Errorf("publish live %s slot %d: %w", p.kind, h.Slot, ErrInvariantViolation)
	}
	p.live = append(p.live, 0)
	copy(p.live[i+1:], p.live[i:])
	p.live[i] = h.Slot
	return nil
}

// Lookup returns the published object at h. It fails for retired slots and
// for handles whose generation is stale.
func (p *Pool[T]) Lookup(h Handle) (*T, bool) {
	if !p.current(h) || p.index(h.Slot) < 0 {
		return nil, false
	}
	return &p.slots[h.Slot-1], true
}

// Retire removes h from the live index, zeroes its storage and frees the
// slot for reuse under a new generation.
func (p *Pool[T]) Retire(h Handle) error {
	if !p.current(h) {
		return fmt.Errorf("retire stale %s handle %d.%d: %w", p.kind, h.Slot, h.Gen, ErrInvariantViolation)
	}
	i := p.index(h.Slot)
	if i < 0 {
		return fmt.Errorf("retire unpublished %s slot %d: %w", p.kind, h.Slot, ErrInvariantViolation)
	}
	p.live = append(p.live[:i], p.live[i+1:]...)
	var zero T
	p.slots[h.Slot-1] = zero
	p.gens[h.Slot-1]++
	p.ids.Free(h.Slot)
	return nil
}

// Each calls fn for every published object in slot order. fn must not
// publish or retire.
func (p *Pool[T]) Each(fn func(*T)) {
	for _, id := range p.live {
		fn(&p.slots[id-1])
	}
}

func (p *Pool[T]) current(h Handle) bool {
	return h.Slot >= 1 && int(h.Slot) <= len(p.slots) && p.gens[h.Slot-1] == h.Gen
}

func (p *Pool[T]) index(slot uint32) int {
	i := sort.Search(len(p.live), func(i int) bool { return p.live[i] >= slot })
	if i < len(p.live) && p.live[i] == slot {
		return i
	}
	return -1
}
