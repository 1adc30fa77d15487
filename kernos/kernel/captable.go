package kernel

import (
	"fmt"

	"hwkern/kernos/kernel/idalloc"
)

type capEntry struct {
	ref   ObjectRef
	owner *Pd
	refs  uint32
	gen   uint32
	bound bool
	// revoked is one past the last generation ended by revocation, or 0.
	revoked uint32
}

// CapTable maps capability ids to kernel objects.
//
// Entries are reference counted. Releasing the last reference or revoking an
// entry bumps its generation, so copies of the old capability stop resolving.
type CapTable struct {
	ids     *idalloc.Allocator
	entries []capEntry
}

// NewCapTable returns a table with room for size capabilities.
func NewCapTable(size int) *CapTable {
	return &CapTable{
		ids:     idalloc.New(uint32(size)),
		entries: make([]capEntry, size),
	}
}

// Cap returns the table capacity.
func (t *CapTable) Cap() int { return int(t.ids.Cap()) }

// Len returns the number of allocated ids.
func (t *CapTable) Len() int { return int(t.ids.Len()) }

func (t *CapTable) entry(id CapID) *capEntry {
	if id == InvalidCap || int(id) > len(t.entries) {
		return nil
	}
	return &t.entries[id-1]
}

// Allocate reserves a free id. It must be bound with Insert or returned with
// Discard.
func (t *CapTable) Allocate() (CapID, error) {
	id, ok := t.ids.Alloc()
	if !ok {
		return InvalidCap, fmt.Errorf("capability table full (%d): %w", t.ids.Cap(), ErrOutOfIds)
	}
	return CapID(id), nil
}

// Discard returns an allocated but unbound id.
func (t *CapTable) Discard(id CapID) {
	e := t.entry(id)
	if e == nil || e.bound {
		return
	}
	t.ids.Free(uint32(id))
}

// Insert binds id to ref. The new capability holds one reference.
func (t *CapTable) Insert(id CapID, ref ObjectRef, owner *Pd) (Capability, error) {
	e := t.entry(id)
	if e == nil || !t.ids.InUse(uint32(id)) {
		return Capability{}, fmt.Errorf("insert unallocated id %d: %w", id, ErrInvariantViolation)
	}
	if e.bound {
		return Capability{}, fmt.Errorf("insert bound id %d: %w", id, ErrInvariantViolation)
	}
	e.ref = ref
	e.owner = owner
	e.refs = 1
	e.bound = true
	return Capability{id: id, gen: e.gen}, nil
}

func (t *CapTable) resolve(c Capability) (*capEntry, error) {
	e := t.entry(c.id)
	if e == nil || !e.bound || e.gen != c.gen {
		return nil, fmt.Errorf("%s: %w", c, ErrInvalidCapability)
	}
	return e, nil
}

// Lookup returns the object named by c. A capability of another kind fails
// like a revoked one.
func (t *CapTable) Lookup(c Capability, kind Kind) (ObjectRef, error) {
	e, err := t.resolve(c)
	if err != nil {
		return ObjectRef{}, err
	}
	if kind != KindInvalid && e.ref.Kind != kind {
		return ObjectRef{}, fmt.Errorf("%s is a %s, not a %s: %w", c, e.ref.Kind, kind, ErrInvalidCapability)
	}
	return e.ref, nil
}

// Owner returns the protection domain that owns the entry.
func (t *CapTable) Owner(c Capability) *Pd {
	if e, err := t.resolve(c); err == nil {
		return e.owner
	}
	return nil
}

// Refs returns the reference count of c, or 0 if c does not resolve.
func (t *CapTable) Refs(c Capability) uint32 {
	if e, err := t.resolve(c); err == nil {
		return e.refs
	}
	return 0
}

// IncRef adds a reference to c.
func (t *CapTable) IncRef(c Capability) error {
	e, err := t.resolve(c)
	if err != nil {
		return err
	}
	e.refs++
	return nil
}

// DecRef drops a reference to c. When the last reference goes the entry is
// released and the object it named is returned with released set.
//
// Dropping a copy of a revoked capability fails like any inert capability.
// Dropping a reference that no longer exists otherwise is a double free.
func (t *CapTable) DecRef(c Capability) (ref ObjectRef, released bool, err error) {
	if !c.Valid() {
		return ObjectRef{}, false, fmt.Errorf("drop %s: %w", c, ErrInvalidCapability)
	}
	e, err := t.resolve(c)
	if err != nil {
		if e := t.entry(c.id); e != nil && e.revoked == c.gen+1 {
			return ObjectRef{}, false, fmt.Errorf("drop revoked %s: %w", c, ErrInvalidCapability)
		}
		return ObjectRef{}, false, fmt.Errorf("drop released %s: %w", c, ErrInvariantViolation)
	}
	e.refs--
	if e.refs > 0 {
		return e.ref, false, nil
	}
	ref = e.ref
	t.release(c.id, e)
	return ref, true, nil
}

// Revoke invalidates c regardless of its reference count.
func (t *CapTable) Revoke(c Capability) (ObjectRef, bool) {
	e, err := t.resolve(c)
	if err != nil {
		return ObjectRef{}, false
	}
	ref := e.ref
	e.revoked = e.gen + 1
	t.release(c.id, e)
	return ref, true
}

// RevokeOwned revokes every capability owned by pd and returns the objects
// they named.
func (t *CapTable) RevokeOwned(pd *Pd) []ObjectRef {
	if pd == nil {
		return nil
	}
	var refs []ObjectRef
	for i := range t.entries {
		e := &t.entries[i]
		if !e.bound || e.owner != pd {
			continue
		}
		refs = append(refs, e.ref)
		e.revoked = e.gen + 1
		t.release(CapID(i+1), e)
	}
	return refs
}

func (t *CapTable) release(id CapID, e *capEntry) {
	e.ref = ObjectRef{}
	e.owner = nil
	e.refs = 0
	e.bound = false
	e.gen++
	t.ids.Free(uint32(id))
}
