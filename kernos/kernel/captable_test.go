package kernel

import (
	"errors"
	"testing"
)

func insertCap(t *testing.T, tab *CapTable, slot uint32) Capability {
	t.Helper()
	id, err := tab.Allocate()
	if err != nil {
		t.Fatalf("Allocate() = %v", err)
	}
	c, err := tab.Insert(id, ObjectRef{Kind: KindSignalReceiver, Handle: Handle{Slot: slot}}, nil)
	if err != nil {
		t.Fatalf("Insert() = %v", err)
	}
	return c
}

func TestCapTableUniqueIDs(t *testing.T) {
	tab := NewCapTable(16)
	seen := make(map[CapID]bool)
	for i := 0; i < 16; i++ {
		c := insertCap(t, tab, uint32(i+1))
		if seen[c.ID()] {
			t.Fatalf("id %d handed out twice", c.ID())
		}
		seen[c.ID()] = true
	}
	if _, err := tab.Allocate(); !errors.Is(err, ErrOutOfIds) {
		t.Fatalf("Allocate() on full table = %v, want ErrOutOfIds", err)
	}
}

func TestCapTableRefCount(t *testing.T) {
	tab := NewCapTable(4)
	c := insertCap(t, tab, 7)
	if got := tab.Refs(c); got != 1 {
		t.Fatalf("Refs() = %d, want 1", got)
	}
	if err := tab.IncRef(c); err != nil {
		t.Fatalf("IncRef() = %v", err)
	}
	if _, released, err := tab.DecRef(c); err != nil || released {
		t.Fatalf("DecRef() = %v/%v, want not released", released, err)
	}
	if _, err := tab.Lookup(c, KindSignalReceiver); err != nil {
		t.Fatalf("Lookup() with one ref left = %v", err)
	}
	ref, released, err := tab.DecRef(c)
	if err != nil || !released {
		t.Fatalf("DecRef() = %v/%v, want released", released, err)
	}
	if ref.Handle.Slot != 7 {
		t.Fatalf("released ref slot = %d, want 7", ref.Handle.Slot)
	}
	if _, err := tab.Lookup(c, KindSignalReceiver); !errors.Is(err, ErrInvalidCapability) {
		t.Fatalf("Lookup() after release = %v, want ErrInvalidCapability", err)
	}
	if _, _, err := tab.DecRef(c); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("DecRef() past zero = %v, want ErrInvariantViolation", err)
	}
	if tab.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tab.Len())
	}
}

func TestCapTableKindChecked(t *testing.T) {
	tab := NewCapTable(4)
	c := insertCap(t, tab, 1)
	if _, err := tab.Lookup(c, KindThread); !errors.Is(err, ErrInvalidCapability) {
		t.Fatalf("Lookup(thread) of a receiver = %v, want ErrInvalidCapability", err)
	}
	if _, err := tab.Lookup(Capability{}, KindSignalReceiver); !errors.Is(err, ErrInvalidCapability) {
		t.Fatalf("Lookup(invalid) = %v, want ErrInvalidCapability", err)
	}
}

func TestCapTableRevokeDetectsStaleCopies(t *testing.T) {
	tab := NewCapTable(1)
	old := insertCap(t, tab, 1)
	if err := tab.IncRef(old); err != nil {
		t.Fatalf("IncRef() = %v", err)
	}
	if _, ok := tab.Revoke(old); !ok {
		t.Fatal("Revoke() = false")
	}
	fresh := insertCap(t, tab, 2)
	if fresh.ID() != old.ID() {
		t.Fatalf("reused id = %d, want %d", fresh.ID(), old.ID())
	}
	if _, err := tab.Lookup(old, KindSignalReceiver); !errors.Is(err, ErrInvalidCapability) {
		t.Fatalf("Lookup(stale copy) = %v, want ErrInvalidCapability", err)
	}
	ref, err := tab.Lookup(fresh, KindSignalReceiver)
	if err != nil || ref.Handle.Slot != 2 {
		t.Fatalf("Lookup(fresh) = %v/%v, want slot 2", ref, err)
	}
}

func TestCapTableRevokeOwned(t *testing.T) {
	tab := NewCapTable(8)
	a, b := &Pd{}, &Pd{}
	var mine []Capability
	for i := 0; i < 3; i++ {
		id, _ := tab.Allocate()
		c, _ := tab.Insert(id, ObjectRef{Kind: KindSignalContext, Handle: Handle{Slot: uint32(i + 1)}}, a)
		mine = append(mine, c)
	}
	id, _ := tab.Allocate()
	other, _ := tab.Insert(id, ObjectRef{Kind: KindSignalContext, Handle: Handle{Slot: 9}}, b)

	refs := tab.RevokeOwned(a)
	if len(refs) != 3 {
		t.Fatalf("RevokeOwned() = %d refs, want 3", len(refs))
	}
	for _, c := range mine {
		if _, err := tab.Lookup(c, KindSignalContext); err == nil {
			t.Fatalf("Lookup(%s) succeeded after RevokeOwned", c)
		}
	}
	if tab.Owner(other) != b {
		t.Fatal("capability of another pd was revoked")
	}
}

func TestCapTableDiscard(t *testing.T) {
	tab := NewCapTable(1)
	id, err := tab.Allocate()
	if err != nil {
		t.Fatalf("Allocate() = %v", err)
	}
	tab.Discard(id)
	if _, err := tab.Allocate(); err != nil {
		t.Fatalf("Allocate() after Discard = %v", err)
	}
}

func TestCapTableDropRevokedCopy(t *testing.T) {
	tab := NewCapTable(2)
	c := insertCap(t, tab, 1)
	if err := tab.IncRef(c); err != nil {
		t.Fatalf("IncRef() = %v", err)
	}
	if _, ok := tab.Revoke(c); !ok {
		t.Fatal("Revoke() = false")
	}
	if _, _, err := tab.DecRef(c); !errors.Is(err, ErrInvalidCapability) {
		t.Fatalf("DecRef(revoked copy) = %v, want ErrInvalidCapability", err)
	}

	d := insertCap(t, tab, 2)
	if _, _, err := tab.DecRef(d); err != nil {
		t.Fatalf("DecRef() last = %v", err)
	}
	if _, _, err := tab.DecRef(d); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("DecRef(released) = %v, want ErrInvariantViolation", err)
	}
}
