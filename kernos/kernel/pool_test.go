package kernel

import (
	"errors"
	"testing"
)

type item struct{ v int }

func TestPoolRoundTrip(t *testing.T) {
	p := NewPool[item](KindSignalContext, 4)
	var hs []Handle
	for i := 0; i < 4; i++ {
		h, it, err := p.Reserve()
		if err != nil {
			t.Fatalf("Reserve() = %v", err)
		}
		it.v = i
		if err := p.Publish(h); err != nil {
			t.Fatalf("Publish() = %v", err)
		}
		hs = append(hs, h)
	}
	if _, _, err := p.Reserve(); !errors.Is(err, ErrOutOfIds) {
		t.Fatalf("Reserve() on full pool = %v, want ErrOutOfIds", err)
	}

	if err := p.Retire(hs[1]); err != nil {
		t.Fatalf("Retire() = %v", err)
	}
	if _, ok := p.Lookup(hs[1]); ok {
		t.Fatal("Lookup() of retired handle succeeded")
	}
	for _, i := range []int{0, 2, 3} {
		it, ok := p.Lookup(hs[i])
		if !ok || it.v != i {
			t.Fatalf("Lookup(%d) = %v/%v, want %d", i, it, ok, i)
		}
	}
	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}
}

func TestPoolStaleHandle(t *testing.T) {
	p := NewPool[item](KindThread, 1)
	h, _, _ := p.Reserve()
	p.Publish(h)
	p.Retire(h)

	h2, it, err := p.Reserve()
	if err != nil {
		t.Fatalf("Reserve() = %v", err)
	}
	if h2.Slot != h.Slot || h2.Gen == h.Gen {
		t.Fatalf("reused handle = %+v, old %+v", h2, h)
	}
	it.v = 42
	p.Publish(h2)
	if _, ok := p.Lookup(h); ok {
		t.Fatal("stale handle aliases the new object")
	}
	if err := p.Retire(h); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Retire(stale) = %v, want ErrInvariantViolation", err)
	}
	if got, ok := p.Lookup(h2); !ok || got.v != 42 {
		t.Fatalf("Lookup(new) = %v/%v", got, ok)
	}
}

func TestPoolUnpublishedInvisible(t *testing.T) {
	p := NewPool[item](KindIrq, 2)
	h, _, _ := p.Reserve()
	if _, ok := p.Lookup(h); ok {
		t.Fatal("Lookup() found a reserved but unpublished slot")
	}
	p.Unreserve(h)
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", p.Len())
	}
	if _, _, err := p.Reserve(); err != nil {
		t.Fatalf("Reserve() after Unreserve = %v", err)
	}
}

func TestPoolEachInSlotOrder(t *testing.T) {
	p := NewPool[item](KindVm, 3)
	var hs []Handle
	for i := 0; i < 3; i++ {
		h, it, _ := p.Reserve()
		it.v = i
		hs = append(hs, h)
	}
	for i := len(hs) - 1; i >= 0; i-- {
		p.Publish(hs[i])
	}
	var got []int
	p.Each(func(it *item) { got = append(got, it.v) })
	if len(got) != 3 || got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("Each() order = %v, want [0 1 2]", got)
	}
}
