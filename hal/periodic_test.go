package hal

import (
	"testing"
	"time"
)

func TestPeriodicSourcePoll(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	pic := NewPIC(16)
	src, err := newPeriodicSourceWithClock("RTC", pic, IRQRTC, 10*time.Second, clock)
	if err != nil {
		t.Fatalf("newPeriodicSourceWithClock: %v", err)
	}

	if n := src.Poll(); n != 0 {
		t.Fatalf("Poll() at t=0 = %d, want 0", n)
	}

	now = now.Add(3 * time.Second)
	if n := src.Poll(); n != 0 {
		t.Fatalf("Poll() at t=3s = %d, want 0", n)
	}

	now = now.Add(8 * time.Second) // t=11s
	if n := src.Poll(); n != 1 {
		t.Fatalf("Poll() at t=11s = %d, want 1", n)
	}

	now = now.Add(30 * time.Second) // t=41s
	if n := src.Poll(); n != 3 {
		t.Fatalf("Poll() at t=41s = %d, want 3", n)
	}
	if got := pic.Pending(IRQRTC); got != 4 {
		t.Fatalf("Pending(RTC) = %d, want 4", got)
	}
	if src.Fired() != 4 {
		t.Fatalf("Fired() = %d, want 4", src.Fired())
	}
}

func TestPeriodicSourceRejectsBadLine(t *testing.T) {
	pic := NewPIC(4)
	if _, err := NewPeriodicSource("X", pic, 4, time.Second); err == nil {
		t.Fatal("expected error for line past the controller")
	}
	if _, err := NewPeriodicSource(" ", pic, 1, time.Second); err == nil {
		t.Fatal("expected error for empty name")
	}
}
