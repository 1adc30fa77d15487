package hal

import "testing"

func TestPICEdgeCountsRaises(t *testing.T) {
	p := NewPIC(8)
	p.Raise(5)
	p.Raise(5)
	if _, ok := p.Take(); ok {
		t.Fatal("Take() returned a masked line")
	}
	p.Unmask(5)
	for i := 0; i < 2; i++ {
		line, ok := p.Take()
		if !ok || line != 5 {
			t.Fatalf("Take() = %d/%v, want 5/true", line, ok)
		}
	}
	if _, ok := p.Take(); ok {
		t.Fatal("Take() returned a third trigger")
	}
}

func TestPICLevelCoalesces(t *testing.T) {
	p := NewPIC(4)
	p.SetMode(2, TriggerLevel)
	p.Unmask(2)
	p.Raise(2)
	p.Raise(2)
	if got := p.Pending(2); got != 1 {
		t.Fatalf("Pending() = %d, want 1", got)
	}
	if !p.LevelTriggered(2) || p.LevelTriggered(1) {
		t.Fatal("LevelTriggered() does not follow SetMode")
	}
}

func TestPICTakeLowestLineFirst(t *testing.T) {
	p := NewPIC(4)
	for line := 0; line < 4; line++ {
		p.Unmask(line)
	}
	p.Raise(3)
	p.Raise(1)
	if line, _ := p.Take(); line != 1 {
		t.Fatalf("Take() = %d, want 1", line)
	}
	if line, _ := p.Take(); line != 3 {
		t.Fatalf("Take() = %d, want 3", line)
	}
}

func TestPICOnRaise(t *testing.T) {
	p := NewPIC(2)
	var got []int
	p.OnRaise(func(line int) { got = append(got, line) })
	p.Raise(1)
	p.Raise(7)
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("OnRaise saw %v, want [1]", got)
	}
	if p.Raised() != 1 {
		t.Fatalf("Raised() = %d, want 1", p.Raised())
	}
}
