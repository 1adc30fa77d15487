package monitor

import (
	"image/color"
	"testing"

	"hwkern/hal"
	"hwkern/kernos/display"
	"hwkern/kernos/kernel"
)

type memFB struct {
	w, h int
	buf  []byte
}

func (f *memFB) Width() int              { return f.w }
func (f *memFB) Height() int             { return f.h }
func (f *memFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *memFB) StrideBytes() int        { return f.w * 2 }
func (f *memFB) Buffer() []byte          { return f.buf }
func (f *memFB) ClearRGB(r, g, b uint8)  {}
func (f *memFB) Present() error          { return nil }

func (f *memFB) count(px uint16) int {
	n := 0
	for off := 0; off+1 < len(f.buf); off += 2 {
		if hal.GetRGB565(f.buf, off) == px {
			n++
		}
	}
	return n
}

func TestRenderDrawsTable(t *testing.T) {
	fb := &memFB{w: 320, h: 120, buf: make([]byte, 320*120*2)}
	m := New(display.NewRegion(fb, 0, 0, 320, 120))
	if m.Rows() != 12 {
		t.Fatalf("Rows() = %d, want 12", m.Rows())
	}
	if m.Columns() <= 0 {
		t.Fatalf("Columns() = %d", m.Columns())
	}

	s := kernel.Snapshot{
		Tick: 7,
		CPUs: []kernel.CPUInfo{{ID: 0, Current: "idle"}},
		Threads: []kernel.ThreadInfo{
			{Label: "kbd", Pd: "core", CPU: 0},
			{Label: "bad", Pd: "core", CPU: 0, LastError: "denied"},
		},
	}
	if !m.Render(s) {
		t.Fatal("Render() = false on first snapshot")
	}
	if fb.count(hal.RGB565(colorBG.R, colorBG.G, colorBG.B)) == 0 {
		t.Fatal("background not painted")
	}
	for name, c := range map[string][3]uint8{
		"header": {colorHeader.R, colorHeader.G, colorHeader.B},
		"cpu":    {colorCPU.R, colorCPU.G, colorCPU.B},
		"error":  {colorError.R, colorError.G, colorError.B},
	} {
		if fb.count(hal.RGB565(c[0], c[1], c[2])) == 0 {
			t.Fatalf("no %s pixels drawn", name)
		}
	}

	if m.Render(s) {
		t.Fatal("Render() redrew an unchanged tick")
	}
	s.Tick++
	if !m.Render(s) {
		t.Fatal("Render() skipped a new tick")
	}
}

func TestLineColor(t *testing.T) {
	cases := map[string]color.RGBA{
		"--- activity tick=1": colorHeader,
		"cpu0  current=idle":  colorCPU,
		"  t err=\"denied\"":  colorError,
		"  t core ready":      colorRow,
	}
	for line, want := range cases {
		if got := lineColor(line); got != want {
			t.Errorf("lineColor(%q) = %v, want %v", line, got, want)
		}
	}
}
