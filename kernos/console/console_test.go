package console

import (
	"bytes"
	"testing"

	"hwkern/hal"
	"hwkern/kernos/display"
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

func (f *memFB) lit(y0, y1 int) int {
	n := 0
	for y := y0; y < y1; y++ {
		for x := 0; x < f.w; x++ {
			off := y*f.w*2 + x*2
			if f.buf[off] != 0 || f.buf[off+1] != 0 {
				n++
			}
		}
	}
	return n
}

func TestConsoleMirrorsAndDraws(t *testing.T) {
	fb := &memFB{w: 160, h: 80, buf: make([]byte, 160*80*2)}
	var serial bytes.Buffer
	c := New(display.NewRegion(fb, 0, 40, 160, 40), &serial)

	if _, err := c.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if serial.String() != "hello\n" {
		t.Fatalf("mirror = %q", serial.String())
	}
	if fb.lit(0, 80) != 0 {
		t.Fatal("framebuffer drawn before Flush")
	}
	if !c.Flush() {
		t.Fatal("Flush() = false with pending output")
	}
	if fb.lit(40, 80) == 0 {
		t.Fatal("no pixels drawn in the console region")
	}
	if fb.lit(0, 40) != 0 {
		t.Fatal("pixels drawn outside the console region")
	}
	if c.Flush() {
		t.Fatal("second Flush() = true with nothing pending")
	}
	if c.Written() != 6 {
		t.Fatalf("Written() = %d, want 6", c.Written())
	}
}

func TestConsoleWithoutRegion(t *testing.T) {
	var serial bytes.Buffer
	c := New(nil, &serial)
	if _, err := c.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if c.Flush() {
		t.Fatal("Flush() drew without a region")
	}
	if serial.String() != "x" {
		t.Fatalf("mirror = %q", serial.String())
	}
}

func TestConsoleFormFeedClears(t *testing.T) {
	fb := &memFB{w: 160, h: 40, buf: make([]byte, 160*40*2)}
	c := New(display.NewRegion(fb, 0, 0, 160, 40), nil)

	c.Write([]byte("hello\n"))
	c.Flush()
	if fb.lit(0, 40) == 0 {
		t.Fatal("nothing drawn")
	}
	c.Write([]byte("\f"))
	if !c.Flush() {
		t.Fatal("Flush() = false after form feed")
	}
	if n := fb.lit(0, 40); n != 0 {
		t.Fatalf("%d pixels lit after clear, want 0", n)
	}
	c.Write([]byte("gone\fkept"))
	c.Flush()
	if fb.lit(0, 40) == 0 {
		t.Fatal("text after form feed not drawn")
	}
}
