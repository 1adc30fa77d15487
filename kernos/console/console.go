// Package console is the kernel console: bytes printed by threads are
// mirrored to the board's serial port at once and drawn into a framebuffer
// region by a VT100 terminal on the next Flush.
package console

import (
	"bytes"
	"image/color"
	"io"
	"sync"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"

	"hwkern/kernos/display"
)

const (
	fontHeight = 10
	fontOffset = 7

	// formFeed clears the terminal.
	formFeed = '\f'
)

// Console implements io.Writer for kernel.Options.Console.
type Console struct {
	mu      sync.Mutex
	pending []byte
	mirror  io.Writer

	region *display.Region
	term   *tinyterm.Terminal

	written uint64
}

// New returns a console drawing into region and copying output to mirror.
// Either may be nil.
func New(region *display.Region, mirror io.Writer) *Console {
	c := &Console{region: region, mirror: mirror}
	c.reset()
	return c
}

func (c *Console) reset() {
	if c.region == nil {
		return
	}
	if w, h := c.region.Size(); w <= 0 || h < fontHeight {
		c.region = nil
		return
	}
	c.region.Clear(color.RGBA{A: 255})
	c.term = tinyterm.NewTerminal(c.region)
	c.term.Configure(&tinyterm.Config{
		Font:       &proggy.TinySZ8pt7b,
		FontHeight: fontHeight,
		FontOffset: fontOffset,
	})
}

// Write queues p for the terminal and copies it to the mirror.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written += uint64(len(p))
	if c.term != nil {
		c.pending = append(c.pending, p...)
	}
	if c.mirror != nil {
		if _, err := c.mirror.Write(p); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush draws queued output. A form feed clears the terminal first; output
// before it is never drawn. Flush reports whether the framebuffer changed.
func (c *Console) Flush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.term == nil || len(c.pending) == 0 {
		return false
	}
	out := c.pending
	if i := bytes.LastIndexByte(out, formFeed); i >= 0 {
		c.reset()
		out = out[i+1:]
	}
	if len(out) > 0 {
		_, _ = c.term.Write(out)
	}
	c.pending = c.pending[:0]
	return true
}

// Written returns the number of bytes printed so far.
func (c *Console) Written() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written
}
