// Package display adapts a rectangle of a board framebuffer to the TinyGo
// drivers.Displayer interface.
package display

import (
	"image/color"

	"tinygo.org/x/drivers"

	"hwkern/hal"
)

// Region is a rectangle of an RGB565 framebuffer. Coordinates passed to it
// are relative to the rectangle; writes outside it are dropped.
type Region struct {
	fb     hal.Framebuffer
	x0, y0 int
	w, h   int
}

var _ drivers.Displayer = (*Region)(nil)

// NewRegion returns the part of fb at (x, y) with size w×h, clipped to fb.
func NewRegion(fb hal.Framebuffer, x, y, w, h int) *Region {
	r := &Region{fb: fb}
	if fb == nil {
		return r
	}
	r.x0 = clampInt(x, 0, fb.Width())
	r.y0 = clampInt(y, 0, fb.Height())
	r.w = clampInt(w, 0, fb.Width()-r.x0)
	r.h = clampInt(h, 0, fb.Height()-r.y0)
	return r
}

func (d *Region) ok() bool {
	return d.fb != nil && d.fb.Format() == hal.PixelFormatRGB565 && d.fb.Buffer() != nil
}

func (d *Region) Size() (x, y int16) { return int16(d.w), int16(d.h) }

func (d *Region) SetPixel(x, y int16, c color.RGBA) {
	if !d.ok() {
		return
	}
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.w || iy < 0 || iy >= d.h {
		return
	}
	off := (d.y0+iy)*d.fb.StrideBytes() + (d.x0+ix)*2
	hal.PutRGB565(d.fb.Buffer(), off, hal.RGB565(c.R, c.G, c.B))
}

func (d *Region) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// FillRectangle fills a rectangle of the region with c.
func (d *Region) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	if !d.ok() {
		return nil
	}
	x0 := clampInt(int(x), 0, d.w)
	y0 := clampInt(int(y), 0, d.h)
	x1 := clampInt(int(x)+int(width), 0, d.w)
	y1 := clampInt(int(y)+int(height), 0, d.h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := hal.RGB565(c.R, c.G, c.B)
	buf := d.fb.Buffer()
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		row := (d.y0 + py) * stride
		for px := x0; px < x1; px++ {
			hal.PutRGB565(buf, row+(d.x0+px)*2, pixel)
		}
	}
	return nil
}

// Clear fills the whole region with c.
func (d *Region) Clear(c color.RGBA) {
	_ = d.FillRectangle(0, 0, int16(d.w), int16(d.h), c)
}

// ScrollUp moves the region content up by lines rows and clears the rows
// exposed at the bottom.
func (d *Region) ScrollUp(lines int16, bg color.RGBA) error {
	if !d.ok() || lines <= 0 {
		return nil
	}
	n := int(lines)
	if n >= d.h {
		d.Clear(bg)
		return nil
	}
	buf := d.fb.Buffer()
	stride := d.fb.StrideBytes()
	rowBytes := d.w * 2
	for y := 0; y < d.h-n; y++ {
		dst := (d.y0+y)*stride + d.x0*2
		src := (d.y0+y+n)*stride + d.x0*2
		if src+rowBytes > len(buf) || dst+rowBytes > len(buf) {
			break
		}
		copy(buf[dst:dst+rowBytes], buf[src:src+rowBytes])
	}
	return d.FillRectangle(0, int16(d.h-n), int16(d.w), int16(n), bg)
}

// SetScroll is a no-op; the framebuffer has no hardware scrolling.
func (d *Region) SetScroll(line int16) {
	_ = line
}

func (d *Region) SetRotation(rotation drivers.Rotation) error {
	_ = rotation
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
