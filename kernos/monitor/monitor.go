// Package monitor draws the kernel activity table into a framebuffer region.
package monitor

import (
	"bufio"
	"image/color"
	"strings"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"hwkern/kernos/display"
	"hwkern/kernos/kernel"
)

var (
	colorBG     = color.RGBA{R: 0x10, G: 0x18, B: 0x20, A: 255}
	colorHeader = color.RGBA{R: 0xF0, G: 0xC0, B: 0x40, A: 255}
	colorCPU    = color.RGBA{R: 0x80, G: 0xD0, B: 0xFF, A: 255}
	colorRow    = color.RGBA{R: 0xE0, G: 0xE0, B: 0xE0, A: 255}
	colorError  = color.RGBA{R: 0xFF, G: 0x60, B: 0x60, A: 255}
)

// Monitor renders kernel.Snapshot values. Rows that do not fit are dropped.
type Monitor struct {
	d    *display.Region
	font tinyfont.Fonter

	fontWidth  int16
	fontHeight int16
	fontOffset int16

	last uint64
	seen bool
}

// New returns a monitor drawing into d.
func New(d *display.Region) *Monitor {
	m := &Monitor{
		d:          d,
		font:       &proggy.TinySZ8pt7b,
		fontHeight: 10,
		fontOffset: 7,
	}
	_, outboxWidth := tinyfont.LineWidth(m.font, "0")
	m.fontWidth = int16(outboxWidth)
	return m
}

// Rows returns how many text lines fit in the region.
func (m *Monitor) Rows() int {
	_, h := m.d.Size()
	if m.fontHeight <= 0 {
		return 0
	}
	return int(h / m.fontHeight)
}

// Columns returns how many characters fit on a line.
func (m *Monitor) Columns() int {
	w, _ := m.d.Size()
	if m.fontWidth <= 0 {
		return 0
	}
	return int(w / m.fontWidth)
}

// Render redraws the table unless s has the same tick as the last one drawn.
// It reports whether it drew.
func (m *Monitor) Render(s kernel.Snapshot) bool {
	if m.seen && s.Tick == m.last {
		return false
	}
	m.seen = true
	m.last = s.Tick

	var b strings.Builder
	_, _ = s.WriteTo(&b)

	m.d.Clear(colorBG)
	rows, cols := m.Rows(), m.Columns()
	sc := bufio.NewScanner(strings.NewReader(b.String()))
	for row := 0; row < rows && sc.Scan(); row++ {
		line := sc.Text()
		y := int16(row)*m.fontHeight + m.fontOffset
		tinyfont.WriteLine(m.d, m.font, 0, y, fitText(line, cols), lineColor(line))
	}
	return true
}

func lineColor(line string) color.RGBA {
	switch {
	case strings.HasPrefix(line, "---"):
		return colorHeader
	case strings.HasPrefix(line, "cpu"):
		return colorCPU
	case strings.Contains(line, " err="):
		return colorError
	default:
		return colorRow
	}
}

func fitText(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
