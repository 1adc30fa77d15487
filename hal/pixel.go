package hal

// RGB565 packs an 8-bit per channel color into PixelFormatRGB565.
func RGB565(r, g, b uint8) uint16 {
	rr := uint16(r>>3) & 0x1F
	gg := uint16(g>>2) & 0x3F
	bb := uint16(b>>3) & 0x1F
	return (rr << 11) | (gg << 5) | bb
}

// RGB888 expands a PixelFormatRGB565 pixel.
func RGB888(p uint16) (r, g, b uint8) {
	rr := (p >> 11) & 0x1F
	gg := (p >> 5) & 0x3F
	bb := p & 0x1F

	r = uint8((rr * 255) / 31)
	g = uint8((gg * 255) / 63)
	b = uint8((bb * 255) / 31)
	return r, g, b
}

// PutRGB565 stores p little endian at off, if it fits in buf.
func PutRGB565(buf []byte, off int, p uint16) bool {
	if off < 0 || off+1 >= len(buf) {
		return false
	}
	buf[off] = byte(p)
	buf[off+1] = byte(p >> 8)
	return true
}

// GetRGB565 loads the pixel at off.
func GetRGB565(buf []byte, off int) uint16 {
	if off < 0 || off+1 >= len(buf) {
		return 0
	}
	return uint16(buf[off]) | uint16(buf[off+1])<<8
}
