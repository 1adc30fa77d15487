package hal

import "testing"

func TestRGB565RoundTrip(t *testing.T) {
	if got := RGB565(255, 255, 255); got != 0xFFFF {
		t.Fatalf("RGB565(white) = %#x, want 0xffff", got)
	}
	if got := RGB565(255, 0, 0); got != 0xF800 {
		t.Fatalf("RGB565(red) = %#x, want 0xf800", got)
	}
	r, g, b := RGB888(0x07E0)
	if r != 0 || g != 255 || b != 0 {
		t.Fatalf("RGB888(green) = %d,%d,%d", r, g, b)
	}
}

func TestPutGetRGB565(t *testing.T) {
	buf := make([]byte, 4)
	if !PutRGB565(buf, 2, 0xABCD) {
		t.Fatal("PutRGB565() rejected an in-range offset")
	}
	if buf[2] != 0xCD || buf[3] != 0xAB {
		t.Fatalf("buf = % x, want little endian", buf)
	}
	if GetRGB565(buf, 2) != 0xABCD {
		t.Fatalf("GetRGB565() = %#x", GetRGB565(buf, 2))
	}
	if PutRGB565(buf, 3, 1) || GetRGB565(buf, -1) != 0 {
		t.Fatal("out of range access not rejected")
	}
}

func TestFramebufferPresentPublishesFrames(t *testing.T) {
	fb := newHostFramebuffer(2, 1)
	dst := make([]byte, 4)
	frame, ok := fb.snapshot(dst, 0)
	if !ok || frame != 0 {
		t.Fatalf("first snapshot = %d/%v, want 0/true", frame, ok)
	}
	fb.ClearRGB(255, 255, 255)
	_ = fb.Present()
	frame, ok = fb.snapshot(dst, frame)
	if !ok || frame != 1 || GetRGB565(dst, 0) != 0xFFFF {
		t.Fatalf("snapshot after Present = %d/%v % x", frame, ok, dst)
	}
	if _, ok := fb.snapshot(dst, frame); ok {
		t.Fatal("snapshot copied an unchanged frame")
	}
}
