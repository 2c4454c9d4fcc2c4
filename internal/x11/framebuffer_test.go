package x11

import (
	"testing"

	"plugview/internal/wire"
)

func putSolid(fb *framebuffer, drawable uint32, x, y, w, h int, b, g, r byte, clips []rect) {
	data := make([]byte, w*h*4)
	for i := 0; i < len(data); i += 4 {
		data[i+0] = b
		data[i+1] = g
		data[i+2] = r
		data[i+3] = 0xFF
	}
	fb.PutImage(wire.LSBFirst, drawable, data, w, h, x, y, clips)
}

func TestFramebufferResizePreservesContent(t *testing.T) {
	fb := newFramebuffer()
	fb.EnsureSize(8, 8)
	putSolid(fb, RootWindow, 0, 0, 8, 8, 0, 0, 0xFF, nil)

	fb.Resize(12, 6)
	px, w, h := fb.Snapshot(nil)
	if w != 12 || h != 6 {
		t.Fatalf("size after resize = %dx%d", w, h)
	}
	// Overlap keeps the old pixels, new area is background.
	if px[0]&0xFFFFFF != 0xFF0000 {
		t.Fatalf("pixel (0,0) = %#08x, want red", px[0])
	}
	if px[5*12+10] != backgroundPixel {
		t.Fatalf("pixel (10,5) = %#08x, want background", px[5*12+10])
	}
}

func TestFramebufferPutImageClips(t *testing.T) {
	fb := newFramebuffer()
	fb.EnsureSize(16, 16)
	// Paint everything red, but clip out a child rectangle.
	putSolid(fb, RootWindow, 0, 0, 16, 16, 0, 0, 0xFF, []rect{{4, 4, 8, 8}})

	px, _, _ := fb.Snapshot(nil)
	if px[0]&0xFFFFFF != 0xFF0000 {
		t.Fatalf("unclipped pixel = %#08x, want red", px[0])
	}
	if px[5*16+5] != backgroundPixel {
		t.Fatalf("clipped pixel = %#08x, want untouched background", px[5*16+5])
	}
}

func TestFramebufferClipsIgnoredForPixmaps(t *testing.T) {
	fb := newFramebuffer()
	fb.EnsureSize(16, 16)
	fb.CreatePixmap(300, 8, 8)
	// Clip rectangles only apply to window drawables.
	putSolid(fb, 300, 0, 0, 8, 8, 0, 0xFF, 0, []rect{{0, 0, 8, 8}})

	out := fb.GetImage(wire.LSBFirst, 300, 0, 0, 1, 1)
	if out[1] != 0xFF {
		t.Fatalf("pixmap pixel = % x, want green", out[:4])
	}
}

func TestFramebufferGetImageScratchReuse(t *testing.T) {
	fb := newFramebuffer()
	fb.EnsureSize(64, 64)
	a := fb.GetImage(wire.LSBFirst, RootWindow, 0, 0, 32, 32)
	b := fb.GetImage(wire.LSBFirst, RootWindow, 0, 0, 32, 32)
	if &a[0] != &b[0] {
		t.Fatal("GetImage allocated a fresh buffer per call")
	}
	// A larger request may grow the scratch, a smaller one must not.
	fb.GetImage(wire.LSBFirst, RootWindow, 0, 0, 64, 64)
	c := fb.GetImage(wire.LSBFirst, RootWindow, 0, 0, 16, 16)
	if len(c) != 16*16*4 {
		t.Fatalf("GetImage length = %d", len(c))
	}
}

func TestFramebufferGetImageClampsToDrawable(t *testing.T) {
	fb := newFramebuffer()
	fb.EnsureSize(4, 4)
	// Wire-supplied dimensions must not size the buffer past the drawable.
	out := fb.GetImage(wire.LSBFirst, RootWindow, 0, 0, 65535, 65535)
	if len(out) != 4*4*4 {
		t.Fatalf("GetImage returned %d bytes, want %d", len(out), 4*4*4)
	}
}

func TestFramebufferDirtySemantics(t *testing.T) {
	fb := newFramebuffer()
	fb.EnsureSize(4, 4)

	done := make(chan bool, 1)
	go func() { done <- fb.WaitDirty() }()

	putSolid(fb, RootWindow, 0, 0, 2, 2, 0, 0, 0xFF, nil)
	if ok := <-done; !ok {
		t.Fatal("WaitDirty returned closed")
	}
	// Flag was cleared by WaitDirty; Close releases the next waiter.
	go func() { done <- fb.WaitDirty() }()
	fb.Close()
	if ok := <-done; ok {
		t.Fatal("WaitDirty returned dirty after Close")
	}
}

func TestPixelCodecBothOrders(t *testing.T) {
	buf := make([]byte, 4)
	const v = uint32(0xFF123456)
	for _, order := range []wire.ByteOrder{wire.LSBFirst, wire.MSBFirst} {
		encodePixel(order, buf, v)
		if got := decodePixel(order, buf); got != v {
			t.Fatalf("order %v round trip = %#08x, want %#08x", order, got, v)
		}
	}
	// LSB-first wire layout is B,G,R,A.
	encodePixel(wire.LSBFirst, buf, v)
	if buf[0] != 0x56 || buf[1] != 0x34 || buf[2] != 0x12 || buf[3] != 0xFF {
		t.Fatalf("LSB layout = % x", buf)
	}
}
