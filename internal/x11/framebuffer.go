package x11

import (
	"sync"

	"plugview/internal/wire"
)

// backgroundPixel is the color the framebuffer is cleared to before the
// plugin paints anything. Pixels are packed A<<24 | R<<16 | G<<8 | B.
const backgroundPixel = 0xFF302020

// maxFramebufferDim caps window-driven framebuffer sizes.
const maxFramebufferDim = 8192

type pixmap struct {
	w, h int
	px   []uint32
}

// framebuffer is the single backing store every window renders into. It is
// sized lazily from the first created window ("natural size") and resized
// when the top-level window is reconfigured. The renderer blocks on the
// dirty condition and clears the flag before taking its snapshot, so a
// PutImage that lands mid-composite still triggers another frame.
type framebuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	dirty   bool
	closed  bool
	w, h    int
	px      []uint32
	pixmaps map[uint32]*pixmap
	scratch []byte
}

func newFramebuffer() *framebuffer {
	fb := &framebuffer{pixmaps: make(map[uint32]*pixmap)}
	fb.cond = sync.NewCond(&fb.mu)
	return fb
}

func clampDim(v int) int {
	if v < 1 {
		return 1
	}
	if v > maxFramebufferDim {
		return maxFramebufferDim
	}
	return v
}

// EnsureSize sizes the framebuffer from the first window if it has not
// been sized yet. Reports whether this call performed the initialization.
func (fb *framebuffer) EnsureSize(w, h int) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.px != nil {
		return false
	}
	fb.w, fb.h = clampDim(w), clampDim(h)
	fb.px = make([]uint32, fb.w*fb.h)
	for i := range fb.px {
		fb.px[i] = backgroundPixel
	}
	return true
}

// Resize grows or shrinks the framebuffer, preserving the overlapping
// region so the plugin does not flash to background on every resize.
func (fb *framebuffer) Resize(w, h int) {
	w, h = clampDim(w), clampDim(h)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.px == nil {
		fb.w, fb.h = w, h
		fb.px = make([]uint32, w*h)
		for i := range fb.px {
			fb.px[i] = backgroundPixel
		}
		return
	}
	if w == fb.w && h == fb.h {
		return
	}
	next := make([]uint32, w*h)
	for i := range next {
		next[i] = backgroundPixel
	}
	copyW := fb.w
	if w < copyW {
		copyW = w
	}
	copyH := fb.h
	if h < copyH {
		copyH = h
	}
	for y := 0; y < copyH; y++ {
		copy(next[y*w:y*w+copyW], fb.px[y*fb.w:y*fb.w+copyW])
	}
	fb.w, fb.h, fb.px = w, h, next
	fb.dirty = true
	fb.cond.Signal()
}

// Size returns the current framebuffer dimensions (0, 0 before the first
// window is created).
func (fb *framebuffer) Size() (w, h int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.px == nil {
		return 0, 0
	}
	return fb.w, fb.h
}

// MarkDirty flags new content and wakes the renderer.
func (fb *framebuffer) MarkDirty() {
	fb.mu.Lock()
	fb.dirty = true
	fb.cond.Signal()
	fb.mu.Unlock()
}

// Close wakes any waiting renderer and makes WaitDirty return false.
func (fb *framebuffer) Close() {
	fb.mu.Lock()
	fb.closed = true
	fb.cond.Broadcast()
	fb.mu.Unlock()
}

// WaitDirty blocks until the framebuffer has new content or is closed.
// The dirty flag is cleared before returning, ahead of the caller's
// snapshot, so writes racing the composite schedule another frame.
func (fb *framebuffer) WaitDirty() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for !fb.dirty && !fb.closed {
		fb.cond.Wait()
	}
	if fb.closed {
		return false
	}
	fb.dirty = false
	return true
}

// Snapshot appends a copy of the pixel buffer to dst and returns it with
// the dimensions. Returns nil when the framebuffer has not been sized.
func (fb *framebuffer) Snapshot(dst []uint32) (px []uint32, w, h int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.px == nil {
		return nil, 0, 0
	}
	px = append(dst[:0], fb.px...)
	return px, fb.w, fb.h
}

// CreatePixmap registers an offscreen drawable.
func (fb *framebuffer) CreatePixmap(pid uint32, w, h int) {
	w, h = clampDim(w), clampDim(h)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	px := make([]uint32, w*h)
	for i := range px {
		px[i] = backgroundPixel
	}
	fb.pixmaps[pid] = &pixmap{w: w, h: h, px: px}
}

// HasPixmap reports whether pid names a registered pixmap.
func (fb *framebuffer) HasPixmap(pid uint32) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	_, ok := fb.pixmaps[pid]
	return ok
}

// FreePixmap drops an offscreen drawable.
func (fb *framebuffer) FreePixmap(pid uint32) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.pixmaps, pid)
}

// resolveLocked maps a drawable ID to its pixel buffer. Window drawables
// all share the framebuffer; pixmaps have their own storage.
func (fb *framebuffer) resolveLocked(drawable uint32) (px []uint32, w, h int, isWindow bool) {
	if pm, ok := fb.pixmaps[drawable]; ok {
		return pm.px, pm.w, pm.h, false
	}
	return fb.px, fb.w, fb.h, true
}

// PutImage decodes ZPixmap pixel data into the drawable at (dstX, dstY) in
// absolute coordinates. Pixels inside any clip rectangle are skipped (those
// regions belong to mapped child windows). Alpha is forced opaque since
// clients routinely send depth-24 data with a zero padding byte.
func (fb *framebuffer) PutImage(order wire.ByteOrder, drawable uint32, data []byte, imgW, imgH, dstX, dstY int, clips []rect) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	px, w, h, isWindow := fb.resolveLocked(drawable)
	if px == nil || imgW <= 0 || imgH <= 0 {
		return
	}
	stride := imgW * 4
	wrote := false
	for row := 0; row < imgH; row++ {
		y := dstY + row
		if y < 0 || y >= h {
			continue
		}
		src := row * stride
		if src+stride > len(data) {
			break
		}
	cols:
		for col := 0; col < imgW; col++ {
			x := dstX + col
			if x < 0 || x >= w {
				continue
			}
			if isWindow {
				for _, c := range clips {
					if c.contains(x, y) {
						continue cols
					}
				}
			}
			px[y*w+x] = decodePixel(order, data[src+col*4:]) | 0xFF000000
			wrote = true
		}
	}
	if wrote && isWindow {
		fb.dirty = true
		fb.cond.Signal()
	}
}

// GetImage encodes a region of the drawable as ZPixmap pixel data. The
// returned slice is a scratch buffer reused across calls; callers must
// finish with it before the next request is dispatched.
func (fb *framebuffer) GetImage(order wire.ByteOrder, drawable uint32, x, y, imgW, imgH int) []byte {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	px, w, h, _ := fb.resolveLocked(drawable)
	if imgW < 0 {
		imgW = 0
	}
	if imgH < 0 {
		imgH = 0
	}
	// The region past the drawable's edge is all zeros anyway; clamping
	// keeps an oversized request from forcing a giant scratch buffer.
	if px != nil {
		if imgW > w {
			imgW = w
		}
		if imgH > h {
			imgH = h
		}
	}
	need := imgW * imgH * 4
	if cap(fb.scratch) < need {
		fb.scratch = make([]byte, need)
	}
	out := fb.scratch[:need]
	for i := range out {
		out[i] = 0
	}
	if px == nil {
		return out
	}
	for row := 0; row < imgH; row++ {
		sy := y + row
		if sy < 0 || sy >= h {
			continue
		}
		for col := 0; col < imgW; col++ {
			sx := x + col
			if sx < 0 || sx >= w {
				continue
			}
			encodePixel(order, out[(row*imgW+col)*4:], px[sy*w+sx])
		}
	}
	return out
}

// CopyArea copies a rectangle between drawables, clipping to both.
func (fb *framebuffer) CopyArea(src, dst uint32, srcX, srcY, dstX, dstY, w, h int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	sp, sw, sh, _ := fb.resolveLocked(src)
	dp, dw, dh, dstIsWindow := fb.resolveLocked(dst)
	if sp == nil || dp == nil {
		return
	}
	wrote := false
	for row := 0; row < h; row++ {
		sy, dy := srcY+row, dstY+row
		if sy < 0 || sy >= sh || dy < 0 || dy >= dh {
			continue
		}
		for col := 0; col < w; col++ {
			sx, dx := srcX+col, dstX+col
			if sx < 0 || sx >= sw || dx < 0 || dx >= dw {
				continue
			}
			dp[dy*dw+dx] = sp[sy*sw+sx]
			wrote = true
		}
	}
	if wrote && dstIsWindow {
		fb.dirty = true
		fb.cond.Signal()
	}
}

// decodePixel reads one 32bpp ZPixmap pixel. LSB-first clients send
// B,G,R,A byte order; MSB-first clients send A,R,G,B.
func decodePixel(order wire.ByteOrder, p []byte) uint32 {
	if order == wire.LSBFirst {
		return uint32(p[3])<<24 | uint32(p[2])<<16 | uint32(p[1])<<8 | uint32(p[0])
	}
	return uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
}

// encodePixel writes one 32bpp ZPixmap pixel, mirroring decodePixel so a
// PutImage/GetImage round trip is lossless in either byte order.
func encodePixel(order wire.ByteOrder, p []byte, v uint32) {
	if order == wire.LSBFirst {
		p[0] = byte(v)
		p[1] = byte(v >> 8)
		p[2] = byte(v >> 16)
		p[3] = byte(v >> 24)
		return
	}
	p[0] = byte(v >> 24)
	p[1] = byte(v >> 16)
	p[2] = byte(v >> 8)
	p[3] = byte(v)
}
