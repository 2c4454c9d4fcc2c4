package display

import (
	"image"
	"sync"
)

// MemorySurface is a Surface backed by plain memory. The control bridge
// attaches one when no native surface is available, and tests use it to
// observe composited output.
type MemorySurface struct {
	mu       sync.Mutex
	frame    *image.RGBA
	frames   int
	released bool
}

// NewMemorySurface creates an empty in-memory surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

// Present stores a copy of the frame.
func (s *MemorySurface) Present(img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil || s.frame.Rect != img.Rect {
		s.frame = image.NewRGBA(img.Rect)
	}
	copy(s.frame.Pix, img.Pix)
	s.frames++
	return nil
}

// Release implements Surface.
func (s *MemorySurface) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
}

// Frame returns the last presented frame (nil before the first) and how
// many frames have been presented.
func (s *MemorySurface) Frame() (*image.RGBA, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.frames
}

// Released reports whether Release has been called.
func (s *MemorySurface) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
