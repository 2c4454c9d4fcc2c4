package x11

import (
	"sync"
	"time"
)

// TouchAction enumerates the pointer gestures the embedding app forwards.
type TouchAction int

const (
	TouchDown TouchAction = iota
	TouchUp
	TouchMove
)

// TouchEvent is one pointer sample in framebuffer coordinates.
type TouchEvent struct {
	Action TouchAction
	X, Y   int
}

// minDragFlushInterval rate-limits forced redraws while dragging so a fast
// touchscreen cannot starve the renderer.
const minDragFlushInterval = time.Second / 30

// touchState is the queue of pending touch samples plus the pointer state
// derived from them. Producers (the embedding app) enqueue from any
// goroutine; only the server loop drains, synthesizes X events and updates
// the grab.
type touchState struct {
	mu      sync.Mutex
	pending []TouchEvent

	lastX, lastY int
	button1Down  bool

	grabbed    bool
	grabWindow uint32

	lastDragFlush time.Time
}

func newTouchState() *touchState {
	return &touchState{}
}

// Enqueue queues a touch sample. Consecutive moves are coalesced: a new
// move overwrites a trailing queued move, so a burst of samples between
// two drains collapses to the latest position.
func (t *touchState) Enqueue(ev TouchEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ev.Action == TouchMove && len(t.pending) > 0 && t.pending[len(t.pending)-1].Action == TouchMove {
		t.pending[len(t.pending)-1] = ev
		return
	}
	t.pending = append(t.pending, ev)
}

// Drain removes and returns every queued sample.
func (t *touchState) Drain() []TouchEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	out := t.pending
	t.pending = nil
	return out
}

// Pointer returns the last injected position and whether button 1 is held,
// for QueryPointer replies.
func (t *touchState) Pointer() (x, y int, button1 bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastX, t.lastY, t.button1Down
}

func (t *touchState) setPointer(x, y int, button1 bool) {
	t.mu.Lock()
	t.lastX, t.lastY = x, y
	t.button1Down = button1
	t.mu.Unlock()
}

// beginGrab records the implicit pointer grab created by a ButtonPress:
// until the release, motion and release events route to this window no
// matter where the pointer moves.
func (t *touchState) beginGrab(window uint32) {
	t.mu.Lock()
	t.grabbed = true
	t.grabWindow = window
	t.mu.Unlock()
}

func (t *touchState) endGrab() {
	t.mu.Lock()
	t.grabbed = false
	t.grabWindow = 0
	t.mu.Unlock()
}

func (t *touchState) grab() (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.grabWindow, t.grabbed
}

// Reset clears all pointer state, for client reconnects.
func (t *touchState) Reset() {
	t.mu.Lock()
	t.pending = nil
	t.lastX, t.lastY = 0, 0
	t.button1Down = false
	t.grabbed = false
	t.grabWindow = 0
	t.lastDragFlush = time.Time{}
	t.mu.Unlock()
}

// shouldFlushDrag reports whether enough time has passed since the last
// drag-triggered redraw and, if so, restamps the timer.
func (t *touchState) shouldFlushDrag(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.Sub(t.lastDragFlush) < minDragFlushInterval {
		return false
	}
	t.lastDragFlush = now
	return true
}
