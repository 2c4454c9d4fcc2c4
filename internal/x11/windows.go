package x11

import (
	"sync"

	"golang.org/x/exp/slices"
)

// rect is a half-open pixel rectangle [X1,X2) x [Y1,Y2).
type rect struct {
	X1, Y1, X2, Y2 int
}

func (r rect) contains(x, y int) bool {
	return x >= r.X1 && x < r.X2 && y >= r.Y1 && y < r.Y2
}

type windowPos struct {
	X, Y   int
	Parent uint32
}

type windowSize struct {
	W, H int
}

// HitResult is the outcome of a pointer hit test: the deepest window under
// the point and the point in that window's local coordinates.
type HitResult struct {
	Window uint32
	X, Y   int
}

// windowTable tracks every window the client has created: geometry,
// parent links, map state and creation order. The creation-order list
// doubles as the stacking order for hit testing — the server has no real
// z-ordering, so "later in the list" means "on top".
//
// Invariant: a window ID is present in order, sizes and positions together
// or not at all; all three are updated under one lock.
type windowTable struct {
	mu         sync.Mutex
	order      []uint32
	sizes      map[uint32]windowSize
	positions  map[uint32]windowPos
	unmapped   map[uint32]struct{}
	eventMasks map[uint32]uint32
}

func newWindowTable() *windowTable {
	t := &windowTable{}
	t.reset()
	return t
}

// reset drops every window. Called when a client connects so a reconnect
// starts from a clean registry.
func (t *windowTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.sizes = make(map[uint32]windowSize)
	t.positions = make(map[uint32]windowPos)
	t.unmapped = make(map[uint32]struct{})
	t.eventMasks = make(map[uint32]uint32)
}

// Create registers a new window. Per X11 semantics the window starts
// unmapped; it stays invisible to hit testing until MapWindow.
func (t *windowTable) Create(wid, parent uint32, x, y, w, h int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sizes[wid] = windowSize{w, h}
	t.positions[wid] = windowPos{x, y, parent}
	t.order = append(t.order, wid)
	t.unmapped[wid] = struct{}{}
}

// Destroy removes a window from the registry.
func (t *windowTable) Destroy(wid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sizes, wid)
	delete(t.positions, wid)
	delete(t.unmapped, wid)
	delete(t.eventMasks, wid)
	if i := slices.Index(t.order, wid); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// Map clears the unmapped flag. If the mapped window is a direct child of
// the root (a popup), its entire subtree is relocated to the end of the
// stacking order so the reverse-order hit test finds popup widgets before
// the regular plugin widgets underneath them.
func (t *windowTable) Map(wid uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.unmapped, wid)

	if len(t.order) == 0 || wid == t.order[0] {
		return
	}
	pos, ok := t.positions[wid]
	if !ok || pos.Parent != RootWindow {
		return
	}
	// Collect the popup's subtree.
	subtree := map[uint32]struct{}{wid: {}}
	for changed := true; changed; {
		changed = false
		for cw, p := range t.positions {
			if _, in := subtree[p.Parent]; in {
				if _, seen := subtree[cw]; !seen {
					subtree[cw] = struct{}{}
					changed = true
				}
			}
		}
	}
	// Move it to the end, keeping creation order (IDs are handed out in
	// creation order) within the subtree.
	toMove := make([]uint32, 0, len(subtree))
	kept := t.order[:0]
	for _, w := range t.order {
		if _, in := subtree[w]; in {
			toMove = append(toMove, w)
		} else {
			kept = append(kept, w)
		}
	}
	slices.Sort(toMove)
	t.order = append(kept, toMove...)
}

// Unmap sets the unmapped flag and reports whether the window is a
// top-level popup (direct child of the root, not the plugin window), in
// which case the caller must expose the main window so stale popup pixels
// get overpainted.
func (t *windowTable) Unmap(wid uint32) (topLevelPopup bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unmapped[wid] = struct{}{}
	if len(t.order) == 0 || wid == t.order[0] {
		return false
	}
	pos, ok := t.positions[wid]
	return ok && pos.Parent == RootWindow
}

// Contains reports whether wid is a known window.
func (t *windowTable) Contains(wid uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.positions[wid]
	return ok
}

// IsUnmapped reports whether wid is currently unmapped.
func (t *windowTable) IsUnmapped(wid uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.unmapped[wid]
	return ok
}

// TopLevel returns the first-created window — treated as the plugin's
// top-level window — or the root ID if nothing has been created yet.
func (t *windowTable) TopLevel() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.topLevelLocked()
}

func (t *windowTable) topLevelLocked() uint32 {
	if len(t.order) == 0 {
		return RootWindow
	}
	return t.order[0]
}

// Count returns the number of registered windows.
func (t *windowTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Windows returns the stacking order, bottom to top.
func (t *windowTable) Windows() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.order)
}

// Size returns a window's size.
func (t *windowTable) Size(wid uint32) (w, h int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sizes[wid]
	return s.W, s.H, ok
}

// Position returns a window's position relative to its parent.
func (t *windowTable) Position(wid uint32) (x, y int, parent uint32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[wid]
	return p.X, p.Y, p.Parent, ok
}

// SetSize stores a new size and reports whether it differs from the old
// one. ConfigureWindow only acts on real changes to avoid resize feedback
// loops.
func (t *windowTable) SetSize(wid uint32, w, h int) (finalW, finalH int, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sizes[wid]
	if !ok {
		return w, h, false
	}
	if w <= 0 {
		w = s.W
	}
	if h <= 0 {
		h = s.H
	}
	changed = w != s.W || h != s.H
	t.sizes[wid] = windowSize{w, h}
	return w, h, changed
}

// SetPosition stores a new position and reports whether it changed.
func (t *windowTable) SetPosition(wid uint32, hasX bool, x int, hasY bool, y int) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[wid]
	if !ok {
		return false
	}
	if hasX && p.X != x {
		p.X = x
		changed = true
	}
	if hasY && p.Y != y {
		p.Y = y
		changed = true
	}
	t.positions[wid] = p
	return changed
}

// SetEventMask records the CWEventMask attribute for a window.
func (t *windowTable) SetEventMask(wid uint32, mask uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eventMasks[wid] = mask
}

// AbsolutePos computes a window's offset in framebuffer coordinates by
// summing ancestor offsets up to (but not including) the top-level plugin
// window or the root.
func (t *windowTable) AbsolutePos(wid uint32) (x, y int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.absolutePosLocked(wid)
}

func (t *windowTable) absolutePosLocked(wid uint32) (x, y int) {
	cur := wid
	// Depth cap guards against a malformed parent cycle.
	for depth := 0; depth < 32; depth++ {
		p, ok := t.positions[cur]
		if !ok {
			break
		}
		x += p.X
		y += p.Y
		cur = p.Parent
		if len(t.order) > 0 && cur == t.order[0] {
			break
		}
		if cur == RootWindow || cur == 0 {
			break
		}
	}
	return x, y
}

// HitTest finds the deepest mapped window containing the point (in
// framebuffer coordinates) and the point in that window's local
// coordinates. Windows are walked in reverse creation order so the topmost
// match wins; the top-level plugin window is the fallback. Given a fixed
// registry the result is deterministic.
func (t *windowTable) HitTest(x, y int) HitResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	best := HitResult{t.topLevelLocked(), x, y}
	for i := len(t.order) - 1; i >= 1; i-- {
		wid := t.order[i]
		if _, hidden := t.unmapped[wid]; hidden {
			continue
		}
		s, ok := t.sizes[wid]
		if !ok {
			continue
		}
		if _, ok := t.positions[wid]; !ok {
			continue
		}
		wx, wy := t.absolutePosLocked(wid)
		if (rect{wx, wy, wx + s.W, wy + s.H}).contains(x, y) {
			return HitResult{wid, x - wx, y - wy}
		}
	}
	return best
}

// childClips returns the absolute bounds of every mapped child of parent.
// PutImage skips pixels inside these rectangles: on a real server child
// windows float above their parent, and with a single shared framebuffer
// the only way to simulate that is to keep parents from drawing over them.
func (t *windowTable) childClips(parent uint32) []rect {
	t.mu.Lock()
	defer t.mu.Unlock()
	var clips []rect
	for cw, p := range t.positions {
		if p.Parent != parent {
			continue
		}
		if _, hidden := t.unmapped[cw]; hidden {
			continue
		}
		s, ok := t.sizes[cw]
		if !ok {
			continue
		}
		cx, cy := t.absolutePosLocked(cw)
		clips = append(clips, rect{cx, cy, cx + s.W, cy + s.H})
	}
	return clips
}
