package x11

import (
	"testing"
	"time"
)

func TestTouchMoveCoalescing(t *testing.T) {
	ts := newTouchState()
	ts.Enqueue(TouchEvent{TouchDown, 10, 10})
	ts.Enqueue(TouchEvent{TouchMove, 11, 11})
	ts.Enqueue(TouchEvent{TouchMove, 12, 12})
	ts.Enqueue(TouchEvent{TouchMove, 13, 13})
	ts.Enqueue(TouchEvent{TouchUp, 13, 13})

	got := ts.Drain()
	if len(got) != 3 {
		t.Fatalf("drained %d events, want 3 (moves coalesced)", len(got))
	}
	if got[1].Action != TouchMove || got[1].X != 13 {
		t.Fatalf("coalesced move = %+v, want latest position", got[1])
	}
	if len(ts.Drain()) != 0 {
		t.Fatal("second drain returned events")
	}
}

func TestTouchMoveCoalescingStopsAtBoundary(t *testing.T) {
	ts := newTouchState()
	ts.Enqueue(TouchEvent{TouchMove, 1, 1})
	ts.Enqueue(TouchEvent{TouchUp, 1, 1})
	ts.Enqueue(TouchEvent{TouchMove, 2, 2})

	got := ts.Drain()
	if len(got) != 3 {
		t.Fatalf("drained %d events, want 3 (up breaks the run)", len(got))
	}
}

func TestTouchGrabLifecycle(t *testing.T) {
	ts := newTouchState()
	if _, ok := ts.grab(); ok {
		t.Fatal("fresh state reports a grab")
	}
	ts.beginGrab(101)
	if win, ok := ts.grab(); !ok || win != 101 {
		t.Fatalf("grab = %d ok=%v", win, ok)
	}
	ts.endGrab()
	if _, ok := ts.grab(); ok {
		t.Fatal("grab survived endGrab")
	}
}

func TestTouchDragFlushRateLimit(t *testing.T) {
	ts := newTouchState()
	now := time.Now()
	if !ts.shouldFlushDrag(now) {
		t.Fatal("first flush denied")
	}
	if ts.shouldFlushDrag(now.Add(time.Millisecond)) {
		t.Fatal("flush allowed inside the interval")
	}
	if !ts.shouldFlushDrag(now.Add(minDragFlushInterval + time.Millisecond)) {
		t.Fatal("flush denied after the interval")
	}
}
