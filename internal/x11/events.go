package x11

import "plugview/internal/wire"

// newReply allocates a reply of 32+4*extraWords bytes with the success
// code, sequence number and length field filled in. Callers set the
// data byte and body fields through the returned slice.
func newReply(order wire.ByteOrder, seq uint16, extraWords int) []byte {
	b := make([]byte, 32+4*extraWords)
	b[0] = 1
	order.Put16(b, 2, seq)
	order.Put32(b, 4, uint32(extraWords))
	return b
}

// Events are all 32 bytes. The sequence field carries the sequence number
// of the last reply the server sent, matching what a real server reports
// for asynchronous events.

func encodeExpose(order wire.ByteOrder, seq uint16, window uint32, x, y, w, h int) []byte {
	b := make([]byte, 32)
	b[0] = evExpose
	order.Put16(b, 2, seq)
	order.Put32(b, 4, window)
	order.Put16(b, 8, uint16(x))
	order.Put16(b, 10, uint16(y))
	order.Put16(b, 12, uint16(w))
	order.Put16(b, 14, uint16(h))
	order.Put16(b, 16, 0) // count
	return b
}

func encodeConfigureNotify(order wire.ByteOrder, seq uint16, window uint32, x, y, w, h int) []byte {
	b := make([]byte, 32)
	b[0] = evConfigureNotify
	order.Put16(b, 2, seq)
	order.Put32(b, 4, window) // event
	order.Put32(b, 8, window)
	order.Put32(b, 12, 0) // above sibling
	order.Put16(b, 16, uint16(x))
	order.Put16(b, 18, uint16(y))
	order.Put16(b, 20, uint16(w))
	order.Put16(b, 22, uint16(h))
	order.Put16(b, 24, 0) // border width
	b[26] = 0             // override redirect
	return b
}

func encodeDestroyNotify(order wire.ByteOrder, seq uint16, window uint32) []byte {
	b := make([]byte, 32)
	b[0] = evDestroyNotify
	order.Put16(b, 2, seq)
	order.Put32(b, 4, window) // event
	order.Put32(b, 8, window)
	return b
}

// encodePointerEvent covers ButtonPress, ButtonRelease and MotionNotify,
// which share a layout. detail is the button number (or 0 for motion) and
// state the modifier/button mask in effect before the event.
func encodePointerEvent(order wire.ByteOrder, evType, detail byte, seq uint16, timestamp uint32, window uint32, rootX, rootY, eventX, eventY int, state uint16) []byte {
	b := make([]byte, 32)
	b[0] = evType
	b[1] = detail
	order.Put16(b, 2, seq)
	order.Put32(b, 4, timestamp)
	order.Put32(b, 8, RootWindow)
	order.Put32(b, 12, window)
	order.Put32(b, 16, 0) // child
	order.Put16(b, 20, uint16(rootX))
	order.Put16(b, 22, uint16(rootY))
	order.Put16(b, 24, uint16(eventX))
	order.Put16(b, 26, uint16(eventY))
	order.Put16(b, 28, state)
	b[30] = 1 // same screen
	return b
}
