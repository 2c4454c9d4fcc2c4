package x11

import (
	"io"

	"github.com/pkg/errors"

	"plugview/internal/wire"
)

const (
	resourceIDBase = 0x00200000
	resourceIDMask = 0x001FFFFF

	setupReplyLen = 120
)

// readSetupRequest consumes the client's 12-byte connection prelude plus
// the authorization strings it advertises (the data itself is ignored; the
// server trusts anything on its loopback socket) and returns the byte
// order every subsequent request and reply will use.
func readSetupRequest(r io.Reader) (wire.ByteOrder, error) {
	var prelude [12]byte
	if _, err := io.ReadFull(r, prelude[:]); err != nil {
		return wire.LSBFirst, errors.Wrap(err, "read setup prelude")
	}
	var order wire.ByteOrder
	switch prelude[0] {
	case wire.OrderMSBFirst:
		order = wire.MSBFirst
	case wire.OrderLSBFirst:
		order = wire.LSBFirst
	default:
		return wire.LSBFirst, errors.Errorf("bad byte-order marker 0x%02x", prelude[0])
	}
	authNameLen := int(order.Get16(prelude[:], 6))
	authDataLen := int(order.Get16(prelude[:], 8))
	skip := wire.Pad4(authNameLen) + wire.Pad4(authDataLen)
	if skip > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(skip)); err != nil {
			return order, errors.Wrap(err, "skip auth strings")
		}
	}
	return order, nil
}

// buildSetupReply encodes the connection-accept reply: one screen, one
// 24-bit TrueColor visual, one depth-24/32bpp pixmap format and no vendor
// string. The image and bitmap byte orders mirror the client's so it never
// has to swap pixel data.
func buildSetupReply(order wire.ByteOrder, screenW, screenH int) []byte {
	b := make([]byte, setupReplyLen)
	b[0] = connectionAccepted
	order.Put16(b, 2, protocolMajor)
	order.Put16(b, 4, protocolMinor)
	order.Put16(b, 6, (setupReplyLen-8)/4)

	order.Put32(b, 8, 1) // release number
	order.Put32(b, 12, resourceIDBase)
	order.Put32(b, 16, resourceIDMask)
	order.Put32(b, 20, 256) // motion buffer size
	order.Put16(b, 24, 0)   // vendor length
	order.Put16(b, 26, 32767)
	b[28] = 1 // screens
	b[29] = 1 // pixmap formats
	imageOrder := byte(0)
	if order == wire.MSBFirst {
		imageOrder = 1
	}
	b[30] = imageOrder // image byte order
	b[31] = imageOrder // bitmap bit order
	b[32] = 8          // bitmap scanline unit
	b[33] = 8          // bitmap scanline pad
	b[34] = 8          // min keycode
	b[35] = 255        // max keycode

	// Pixmap format.
	b[40] = 24 // depth
	b[41] = 32 // bits per pixel
	b[42] = 32 // scanline pad

	// Screen.
	s := 48
	order.Put32(b, s+0, RootWindow)
	order.Put32(b, s+4, defaultColormap)
	order.Put32(b, s+8, whitePixel)
	order.Put32(b, s+12, blackPixel)
	order.Put32(b, s+16, 0) // current input masks
	order.Put16(b, s+20, uint16(screenW))
	order.Put16(b, s+22, uint16(screenH))
	order.Put16(b, s+24, uint16(screenW*254/960)) // mm at ~96 dpi
	order.Put16(b, s+26, uint16(screenH*254/960))
	order.Put16(b, s+28, 1) // min installed maps
	order.Put16(b, s+30, 1) // max installed maps
	order.Put32(b, s+32, defaultVisual)
	b[s+36] = 0 // backing stores: never
	b[s+37] = 0 // save unders
	b[s+38] = 24
	b[s+39] = 1 // depths

	// Depth 24 with a single visual.
	d := 88
	b[d] = 24
	order.Put16(b, d+2, 1)

	// TrueColor visual.
	v := 96
	order.Put32(b, v+0, defaultVisual)
	b[v+4] = 4 // TrueColor
	b[v+5] = 8 // bits per rgb value
	order.Put16(b, v+6, 256)
	order.Put32(b, v+8, 0x00FF0000)
	order.Put32(b, v+12, 0x0000FF00)
	order.Put32(b, v+16, 0x000000FF)
	return b
}
