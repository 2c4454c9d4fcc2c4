// Package wire provides byte-order aware field readers and writers for the
// X11 wire protocol. Every connection negotiates its byte order in the
// initial setup request (0x42 = MSB first, 0x6c = LSB first) and all
// request, reply and event fields after that point honor it.
package wire

// ByteOrder is the byte order negotiated at connection setup.
type ByteOrder bool

const (
	LSBFirst ByteOrder = false
	MSBFirst ByteOrder = true
)

// Setup-request byte-order markers.
const (
	OrderMSBFirst = 0x42
	OrderLSBFirst = 0x6c
)

func (o ByteOrder) String() string {
	if o == MSBFirst {
		return "MSB first"
	}
	return "LSB first"
}

// Get16 reads a 16-bit field at off.
func (o ByteOrder) Get16(p []byte, off int) uint16 {
	if o == MSBFirst {
		return uint16(p[off])<<8 | uint16(p[off+1])
	}
	return uint16(p[off]) | uint16(p[off+1])<<8
}

// Get32 reads a 32-bit field at off.
func (o ByteOrder) Get32(p []byte, off int) uint32 {
	if o == MSBFirst {
		return uint32(p[off])<<24 | uint32(p[off+1])<<16 |
			uint32(p[off+2])<<8 | uint32(p[off+3])
	}
	return uint32(p[off]) | uint32(p[off+1])<<8 |
		uint32(p[off+2])<<16 | uint32(p[off+3])<<24
}

// Put16 writes a 16-bit field at off.
func (o ByteOrder) Put16(p []byte, off int, v uint16) {
	if o == MSBFirst {
		p[off] = byte(v >> 8)
		p[off+1] = byte(v)
	} else {
		p[off] = byte(v)
		p[off+1] = byte(v >> 8)
	}
}

// Put32 writes a 32-bit field at off.
func (o ByteOrder) Put32(p []byte, off int, v uint32) {
	if o == MSBFirst {
		p[off] = byte(v >> 24)
		p[off+1] = byte(v >> 16)
		p[off+2] = byte(v >> 8)
		p[off+3] = byte(v)
	} else {
		p[off] = byte(v)
		p[off+1] = byte(v >> 8)
		p[off+2] = byte(v >> 16)
		p[off+3] = byte(v >> 24)
	}
}

// Pad4 returns n rounded up to the next multiple of 4. Strings and other
// variable-length fields are padded to 4-byte boundaries on the wire.
func Pad4(n int) int {
	return (n + 3) &^ 3
}
