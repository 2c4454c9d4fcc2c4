package wire_test

import (
	"testing"

	"plugview/internal/wire"
)

func TestGetPut16(t *testing.T) {
	buf := make([]byte, 4)
	wire.MSBFirst.Put16(buf, 0, 0xbeef)
	if buf[0] != 0xbe || buf[1] != 0xef {
		t.Fatalf("MSB Put16 wrote % x", buf[:2])
	}
	if got := wire.MSBFirst.Get16(buf, 0); got != 0xbeef {
		t.Fatalf("MSB Get16 returned %#x", got)
	}
	wire.LSBFirst.Put16(buf, 2, 0xbeef)
	if buf[2] != 0xef || buf[3] != 0xbe {
		t.Fatalf("LSB Put16 wrote % x", buf[2:])
	}
	if got := wire.LSBFirst.Get16(buf, 2); got != 0xbeef {
		t.Fatalf("LSB Get16 returned %#x", got)
	}
}

func TestGetPut32(t *testing.T) {
	buf := make([]byte, 8)
	wire.MSBFirst.Put32(buf, 0, 0xdeadbeef)
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("MSB Put32 wrote % x", buf[:4])
		}
	}
	if got := wire.MSBFirst.Get32(buf, 0); got != 0xdeadbeef {
		t.Fatalf("MSB Get32 returned %#x", got)
	}
	wire.LSBFirst.Put32(buf, 4, 0xdeadbeef)
	if got := wire.LSBFirst.Get32(buf, 4); got != 0xdeadbeef {
		t.Fatalf("LSB Get32 returned %#x", got)
	}
	if buf[4] != 0xef {
		t.Fatalf("LSB Put32 wrote % x", buf[4:])
	}
}

func TestSignedFields(t *testing.T) {
	// Negative window coordinates travel as two's complement 16-bit values.
	buf := make([]byte, 2)
	v := int16(-7)
	wire.LSBFirst.Put16(buf, 0, uint16(v))
	if got := int16(wire.LSBFirst.Get16(buf, 0)); got != -7 {
		t.Fatalf("signed round trip returned %d", got)
	}
}

func TestPad4(t *testing.T) {
	cases := map[int]int{0: 0, 1: 4, 3: 4, 4: 4, 5: 8, 11: 12}
	for in, want := range cases {
		if got := wire.Pad4(in); got != want {
			t.Errorf("Pad4(%d) = %d, want %d", in, got, want)
		}
	}
}
