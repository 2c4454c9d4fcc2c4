package x11

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"plugview/internal/log"
	"plugview/internal/wire"
)

// Test displays start high enough that the ports cannot collide with a
// real X server on the machine running the tests.
const testDisplayBase = 9100

func startTestServer(t *testing.T, display int) *Server {
	t.Helper()
	s := NewServer(display, log.NewDiscardLogger())
	if err := s.Listen(); err != nil {
		t.Fatalf("listen: %s", err)
	}
	go s.Serve()
	t.Cleanup(s.Close)
	return s
}

// testClient drives the server over a raw TCP connection, building
// requests byte by byte the way a client library would.
type testClient struct {
	t     *testing.T
	nc    net.Conn
	order wire.ByteOrder
	seq   uint16
}

func dialTest(t *testing.T, display int, order wire.ByteOrder) *testClient {
	t.Helper()
	nc, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", basePort+display))
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	t.Cleanup(func() { nc.Close() })
	return &testClient{t: t, nc: nc, order: order}
}

// handshake sends the setup prelude and returns the raw accept reply.
func (c *testClient) handshake() []byte {
	c.t.Helper()
	prelude := make([]byte, 12)
	if c.order == wire.MSBFirst {
		prelude[0] = wire.OrderMSBFirst
	} else {
		prelude[0] = wire.OrderLSBFirst
	}
	c.order.Put16(prelude, 2, 11)
	if _, err := c.nc.Write(prelude); err != nil {
		c.t.Fatalf("write prelude: %s", err)
	}
	head := c.readFull(8)
	if head[0] != 1 {
		c.t.Fatalf("connection refused, status %d", head[0])
	}
	rest := c.readFull(int(c.order.Get16(head, 6)) * 4)
	return append(head, rest...)
}

func (c *testClient) readFull(n int) []byte {
	c.t.Helper()
	buf := make([]byte, n)
	c.nc.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.ReadFull(c.nc, buf); err != nil {
		c.t.Fatalf("read %d bytes: %s", n, err)
	}
	return buf
}

// read32 reads one 32-byte event or reply header.
func (c *testClient) read32() []byte {
	return c.readFull(32)
}

// send writes one request (header plus body) and bumps the local sequence
// counter to mirror the server's.
func (c *testClient) send(opcode, data byte, body []byte) {
	c.t.Helper()
	if len(body)%4 != 0 {
		c.t.Fatalf("request body length %d not padded", len(body))
	}
	req := make([]byte, 4+len(body))
	req[0] = opcode
	req[1] = data
	c.order.Put16(req, 2, uint16(1+len(body)/4))
	copy(req[4:], body)
	if _, err := c.nc.Write(req); err != nil {
		c.t.Fatalf("write request: %s", err)
	}
	c.seq++
}

func (c *testClient) createWindow(wid, parent uint32, x, y, w, h int) {
	body := make([]byte, 28)
	c.order.Put32(body, 0, wid)
	c.order.Put32(body, 4, parent)
	c.order.Put16(body, 8, uint16(int16(x)))
	c.order.Put16(body, 10, uint16(int16(y)))
	c.order.Put16(body, 12, uint16(w))
	c.order.Put16(body, 14, uint16(h))
	c.order.Put16(body, 18, 1) // InputOutput
	c.order.Put32(body, 20, defaultVisual)
	c.send(opCreateWindow, 24, body)
}

func (c *testClient) mapWindow(wid uint32) {
	body := make([]byte, 4)
	c.order.Put32(body, 0, wid)
	c.send(opMapWindow, 0, body)
}

func (c *testClient) configureWindowSize(wid uint32, w, h int) {
	body := make([]byte, 16)
	c.order.Put32(body, 0, wid)
	c.order.Put16(body, 4, cwWidth|cwHeight)
	c.order.Put32(body, 8, uint32(w))
	c.order.Put32(body, 12, uint32(h))
	c.send(opConfigureWindow, 0, body)
}

func (c *testClient) putImage(drawable uint32, x, y, w, h int, pixels []byte) {
	body := make([]byte, 20+len(pixels))
	c.order.Put32(body, 0, drawable)
	c.order.Put32(body, 4, 0x22) // gc, ignored
	c.order.Put16(body, 8, uint16(w))
	c.order.Put16(body, 10, uint16(h))
	c.order.Put16(body, 12, uint16(int16(x)))
	c.order.Put16(body, 14, uint16(int16(y)))
	body[17] = 24 // depth
	copy(body[20:], pixels)
	c.send(opPutImage, 2, body) // ZPixmap
}

func (c *testClient) getImage(drawable uint32, x, y, w, h int) []byte {
	body := make([]byte, 16)
	c.order.Put32(body, 0, drawable)
	c.order.Put16(body, 4, uint16(int16(x)))
	c.order.Put16(body, 6, uint16(int16(y)))
	c.order.Put16(body, 8, uint16(w))
	c.order.Put16(body, 10, uint16(h))
	c.order.Put32(body, 12, 0xFFFFFFFF)
	c.send(opGetImage, 2, body)
	head := c.read32()
	if head[0] != 1 {
		c.t.Fatalf("GetImage reply type %d", head[0])
	}
	return c.readFull(int(c.order.Get32(head, 4)) * 4)
}

func (c *testClient) internAtom(name string) (seq uint16, atom uint32) {
	body := make([]byte, 4+wire.Pad4(len(name)))
	c.order.Put16(body, 0, uint16(len(name)))
	copy(body[4:], name)
	c.send(opInternAtom, 0, body)
	reply := c.read32()
	if reply[0] != 1 {
		c.t.Fatalf("InternAtom reply type %d", reply[0])
	}
	return c.order.Get16(reply, 2), c.order.Get32(reply, 8)
}

// expectNoData asserts nothing arrives within the window. Used to verify
// the no-reply rules.
func (c *testClient) expectNoData(d time.Duration) {
	c.t.Helper()
	c.nc.SetReadDeadline(time.Now().Add(d))
	buf := make([]byte, 1)
	n, err := c.nc.Read(buf)
	if n != 0 || err == nil {
		c.t.Fatalf("unexpected data from server: % x", buf[:n])
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		c.t.Fatalf("read: %s", err)
	}
}

// Scenario: an MSB-first client handshakes and creates its first window;
// the accept reply mirrors the byte order and an Expose arrives before
// anything else.
func TestServerSetupMSBFirst(t *testing.T) {
	startTestServer(t, testDisplayBase)
	c := dialTest(t, testDisplayBase, wire.MSBFirst)

	reply := c.handshake()
	if got := c.order.Get16(reply, 2); got != 11 {
		t.Fatalf("major version = %d in MSB order, reply byte order wrong", got)
	}
	if reply[34] != 8 || reply[35] != 255 {
		t.Fatalf("keycode range = %d..%d, want 8..255", reply[34], reply[35])
	}
	if reply[28] != 1 {
		t.Fatalf("screens = %d, want 1", reply[28])
	}

	c.createWindow(100, RootWindow, 0, 0, 400, 300)
	ev := c.read32()
	if ev[0] != evExpose {
		t.Fatalf("first event type = %d, want Expose", ev[0])
	}
	if win := c.order.Get32(ev, 4); win != 100 {
		t.Fatalf("Expose window = %d, want 100", win)
	}
	if w, h := c.order.Get16(ev, 12), c.order.Get16(ev, 14); w != 400 || h != 300 {
		t.Fatalf("Expose size = %dx%d, want 400x300", w, h)
	}
}

// Scenario: PutImage then GetImage of an overlapping region returns the
// written pixels (alpha forced opaque) and background elsewhere.
func TestServerImageRoundTrip(t *testing.T) {
	startTestServer(t, testDisplayBase+1)
	c := dialTest(t, testDisplayBase+1, wire.LSBFirst)
	c.handshake()

	c.createWindow(100, RootWindow, 0, 0, 400, 300)
	c.read32() // Expose

	// 10x10 opaque red at (5,5). LSB-first ZPixmap pixels are B,G,R,A.
	red := make([]byte, 10*10*4)
	for i := 0; i < len(red); i += 4 {
		red[i+2] = 0xFF
		red[i+3] = 0xFF
	}
	c.putImage(100, 5, 5, 10, 10, red)

	data := c.getImage(100, 0, 0, 20, 20)
	if len(data) != 20*20*4 {
		t.Fatalf("GetImage returned %d bytes, want %d", len(data), 20*20*4)
	}
	bg := []byte{0x20, 0x20, 0x30, 0xFF} // backgroundPixel, LSB-first
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			px := data[(y*20+x)*4 : (y*20+x)*4+4]
			inRed := x >= 5 && x < 15 && y >= 5 && y < 15
			if inRed {
				if px[0] != 0 || px[1] != 0 || px[2] != 0xFF || px[3] != 0xFF {
					t.Fatalf("pixel (%d,%d) = % x, want opaque red", x, y, px)
				}
			} else {
				for i := range bg {
					if px[i] != bg[i] {
						t.Fatalf("pixel (%d,%d) = % x, want background", x, y, px)
					}
				}
			}
		}
	}
}

// Scenario: a same-size ConfigureWindow emits nothing; a real resize emits
// exactly one ConfigureNotify and one Expose with the new size.
func TestServerConfigureWindowFeedback(t *testing.T) {
	startTestServer(t, testDisplayBase+2)
	c := dialTest(t, testDisplayBase+2, wire.LSBFirst)
	c.handshake()

	c.createWindow(100, RootWindow, 0, 0, 400, 300)
	c.read32() // Expose

	// Same size: no events. The next read must be the InternAtom reply.
	c.configureWindowSize(100, 400, 300)
	if _, atom := c.internAtom("NO_FEEDBACK"); atom == 0 {
		t.Fatal("InternAtom failed")
	}

	// Real resize: exactly ConfigureNotify then Expose, then the reply.
	c.configureWindowSize(100, 500, 400)
	ev := c.read32()
	if ev[0] != evConfigureNotify {
		t.Fatalf("event type = %d, want ConfigureNotify", ev[0])
	}
	if w, h := c.order.Get16(ev, 20), c.order.Get16(ev, 22); w != 500 || h != 400 {
		t.Fatalf("ConfigureNotify size = %dx%d, want 500x400", w, h)
	}
	ev = c.read32()
	if ev[0] != evExpose {
		t.Fatalf("event type = %d, want Expose", ev[0])
	}
	if w, h := c.order.Get16(ev, 12), c.order.Get16(ev, 14); w != 500 || h != 400 {
		t.Fatalf("Expose size = %dx%d, want 500x400", w, h)
	}
	c.internAtom("RESIZE_DONE")
}

// Scenario: an injected touch down lands on the deepest window under the
// point, preceded by a synthetic MotionNotify for hover state.
func TestServerTouchSynthesis(t *testing.T) {
	s := startTestServer(t, testDisplayBase+3)
	c := dialTest(t, testDisplayBase+3, wire.LSBFirst)
	c.handshake()

	c.createWindow(100, RootWindow, 0, 0, 400, 300)
	c.createWindow(101, 100, 20, 20, 100, 100)
	c.mapWindow(100)
	c.mapWindow(101)
	// Drain the Expose backlog (CreateWindow x2, MapWindow x2); once all
	// four are here, the maps are processed and hit testing sees both
	// windows.
	for i := 0; i < 4; i++ {
		if ev := c.read32(); ev[0] != evExpose {
			t.Fatalf("setup event %d type = %d, want Expose", i, ev[0])
		}
	}

	s.InjectTouch(TouchDown, 50, 50)
	ev := c.read32()
	if ev[0] != evMotionNotify {
		t.Fatalf("first touch event = %d, want MotionNotify", ev[0])
	}
	if win := c.order.Get32(ev, 12); win != 101 {
		t.Fatalf("MotionNotify window = %d, want 101", win)
	}
	ev = c.read32()
	if ev[0] != evButtonPress || ev[1] != 1 {
		t.Fatalf("second touch event = %d detail=%d, want ButtonPress button 1", ev[0], ev[1])
	}
	if win := c.order.Get32(ev, 12); win != 101 {
		t.Fatalf("ButtonPress window = %d, want 101", win)
	}
	if x, y := c.order.Get16(ev, 24), c.order.Get16(ev, 26); x != 30 || y != 30 {
		t.Fatalf("ButtonPress local coords = (%d,%d), want (30,30)", x, y)
	}

	s.InjectTouch(TouchUp, 55, 55)
	for {
		ev = c.read32()
		if ev[0] == evButtonRelease {
			break
		}
		if ev[0] != evMotionNotify {
			t.Fatalf("unexpected event %d before ButtonRelease", ev[0])
		}
	}
	// Release routes to the grab window even though the point moved.
	if win := c.order.Get32(ev, 12); win != 101 {
		t.Fatalf("ButtonRelease window = %d, want 101 (grabbed)", win)
	}
}

// Reply sequence numbers are monotonic and equal the request's own
// sequence number, counting every request, replied-to or not.
func TestServerReplySequenceNumbers(t *testing.T) {
	startTestServer(t, testDisplayBase+4)
	c := dialTest(t, testDisplayBase+4, wire.LSBFirst)
	c.handshake()

	seq, _ := c.internAtom("FIRST")
	if seq != 1 {
		t.Fatalf("first reply seq = %d, want 1", seq)
	}
	// A void request consumes a sequence number without a reply.
	c.createWindow(100, RootWindow, 0, 0, 64, 64)
	c.read32() // Expose
	seq, _ = c.internAtom("SECOND")
	if seq != 3 {
		t.Fatalf("reply seq after void request = %d, want 3", seq)
	}
	last := seq
	for i := 0; i < 5; i++ {
		seq, _ = c.internAtom(fmt.Sprintf("ATOM%d", i))
		if seq != last+1 {
			t.Fatalf("reply seq = %d, want %d", seq, last+1)
		}
		last = seq
	}
}

// Unknown opcodes and void requests produce no reply; the connection stays
// in sync for the next real request.
func TestServerNoReplyForUnknownOpcode(t *testing.T) {
	startTestServer(t, testDisplayBase+5)
	c := dialTest(t, testDisplayBase+5, wire.LSBFirst)
	c.handshake()

	c.send(121, 0, nil) // not an advertised opcode
	c.send(opCreateGC, 0, make([]byte, 12))
	c.expectNoData(150 * time.Millisecond)

	seq, atom := c.internAtom("STILL_ALIVE")
	if atom == 0 {
		t.Fatal("InternAtom failed after ignored opcodes")
	}
	if seq != 3 {
		t.Fatalf("reply seq = %d, want 3 (ignored requests still count)", seq)
	}
}

// A BigRequests-style length-zero header skips the oversized body without
// desynchronizing the stream.
func TestServerBigRequestSkipped(t *testing.T) {
	startTestServer(t, testDisplayBase+6)
	c := dialTest(t, testDisplayBase+6, wire.LSBFirst)
	c.handshake()

	payloadWords := 16
	req := make([]byte, 8+payloadWords*4)
	req[0] = opPutImage
	c.order.Put16(req, 2, 0) // BigRequests escape
	c.order.Put32(req, 4, uint32(2+payloadWords))
	if _, err := c.nc.Write(req); err != nil {
		t.Fatalf("write: %s", err)
	}
	c.seq++

	seq, atom := c.internAtom("AFTER_BIG")
	if atom == 0 {
		t.Fatal("InternAtom failed after big request")
	}
	if seq != 2 {
		t.Fatalf("reply seq = %d, want 2", seq)
	}
}

// GLX is advertised and every GLX round trip gets a reply, known
// sub-opcode or not.
func TestServerGLXQueries(t *testing.T) {
	startTestServer(t, testDisplayBase+7)
	c := dialTest(t, testDisplayBase+7, wire.LSBFirst)
	c.handshake()

	// QueryExtension "GLX" -> present, major opcode 128.
	body := make([]byte, 8)
	c.order.Put16(body, 0, 3)
	copy(body[4:], "GLX")
	c.send(opQueryExtension, 0, body)
	reply := c.read32()
	if reply[8] != 1 || reply[9] != opGLX {
		t.Fatalf("QueryExtension GLX: present=%d opcode=%d", reply[8], reply[9])
	}

	// GLX QueryVersion.
	body = make([]byte, 8)
	c.order.Put32(body, 0, 1)
	c.order.Put32(body, 4, 4)
	c.send(opGLX, glxQueryVersion, body)
	reply = c.read32()
	if major := c.order.Get32(reply, 8); major != 1 {
		t.Fatalf("GLX major = %d, want 1", major)
	}

	// IsDirect must come back false.
	body = make([]byte, 4)
	c.send(opGLX, glxIsDirect, body)
	reply = c.read32()
	if reply[8] != 0 {
		t.Fatal("GLX IsDirect reported a direct context")
	}

	// Unknown sub-opcode with the reply bit: generic empty reply, no hang.
	c.send(opGLX, 42, make([]byte, 4))
	reply = c.read32()
	if reply[0] != 1 {
		t.Fatalf("generic GLX reply type = %d", reply[0])
	}
}

// A PutImage too short to carry even its fixed part consumes exactly its
// declared length; the next request still parses.
func TestServerShortPutImageKeepsStream(t *testing.T) {
	startTestServer(t, testDisplayBase+9)
	c := dialTest(t, testDisplayBase+9, wire.LSBFirst)
	c.handshake()

	c.send(opPutImage, 2, make([]byte, 8)) // 3 words, fixed part needs 6
	c.expectNoData(150 * time.Millisecond)

	seq, atom := c.internAtom("STREAM_OK")
	if atom == 0 {
		t.Fatal("InternAtom failed after short PutImage")
	}
	if seq != 2 {
		t.Fatalf("reply seq = %d, want 2", seq)
	}
}

// A GetImage region far beyond the drawable is clamped instead of sizing
// the reply buffer from the wire.
func TestServerGetImageOversizedRegion(t *testing.T) {
	startTestServer(t, testDisplayBase+10)
	c := dialTest(t, testDisplayBase+10, wire.LSBFirst)
	c.handshake()

	c.createWindow(100, RootWindow, 0, 0, 64, 64)
	c.read32() // Expose

	data := c.getImage(100, 0, 0, 65535, 65535)
	if len(data) != 64*64*4 {
		t.Fatalf("oversized GetImage returned %d bytes, want %d", len(data), 64*64*4)
	}
}

// Teardown DestroyNotify events must not consume request sequence numbers.
func TestTeardownEventsKeepRequestSequence(t *testing.T) {
	s := NewServer(testDisplayBase+11, log.NewDiscardLogger())
	s.windows.Create(100, RootWindow, 0, 0, 64, 64)
	s.windows.Create(101, 100, 0, 0, 16, 16)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	c := &clientConn{srv: s, nc: server, order: wire.LSBFirst, seq: 7}

	read := make(chan []byte, 2)
	go func() {
		for i := 0; i < 2; i++ {
			buf := make([]byte, 32)
			if _, err := io.ReadFull(client, buf); err != nil {
				return
			}
			read <- buf
		}
	}()

	c.sendDestroyNotifyAll()
	for i := 0; i < 2; i++ {
		select {
		case ev := <-read:
			if ev[0] != evDestroyNotify {
				t.Fatalf("event %d type = %d, want DestroyNotify", i, ev[0])
			}
		case <-time.After(5 * time.Second):
			t.Fatal("DestroyNotify never arrived")
		}
	}
	if c.seq != 7 {
		t.Fatalf("request sequence moved to %d during teardown events", c.seq)
	}
}

// A pixmap is an independent drawable: drawing into it does not touch the
// window framebuffer until CopyArea brings it over.
func TestServerPixmapCopyArea(t *testing.T) {
	startTestServer(t, testDisplayBase+8)
	c := dialTest(t, testDisplayBase+8, wire.LSBFirst)
	c.handshake()

	c.createWindow(100, RootWindow, 0, 0, 64, 64)
	c.read32() // Expose

	// CreatePixmap 16x16.
	body := make([]byte, 12)
	c.order.Put32(body, 0, 200)
	c.order.Put32(body, 4, 100)
	c.order.Put16(body, 8, 16)
	c.order.Put16(body, 10, 16)
	c.send(opCreatePixmap, 24, body)

	green := make([]byte, 16*16*4)
	for i := 0; i < len(green); i += 4 {
		green[i+1] = 0xFF
		green[i+3] = 0xFF
	}
	c.putImage(200, 0, 0, 16, 16, green)

	// Window still shows background where the copy will land.
	before := c.getImage(100, 8, 8, 1, 1)
	if before[1] == 0xFF {
		t.Fatal("pixmap write leaked into the framebuffer")
	}

	// CopyArea pixmap -> window at (8,8).
	body = make([]byte, 24)
	c.order.Put32(body, 0, 200)
	c.order.Put32(body, 4, 100)
	c.order.Put16(body, 16, 8)
	c.order.Put16(body, 18, 8)
	c.order.Put16(body, 20, 16)
	c.order.Put16(body, 22, 16)
	c.send(opCopyArea, 0, body)

	after := c.getImage(100, 8, 8, 16, 16)
	for i := 0; i < len(after); i += 4 {
		if after[i+1] != 0xFF {
			t.Fatalf("pixel %d after CopyArea = % x, want green", i/4, after[i:i+4])
		}
	}
}
