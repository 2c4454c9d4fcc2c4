package x11

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"plugview/internal/log"
	"plugview/internal/wire"
)

// basePort is the conventional X11 TCP port base: display :N listens on
// 6000+N. The plugin's Xlib/XCB resolves DISPLAY=127.0.0.1:N to the same
// port, so this must not change.
const basePort = 6000

// socketBufSize enlarges the kernel buffers so multi-megabyte GetImage
// replies do not stall the request loop.
const socketBufSize = 8 * 1024 * 1024

// pollInterval bounds how long a socket read blocks before the loop gets a
// chance to drain queued touch input.
const pollInterval = 2 * time.Millisecond

// gracePeriod is how long a closing server waits for the client to
// disconnect after DestroyNotify before forcing the socket shut.
const gracePeriod = 2 * time.Second

// maxRequestBody caps how much of a single request body is buffered.
// Anything beyond it is read and discarded to keep the stream in sync.
const maxRequestBody = 64 * 1024

// Server is a single-client X11 display server bound to TCP loopback.
// One goroutine (Serve) owns the socket, the protocol state and all the
// registries; other goroutines interact only through the touch queue, the
// framebuffer snapshot API and atomic flags.
type Server struct {
	display int
	log     *log.Logger

	windows *windowTable
	atoms   *atomTable
	fb      *framebuffer
	touch   *touchState

	ln         net.Listener
	quit       atomic.Bool
	closing    atomic.Bool
	closeStart atomic.Int64
	connActive atomic.Bool

	connMu sync.Mutex
	conn   *clientConn

	// lastReplySeq is the sequence number of the last reply sent; events
	// report it so the client's sequence tracking stays consistent.
	lastReplySeq atomic.Uint32

	uiScale atomic.Uint64

	// naturalW/H remember the first window's size. GetGeometry on the
	// root reports this (scaled) rather than the current size, which
	// would otherwise feed back through the plugin's resize handler and
	// shrink the window a little on every pass.
	naturalW atomic.Int64
	naturalH atomic.Int64
}

// clientConn is the per-connection protocol state.
type clientConn struct {
	srv   *Server
	nc    net.Conn
	br    *bufio.Reader
	order wire.ByteOrder

	writeMu sync.Mutex

	seq         uint16
	destroySent bool

	hasPendingDrag     bool
	dragX, dragY       int
	putScratch         []byte
	seenOpcode         map[byte]bool
	warnedUnhandled    map[byte]bool
	warnedUnhandledGLX map[byte]bool
}

// NewServer creates a server for DISPLAY=127.0.0.1:display.
func NewServer(display int, logger *log.Logger) *Server {
	s := &Server{
		display: display,
		log:     logger,
		windows: newWindowTable(),
		atoms:   newAtomTable(),
		fb:      newFramebuffer(),
		touch:   newTouchState(),
	}
	s.uiScale.Store(math.Float64bits(1.0))
	return s
}

// Display returns the display number.
func (s *Server) Display() int {
	return s.display
}

// DisplayString returns the value the plugin's DISPLAY variable must hold.
func (s *Server) DisplayString() string {
	return fmt.Sprintf("127.0.0.1:%d", s.display)
}

// Listen binds the loopback socket. Always TCP: bundled XCB builds on the
// target platform do not support abstract Unix sockets and the filesystem
// /tmp/.X11-unix path does not exist there.
func (s *Server) Listen() error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var soErr error
			err := c.Control(func(fd uintptr) {
				soErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return soErr
		},
	}
	addr := fmt.Sprintf("127.0.0.1:%d", basePort+s.display)
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	s.ln = ln
	s.log.Info("x11: listening on %s (display :%d)", addr, s.display)
	return nil
}

// Serve accepts and handles one client at a time until Close. Blocking;
// run it on its own goroutine.
func (s *Server) Serve() {
	for !s.quit.Load() {
		nc, err := s.ln.Accept()
		if err != nil {
			if !s.quit.Load() {
				s.log.Error("x11: accept: %s", err)
			}
			return
		}
		if s.quit.Load() {
			nc.Close()
			return
		}
		s.handleClient(nc)
	}
}

func setClientSockopts(nc net.Conn) {
	tc, ok := nc.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, socketBufSize)
		unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, socketBufSize)
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
}

func (s *Server) handleClient(nc net.Conn) {
	defer nc.Close()
	setClientSockopts(nc)
	s.log.Info("x11: client connected from %s", nc.RemoteAddr())

	// A fresh client starts from clean registries: window IDs from a
	// previous connection mean nothing to it.
	s.windows.reset()
	s.touch.Reset()
	s.lastReplySeq.Store(0)

	br := bufio.NewReaderSize(nc, 64*1024)
	order, err := readSetupRequest(br)
	if err != nil {
		s.log.Error("x11: handshake: %s", err)
		return
	}
	screenW, screenH := s.fb.Size()
	if screenW == 0 {
		screenW, screenH = 1280, 720
	}
	if _, err := nc.Write(buildSetupReply(order, screenW, screenH)); err != nil {
		s.log.Error("x11: send setup reply: %s", err)
		return
	}
	s.log.Info("x11: handshake done, byte order %s", order)

	c := &clientConn{
		srv:                s,
		nc:                 nc,
		br:                 br,
		order:              order,
		seenOpcode:         make(map[byte]bool),
		warnedUnhandled:    make(map[byte]bool),
		warnedUnhandledGLX: make(map[byte]bool),
	}
	s.connMu.Lock()
	s.conn = c
	s.connMu.Unlock()
	s.connActive.Store(true)
	defer func() {
		s.connActive.Store(false)
		s.connMu.Lock()
		s.conn = nil
		s.connMu.Unlock()
		s.log.Info("x11: client disconnected")
	}()

	c.requestLoop()
}

// requestLoop alternates between draining touch input and processing
// requests, with a short read timeout standing in for poll(2). The loop
// goroutine owns every piece of protocol state; nothing else writes the
// socket except through the conn's write lock.
func (c *clientConn) requestLoop() {
	s := c.srv
	for !s.quit.Load() {
		if s.closing.Load() {
			if !c.destroySent {
				c.sendDestroyNotifyAll()
				c.destroySent = true
			}
			start := time.Unix(0, s.closeStart.Load())
			if time.Since(start) > gracePeriod {
				s.log.Info("x11: teardown grace period elapsed, closing client")
				return
			}
			// Watch for the client hanging up on its own.
			c.nc.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
			if _, err := c.br.Peek(1); err != nil && !isTimeout(err) {
				return
			}
			continue
		}

		c.drainTouch()

		c.nc.SetReadDeadline(time.Now().Add(pollInterval))
		if _, err := c.br.Peek(1); err != nil {
			if isTimeout(err) {
				continue
			}
			if err != io.EOF {
				s.log.Debug("x11: read: %s", err)
			}
			return
		}
		c.nc.SetReadDeadline(time.Time{})

		var hdr [4]byte
		if _, err := io.ReadFull(c.br, hdr[:]); err != nil {
			s.log.Debug("x11: read request header: %s", err)
			return
		}
		opcode := hdr[0]
		data := hdr[1]
		length := c.order.Get16(hdr[:], 2)

		// BigRequests escape: length 0 means a 32-bit length follows.
		// The extension is never advertised, so this only defends
		// against a confused client; skip the request but keep the
		// sequence numbering intact.
		if length == 0 {
			var ext [4]byte
			if _, err := io.ReadFull(c.br, ext[:]); err != nil {
				return
			}
			bigLength := c.order.Get32(ext[:], 0)
			s.log.Warn("x11: big request opcode=%d length=%d, skipping", opcode, bigLength)
			if bigLength > 2 {
				if _, err := io.CopyN(io.Discard, c.br, int64(bigLength-2)*4); err != nil {
					return
				}
			}
			c.seq++
			continue
		}

		c.seq++
		if !c.seenOpcode[opcode] {
			c.seenOpcode[opcode] = true
			s.log.Debug("x11: first request opcode=%d %s length=%d seq=%d",
				opcode, opcodeName(opcode), length, c.seq)
		}

		if opcode == opPutImage {
			if !c.handlePutImage(int(length)) {
				return
			}
			c.drainTouch()
			continue
		}

		body, ok := c.readBody(int(length))
		if !ok {
			return
		}
		c.dispatch(opcode, data, body)
	}
}

// readBody reads the (length-1)*4 byte request body, discarding anything
// beyond the buffering cap so a corrupt length cannot force a huge
// allocation or desynchronize the stream.
func (c *clientConn) readBody(length int) ([]byte, bool) {
	extra := (length - 1) * 4
	if extra <= 0 {
		return nil, true
	}
	take := extra
	if take > maxRequestBody {
		take = maxRequestBody
	}
	body := make([]byte, take)
	if _, err := io.ReadFull(c.br, body); err != nil {
		return nil, false
	}
	if extra > take {
		if _, err := io.CopyN(io.Discard, c.br, int64(extra-take)); err != nil {
			return nil, false
		}
	}
	return body, true
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// sendRaw writes bytes under the connection write lock.
func (c *clientConn) sendRaw(b []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.nc.Write(b); err != nil {
		c.srv.log.Debug("x11: write: %s", err)
	}
}

// sendReply writes a reply and records its sequence number for event
// stamping.
func (c *clientConn) sendReply(b []byte) {
	c.sendRaw(b)
	c.srv.lastReplySeq.Store(uint32(c.seq))
}

func (c *clientConn) eventSeq() uint16 {
	return uint16(c.srv.lastReplySeq.Load())
}

func (c *clientConn) sendDestroyNotifyAll() {
	wins := c.srv.windows.Windows()
	c.srv.log.Info("x11: teardown, sending DestroyNotify for %d windows", len(wins))
	for _, wid := range wins {
		c.sendRaw(encodeDestroyNotify(c.order, c.eventSeq(), wid))
	}
}

// drainTouch turns queued touch samples into X pointer events. Presses and
// releases go out immediately; moves are buffered and flushed at most at
// the drag rate so a fast touchscreen cannot flood the client.
func (c *clientConn) drainTouch() {
	s := c.srv
	pending := s.touch.Drain()
	for _, t := range pending {
		switch t.Action {
		case TouchDown:
			c.flushPendingDrag()
			s.touch.setPointer(t.X, t.Y, true)
			hit := s.windows.HitTest(t.X, t.Y)
			s.touch.beginGrab(hit.Window)
			// Hover first: widgets such as combo popups take their
			// prelight item from the pointer position, which on a
			// touchscreen never moved before the press.
			c.sendRaw(encodePointerEvent(c.order, evMotionNotify, 0, c.eventSeq(),
				timestamp(), hit.Window, hit.X, hit.Y, hit.X, hit.Y, 0))
			c.sendRaw(encodePointerEvent(c.order, evButtonPress, 1, c.eventSeq(),
				timestamp(), hit.Window, hit.X, hit.Y, hit.X, hit.Y, 0))
		case TouchUp:
			c.flushPendingDrag()
			s.touch.setPointer(t.X, t.Y, false)
			c.sendGrabbedEvent(evButtonRelease, 1, t.X, t.Y, button1Mask)
			s.touch.endGrab()
		case TouchMove:
			_, _, held := s.touch.Pointer()
			s.touch.setPointer(t.X, t.Y, held)
			c.hasPendingDrag = true
			c.dragX, c.dragY = t.X, t.Y
		}
	}
	if c.hasPendingDrag && s.touch.shouldFlushDrag(time.Now()) {
		c.flushDragNow()
	}
}

func (c *clientConn) flushPendingDrag() {
	if c.hasPendingDrag {
		c.flushDragNow()
	}
}

func (c *clientConn) flushDragNow() {
	c.sendGrabbedEvent(evMotionNotify, 0, c.dragX, c.dragY, button1Mask)
	c.hasPendingDrag = false
}

// sendGrabbedEvent routes a pointer event to the implicit-grab window if a
// press is in flight, otherwise to the hit-test result.
func (c *clientConn) sendGrabbedEvent(evType byte, button byte, x, y int, state uint16) {
	s := c.srv
	var hit HitResult
	if grab, ok := s.touch.grab(); ok {
		ax, ay := s.windows.AbsolutePos(grab)
		hit = HitResult{grab, x - ax, y - ay}
	} else {
		hit = s.windows.HitTest(x, y)
	}
	c.sendRaw(encodePointerEvent(c.order, evType, button, c.eventSeq(),
		timestamp(), hit.Window, hit.X, hit.Y, hit.X, hit.Y, state))
}

func timestamp() uint32 {
	return uint32(time.Now().UnixMilli())
}

// InjectTouch queues a pointer sample in framebuffer coordinates. Safe to
// call from any goroutine; the server loop drains the queue.
func (s *Server) InjectTouch(action TouchAction, x, y int) {
	s.touch.Enqueue(TouchEvent{Action: action, X: x, Y: y})
}

// PluginSize returns the framebuffer dimensions, which track the plugin's
// top-level window (0, 0 before the first window is created).
func (s *Server) PluginSize() (w, h int) {
	return s.fb.Size()
}

// WaitFrame blocks until the framebuffer changes and returns a snapshot.
// Dirty wakeups from before the framebuffer is sized are swallowed.
// Returns ok=false once the server shuts down.
func (s *Server) WaitFrame(dst []uint32) (px []uint32, w, h int, ok bool) {
	for {
		if !s.fb.WaitDirty() {
			return nil, 0, 0, false
		}
		px, w, h = s.fb.Snapshot(dst)
		if px != nil {
			return px, w, h, true
		}
	}
}

// RequestFrame forces the renderer to composite another frame.
func (s *Server) RequestFrame() {
	s.fb.MarkDirty()
}

// SetUIScale updates the scale factor reported through root GetGeometry.
func (s *Server) SetUIScale(scale float64) {
	if scale <= 0 {
		scale = 1
	}
	s.uiScale.Store(math.Float64bits(scale))
}

func (s *Server) getUIScale() float64 {
	return math.Float64frombits(s.uiScale.Load())
}

// IsWidgetAt reports whether a sub-window (an actual widget, not the
// top-level plugin window) is under the point.
func (s *Server) IsWidgetAt(x, y int) bool {
	hit := s.windows.HitTest(x, y)
	return hit.Window != RootWindow && hit.Window != s.windows.TopLevel()
}

// ExposeAll sends Expose for the root and every window, forcing a full
// client repaint. Used when the surface comes back after being hidden.
func (s *Server) ExposeAll() {
	s.connMu.Lock()
	c := s.conn
	s.connMu.Unlock()
	if c == nil {
		return
	}
	seq := c.eventSeq()
	send := func(wid uint32) {
		w, h, ok := s.windows.Size(wid)
		if !ok {
			w, h = s.fb.Size()
		}
		c.sendRaw(encodeExpose(c.order, seq, wid, 0, 0, w, h))
	}
	send(RootWindow)
	for _, wid := range s.windows.Windows() {
		send(wid)
	}
}

// BeginShutdown starts the graceful teardown: the connection loop sends
// DestroyNotify for every window and gives the client the grace period to
// unwind and disconnect on its own.
func (s *Server) BeginShutdown() {
	if s.closing.CompareAndSwap(false, true) {
		s.closeStart.Store(time.Now().UnixNano())
	}
}

// Shutdown performs the full teardown: graceful phase first, then the
// listener and any live connection are closed and the framebuffer
// condition released.
func (s *Server) Shutdown() {
	s.BeginShutdown()
	deadline := time.Now().Add(gracePeriod + 500*time.Millisecond)
	for s.connActive.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	s.Close()
}

// Close force-closes the listener and connection. Idempotent.
func (s *Server) Close() {
	if !s.quit.CompareAndSwap(false, true) {
		return
	}
	if s.ln != nil {
		s.ln.Close()
	}
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.nc.Close()
	}
	s.connMu.Unlock()
	s.fb.Close()
}
