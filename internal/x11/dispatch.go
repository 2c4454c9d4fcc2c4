package x11

import (
	"io"
	"net"
)

// dispatch routes one request to its handler. Three classes of opcode
// exist: handled (side effects and/or a real reply), void-ignored (the
// client expects no reply, so dropping them is safe) and must-reply (the
// client blocks on a round trip, so an all-zero reply goes out even though
// the server implements nothing behind it). Opcodes in none of those
// classes are logged once and ignored WITHOUT a reply: an unexpected reply
// desynchronizes Xlib's sequence tracking and kills the client.
func (c *clientConn) dispatch(opcode, data byte, body []byte) {
	switch opcode {
	case opCreateWindow:
		c.handleCreateWindow(body)
	case opMapWindow:
		c.handleMapWindow(body)
	case opUnmapWindow:
		c.handleUnmapWindow(body)
	case opDestroyWindow:
		c.handleDestroyWindow(body)
	case opConfigureWindow:
		c.handleConfigureWindow(body)
	case opChangeWindowAttributes:
		c.handleChangeWindowAttributes(body)
	case opGetWindowAttributes:
		c.handleGetWindowAttributes(body)
	case opGetGeometry:
		c.handleGetGeometry(body)
	case opQueryExtension:
		c.handleQueryExtension(body)
	case opListExtensions:
		c.handleListExtensions()
	case opInternAtom:
		c.handleInternAtom(data, body)
	case opGetAtomName:
		c.handleGetAtomName(body)
	case opTranslateCoords:
		c.handleTranslateCoordinates(body)
	case opQueryPointer:
		c.handleQueryPointer()
	case opSendEvent:
		c.handleSendEvent(body)
	case opCreatePixmap:
		c.handleCreatePixmap(body)
	case opFreePixmap:
		c.handleFreePixmap(body)
	case opCopyArea:
		c.handleCopyArea(body)
	case opGetImage:
		c.handleGetImage(body)
	case opGLX:
		c.handleGLX(data)

	case opPolyFillRectangle:
		// Deliberate no-op. The plugin paints everything visible via
		// PutImage; fills typically just clear areas first, and without
		// the GC foreground color a hardcoded fill shows up as flicker.

	case opQueryTree, opGetProperty, opListProperties, opGetSelectionOwner,
		opGrabPointer, opGrabKeyboard, opGetMotionEvents, opGetInputFocus,
		opQueryKeymap, opQueryFont, opListFonts, opGetFontPath,
		opListInstalledColormaps, opAllocColor, opQueryColors,
		opQueryBestSize, opGetKeyboardMapping, opGetKeyboardControl,
		opGetPointerControl, opGetPointerMapping:
		// Must-reply stubs: an empty reply unblocks the caller.
		c.sendReply(newReply(c.order, c.seq, 0))

	case opDestroySubwindows, opMapSubwindows, opChangeProperty,
		opDeleteProperty, opSetSelectionOwner, opConvertSelection,
		opSetInputFocus, opSetFontPath, opCreateGC, opChangeGC, opCopyGC,
		opSetDashes, opSetClipRectangles, opFreeGC, opClearArea,
		opCopyPlane, opPolyPoint, opPolyLine, opPolySegment,
		opPolyRectangle, opPolyArc, opFillPoly, opPolyFillArc,
		opCreateColormap, opFreeColormap, opChangeKeyboardMapping:
		// Void requests with no server-side effect here.

	default:
		if !c.warnedUnhandled[opcode] {
			c.warnedUnhandled[opcode] = true
			c.srv.log.Warn("x11: unhandled opcode=%d %s (ignored, no reply)",
				opcode, opcodeName(opcode))
		}
	}
}

func (c *clientConn) handleCreateWindow(body []byte) {
	if len(body) < 16 {
		return
	}
	s := c.srv
	wid := c.order.Get32(body, 0)
	parent := c.order.Get32(body, 4)
	x := int(int16(c.order.Get16(body, 8)))
	y := int(int16(c.order.Get16(body, 10)))
	w := int(c.order.Get16(body, 12))
	h := int(c.order.Get16(body, 14))
	s.windows.Create(wid, parent, x, y, w, h)
	s.log.Debug("x11: CreateWindow wid=0x%x parent=0x%x pos=(%d,%d) %dx%d",
		wid, parent, x, y, w, h)

	// The first window defines the plugin's natural size and brings the
	// framebuffer to life.
	if w > 0 && h > 0 && s.fb.EnsureSize(w, h) {
		s.naturalW.Store(int64(w))
		s.naturalH.Store(int64(h))
		s.log.Info("x11: plugin size %dx%d (framebuffer initialized)", w, h)
	}

	// Expose immediately so the plugin draws even if MapWindow never
	// arrives (request reordering or client-side buffering).
	c.sendRaw(encodeExpose(c.order, c.eventSeq(), wid, 0, 0, w, h))
}

func (c *clientConn) handleMapWindow(body []byte) {
	if len(body) < 4 {
		return
	}
	s := c.srv
	wid := c.order.Get32(body, 0)
	s.windows.Map(wid)
	w, h, ok := s.windows.Size(wid)
	if !ok {
		w, h = s.fb.Size()
	}
	c.sendRaw(encodeExpose(c.order, c.eventSeq(), wid, 0, 0, w, h))
}

func (c *clientConn) handleUnmapWindow(body []byte) {
	if len(body) < 4 {
		return
	}
	s := c.srv
	wid := c.order.Get32(body, 0)
	if s.windows.Unmap(wid) {
		// A top-level popup went away; its pixels are stale in the
		// shared framebuffer, so the main window must repaint over them.
		top := s.windows.TopLevel()
		if w, h, ok := s.windows.Size(top); ok {
			c.sendRaw(encodeExpose(c.order, c.eventSeq(), top, 0, 0, w, h))
		}
	}
}

func (c *clientConn) handleDestroyWindow(body []byte) {
	if len(body) < 4 {
		return
	}
	wid := c.order.Get32(body, 0)
	c.srv.windows.Destroy(wid)
	c.srv.log.Debug("x11: DestroyWindow wid=0x%x", wid)
}

func (c *clientConn) handleConfigureWindow(body []byte) {
	if len(body) < 8 {
		return
	}
	s := c.srv
	wid := c.order.Get32(body, 0)
	vmask := c.order.Get16(body, 4)
	off := 8

	// Values follow in bit order: x, y, width, height, ...
	var hasX, hasY bool
	var newX, newY int
	if vmask&cwX != 0 && off+4 <= len(body) {
		newX, hasX = int(int32(c.order.Get32(body, off))), true
		off += 4
	}
	if vmask&cwY != 0 && off+4 <= len(body) {
		newY, hasY = int(int32(c.order.Get32(body, off))), true
		off += 4
	}
	newW, newH := -1, -1
	if vmask&cwWidth != 0 && off+4 <= len(body) {
		newW = int(c.order.Get32(body, off))
		off += 4
	}
	if vmask&cwHeight != 0 && off+4 <= len(body) {
		newH = int(c.order.Get32(body, off))
		off += 4
	}

	posChanged := s.windows.SetPosition(wid, hasX, newX, hasY, newY)

	// Only act on real size changes: plugins send same-size configures
	// every idle pass, and answering each with ConfigureNotify creates a
	// resize feedback loop through the client's resize handler.
	if s.windows.Contains(wid) && (newW > 0 || newH > 0) {
		finalW, finalH, changed := s.windows.SetSize(wid, newW, newH)
		if changed {
			s.log.Debug("x11: ConfigureWindow wid=0x%x size %dx%d (vmask=0x%04x)",
				wid, finalW, finalH, vmask)
			if wid == s.windows.TopLevel() {
				s.fb.Resize(finalW, finalH)
			}
			seq := c.eventSeq()
			c.sendRaw(encodeConfigureNotify(c.order, seq, wid, 0, 0, finalW, finalH))
			c.sendRaw(encodeExpose(c.order, seq, wid, 0, 0, finalW, finalH))
		}
	}

	// A moved child cannot take its pixels with it: there is one shared
	// framebuffer, so the top-level window repaints instead.
	if posChanged {
		top := s.windows.TopLevel()
		if w, h, ok := s.windows.Size(top); ok && w > 0 && h > 0 {
			c.sendRaw(encodeExpose(c.order, c.eventSeq(), top, 0, 0, w, h))
		}
	}
}

func (c *clientConn) handleChangeWindowAttributes(body []byte) {
	if len(body) < 8 {
		return
	}
	window := c.order.Get32(body, 0)
	mask := c.order.Get32(body, 4)
	off := 8
	for bit := 0; bit < 32 && off+4 <= len(body); bit++ {
		if mask&(1<<bit) == 0 {
			continue
		}
		if bit == attrEventMaskBit {
			em := c.order.Get32(body, off)
			c.srv.windows.SetEventMask(window, em)
			c.srv.log.Debug("x11: window=0x%x event mask=0x%x", window, em)
		}
		off += 4
	}
}

func (c *clientConn) handleGetWindowAttributes(body []byte) {
	if len(body) < 4 {
		return
	}
	wid := c.order.Get32(body, 0)
	b := newReply(c.order, c.seq, 3)
	b[1] = 0 // backing store: NotUseful
	c.order.Put32(b, 8, defaultVisual)
	c.order.Put16(b, 12, 1) // class: InputOutput
	c.order.Put32(b, 20, blackPixel)
	b[25] = 1 // map installed
	if c.srv.windows.IsUnmapped(wid) {
		b[26] = 0 // IsUnmapped
	} else {
		b[26] = 2 // IsViewable
	}
	c.order.Put32(b, 28, defaultColormap)
	c.order.Put32(b, 32, 0x00FFFFFF) // all event masks
	c.order.Put32(b, 36, 0x00FFFFFF) // your event mask
	c.sendReply(b)
}

func (c *clientConn) handleGetGeometry(body []byte) {
	if len(body) < 4 {
		return
	}
	s := c.srv
	drawable := c.order.Get32(body, 0)
	w, h := s.fb.Size()
	if w == 0 {
		w, h = 1280, 720
	}
	if ww, wh, ok := s.windows.Size(drawable); ok {
		w, h = ww, wh
	} else if drawable == RootWindow && s.naturalW.Load() > 0 {
		// Report the scaled NATURAL size, not the current one: plugins
		// resize themselves to whatever the parent query returns, and
		// echoing the live size back shrinks the window a bit per pass.
		scale := s.getUIScale()
		w = int(float64(s.naturalW.Load()) * scale)
		h = int(float64(s.naturalH.Load()) * scale)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}
	x, y, _, _ := s.windows.Position(drawable)

	b := newReply(c.order, c.seq, 0)
	b[1] = 24 // depth
	c.order.Put32(b, 8, RootWindow)
	c.order.Put16(b, 12, uint16(int16(x)))
	c.order.Put16(b, 14, uint16(int16(y)))
	c.order.Put16(b, 16, uint16(w))
	c.order.Put16(b, 18, uint16(h))
	c.sendReply(b)
}

func (c *clientConn) handleQueryExtension(body []byte) {
	if len(body) < 4 {
		return
	}
	nameLen := int(c.order.Get16(body, 0))
	name := ""
	if nameLen > 0 && 4+nameLen <= len(body) {
		name = string(body[4 : 4+nameLen])
	}
	b := newReply(c.order, c.seq, 0)
	if name == "GLX" {
		b[8] = 1 // present
		b[9] = opGLX
	}
	c.srv.log.Debug("x11: QueryExtension %q -> present=%d", name, b[8])
	c.sendReply(b)
}

func (c *clientConn) handleListExtensions() {
	const ext = "GLX"
	b := newReply(c.order, c.seq, 1)
	b[1] = 1 // one STR
	b[32] = byte(len(ext))
	copy(b[33:], ext)
	c.sendReply(b)
}

func (c *clientConn) handleInternAtom(data byte, body []byte) {
	if len(body) < 4 {
		return
	}
	nameLen := int(c.order.Get16(body, 0))
	name := ""
	if nameLen > 0 && nameLen <= 256 && 4+nameLen <= len(body) {
		name = string(body[4 : 4+nameLen])
	}
	atom := c.srv.atoms.Intern(name, data != 0)
	c.srv.log.Debug("x11: InternAtom %q onlyIfExists=%d -> %d", name, data, atom)
	b := newReply(c.order, c.seq, 0)
	c.order.Put32(b, 8, atom)
	c.sendReply(b)
}

func (c *clientConn) handleGetAtomName(body []byte) {
	if len(body) < 4 {
		return
	}
	name := c.srv.atoms.Name(c.order.Get32(body, 0))
	b := newReply(c.order, c.seq, wirePad4Words(len(name)))
	c.order.Put16(b, 8, uint16(len(name)))
	copy(b[32:], name)
	c.sendReply(b)
}

func wirePad4Words(n int) int {
	return (n + 3) / 4
}

func (c *clientConn) handleTranslateCoordinates(body []byte) {
	if len(body) < 12 {
		return
	}
	s := c.srv
	src := c.order.Get32(body, 0)
	dst := c.order.Get32(body, 4)
	srcX := int(int16(c.order.Get16(body, 8)))
	srcY := int(int16(c.order.Get16(body, 10)))

	var srcAbsX, srcAbsY, dstAbsX, dstAbsY int
	if src != RootWindow {
		srcAbsX, srcAbsY = s.windows.AbsolutePos(src)
	}
	if dst != RootWindow {
		dstAbsX, dstAbsY = s.windows.AbsolutePos(dst)
	}
	dstX := srcX + srcAbsX - dstAbsX
	dstY := srcY + srcAbsY - dstAbsY

	b := newReply(c.order, c.seq, 0)
	b[1] = 1 // same screen
	c.order.Put32(b, 8, 0)
	c.order.Put16(b, 12, uint16(int16(dstX)))
	c.order.Put16(b, 14, uint16(int16(dstY)))
	c.sendReply(b)
}

func (c *clientConn) handleQueryPointer() {
	x, y, button1 := c.srv.touch.Pointer()
	b := newReply(c.order, c.seq, 0)
	b[1] = 1 // same screen
	c.order.Put32(b, 8, RootWindow)
	c.order.Put16(b, 16, uint16(x))
	c.order.Put16(b, 18, uint16(y))
	c.order.Put16(b, 20, uint16(x))
	c.order.Put16(b, 22, uint16(y))
	if button1 {
		c.order.Put16(b, 24, button1Mask)
	}
	c.sendReply(b)
}

func (c *clientConn) handleSendEvent(body []byte) {
	if len(body) < 40 {
		return
	}
	// Echo the embedded 32-byte event back to the (single) client with
	// the send-event bit set and the sequence rewritten to what XCB
	// expects from a server-delivered event.
	ev := make([]byte, 32)
	copy(ev, body[8:40])
	c.order.Put16(ev, 2, c.eventSeq())
	ev[0] |= 0x80
	c.sendRaw(ev)
}

func (c *clientConn) handleCreatePixmap(body []byte) {
	if len(body) < 12 {
		return
	}
	pid := c.order.Get32(body, 0)
	w := int(c.order.Get16(body, 8))
	h := int(c.order.Get16(body, 10))
	c.srv.log.Debug("x11: CreatePixmap pid=0x%x %dx%d", pid, w, h)
	c.srv.fb.CreatePixmap(pid, w, h)
}

func (c *clientConn) handleFreePixmap(body []byte) {
	if len(body) < 4 {
		return
	}
	c.srv.fb.FreePixmap(c.order.Get32(body, 0))
}

// drawOffset converts a child window's drawable coordinates to absolute
// framebuffer coordinates. The top-level window and root already are the
// framebuffer origin.
func (c *clientConn) drawOffset(drawable uint32) (dx, dy int) {
	s := c.srv
	if drawable == RootWindow || drawable == s.windows.TopLevel() {
		return 0, 0
	}
	if !s.windows.Contains(drawable) {
		return 0, 0
	}
	return s.windows.AbsolutePos(drawable)
}

func (c *clientConn) handleCopyArea(body []byte) {
	if len(body) < 24 {
		return
	}
	s := c.srv
	src := c.order.Get32(body, 0)
	dst := c.order.Get32(body, 4)
	srcX := int(int16(c.order.Get16(body, 12)))
	srcY := int(int16(c.order.Get16(body, 14)))
	dstX := int(int16(c.order.Get16(body, 16)))
	dstY := int(int16(c.order.Get16(body, 18)))
	w := int(c.order.Get16(body, 20))
	h := int(c.order.Get16(body, 22))

	sx, sy := c.drawOffset(src)
	dx, dy := c.drawOffset(dst)
	s.fb.CopyArea(src, dst, srcX+sx, srcY+sy, dstX+dx, dstY+dy, w, h)
}

func (c *clientConn) handleGetImage(body []byte) {
	if len(body) < 12 {
		return
	}
	s := c.srv
	drawable := c.order.Get32(body, 0)
	x := int(int16(c.order.Get16(body, 4)))
	y := int(int16(c.order.Get16(body, 6)))
	w := int(c.order.Get16(body, 8))
	h := int(c.order.Get16(body, 10))

	// A corrupt size must not drive the reply allocation.
	if w > maxFramebufferDim {
		w = maxFramebufferDim
	}
	if h > maxFramebufferDim {
		h = maxFramebufferDim
	}

	isWindow := drawable == RootWindow || s.windows.Contains(drawable)
	var payload []byte
	if isWindow || s.fb.HasPixmap(drawable) {
		payload = s.fb.GetImage(c.order, drawable, x, y, w, h)
	} else {
		payload = make([]byte, w*h*4)
	}

	head := make([]byte, 32)
	head[0] = 1
	head[1] = 24 // depth
	c.order.Put16(head, 2, c.seq)
	c.order.Put32(head, 4, uint32(len(payload)/4))
	c.order.Put32(head, 8, 0) // visual

	// Touch input first: a large reply can take a while to push out.
	c.drainTouch()
	c.sendReplyParts(head, payload)
}

// sendReplyParts writes a header and payload as one logical reply without
// concatenating them, sparing a copy on multi-megabyte GetImage replies.
func (c *clientConn) sendReplyParts(head, payload []byte) {
	c.writeMu.Lock()
	bufs := net.Buffers{head, payload}
	if _, err := bufs.WriteTo(c.nc); err != nil {
		c.srv.log.Debug("x11: write: %s", err)
	}
	c.writeMu.Unlock()
	c.srv.lastReplySeq.Store(uint32(c.seq))
}

func (c *clientConn) handleGLX(sub byte) {
	reply, known := glxReply(c.order, c.seq, sub)
	if !known && !c.warnedUnhandledGLX[sub] {
		c.warnedUnhandledGLX[sub] = true
		c.srv.log.Warn("x11: unhandled GLX sub-opcode=%d (generic reply)", sub)
	}
	if reply != nil {
		c.sendReply(reply)
	}
}

// handlePutImage has its own read path: the 20-byte fixed part is followed
// by the pixel payload, which is streamed into a reusable buffer instead
// of the generic body reader. Returns false when the connection is gone.
func (c *clientConn) handlePutImage(length int) bool {
	s := c.srv
	// The fixed part alone is 6 words. A shorter request is malformed;
	// consume exactly its declared length and move on.
	if length < 6 {
		if length > 1 {
			_, err := io.CopyN(io.Discard, c.br, int64(length-1)*4)
			return err == nil
		}
		return true
	}
	var fixed [20]byte
	if _, err := io.ReadFull(c.br, fixed[:]); err != nil {
		return false
	}
	drawable := c.order.Get32(fixed[:], 0)
	w := int(c.order.Get16(fixed[:], 8))
	h := int(c.order.Get16(fixed[:], 10))
	x := int(int16(c.order.Get16(fixed[:], 12)))
	y := int(int16(c.order.Get16(fixed[:], 14)))

	pixelLen := length*4 - 24
	if pixelLen <= 0 {
		return true
	}
	if w <= 0 || h <= 0 || w > 4096 || h > 4096 {
		_, err := io.CopyN(io.Discard, c.br, int64(pixelLen))
		return err == nil
	}

	if cap(c.putScratch) < pixelLen {
		c.putScratch = make([]byte, pixelLen)
	}
	pixels := c.putScratch[:pixelLen]
	if _, err := io.ReadFull(c.br, pixels); err != nil {
		return false
	}

	isWindow := drawable == RootWindow || s.windows.Contains(drawable)
	topLevel := drawable == RootWindow || drawable == s.windows.TopLevel()
	if isWindow {
		if !topLevel {
			if s.windows.IsUnmapped(drawable) {
				// Hidden windows must not paint the shared framebuffer.
				return true
			}
			ax, ay := s.windows.AbsolutePos(drawable)
			x += ax
			y += ay
		}
	} else if !s.fb.HasPixmap(drawable) {
		return true
	}

	var clips []rect
	if isWindow {
		clips = s.windows.childClips(drawable)
	}
	s.fb.PutImage(c.order, drawable, pixels, w, h, x, y, clips)
	return true
}
