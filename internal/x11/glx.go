package x11

import "plugview/internal/wire"

// The GLX implementation here is the bare minimum to keep Mesa's xlib GLX
// path happy: swrast renders client-side and only probes the server for
// version, configs and context tags. Anything else gets a generic empty
// reply so the client never blocks on a round trip.

// glxReply builds the reply for a GLX sub-opcode. A nil reply means the
// request is void. known is false for sub-opcodes the server has no
// specific handling for; those still get an empty reply, since a GLX
// request that expects one would otherwise hang the client.
func glxReply(order wire.ByteOrder, seq uint16, sub byte) (reply []byte, known bool) {
	switch sub {
	case glxQueryVersion:
		b := newReply(order, seq, 0)
		order.Put32(b, 8, 1)
		order.Put32(b, 12, 4)
		return b, true
	case glxMakeCurrent, glxMakeContextCurrent:
		b := newReply(order, seq, 0)
		order.Put32(b, 8, 1) // context tag, non-zero means success
		return b, true
	case glxIsDirect:
		b := newReply(order, seq, 0)
		b[8] = 0 // indirect
		return b, true
	case glxGetVisualConfigs:
		return glxVisualConfigsReply(order, seq), true
	case glxGetFBConfigs:
		return glxFBConfigsReply(order, seq), true
	case glxQueryServerString:
		b := newReply(order, seq, 1)
		order.Put32(b, 8, 0) // empty string
		return b, true
	case glxQueryContext:
		return newReply(order, seq, 0), true
	case glxRender, glxRenderLarge, glxCreateContext, glxDestroyContext,
		glxWaitGL, glxWaitX, glxCopyContext, glxSwapBuffers, glxClientInfo,
		glxCreatePixmap, glxDestroyPixmap, glxCreateNewContext:
		return nil, true
	default:
		return newReply(order, seq, 0), false
	}
}

// glxVisualConfigsReply advertises one config matching the server's only
// visual: RGBA 8888, double-buffered, 24-bit depth, 8-bit stencil. The
// layout is 18 positional properties with the rest of the 28 zeroed.
func glxVisualConfigsReply(order wire.ByteOrder, seq uint16) []byte {
	const numProps = 28
	b := newReply(order, seq, numProps)
	order.Put32(b, 8, 1) // configs
	order.Put32(b, 12, numProps)
	props := [18]uint32{
		defaultVisual,
		4, // class: TrueColor
		1, // rgba
		8, 8, 8, 8, // red, green, blue, alpha bits
		0, 0, 0, 0, // accum
		1,  // double buffer
		0,  // stereo
		32, // buffer size
		24, // depth size
		8,  // stencil size
		0,  // aux buffers
		0,  // level
	}
	for i, v := range props {
		order.Put32(b, 32+i*4, v)
	}
	return b
}

// glxFBConfigsReply advertises one fbconfig as key/value attribute pairs.
func glxFBConfigsReply(order wire.ByteOrder, seq uint16) []byte {
	const numAttribs = 28
	b := newReply(order, seq, numAttribs*2)
	order.Put32(b, 8, 1) // configs
	order.Put32(b, 12, numAttribs)
	attribs := [][2]uint32{
		{0x8013, 1},      // GLX_FBCONFIG_ID
		{0x8010, 32},     // GLX_BUFFER_SIZE
		{0x8011, 0},      // GLX_LEVEL
		{0x8012, 1},      // GLX_DOUBLEBUFFER
		{0x8014, 4},      // GLX_VISUAL_TYPE: TrueColor
		{0x8015, 8},      // GLX_RED_SIZE
		{0x8016, 8},      // GLX_GREEN_SIZE
		{0x8017, 8},      // GLX_BLUE_SIZE
		{0x8018, 8},      // GLX_ALPHA_SIZE
		{0x8019, 24},     // GLX_DEPTH_SIZE
		{0x801A, 8},      // GLX_STENCIL_SIZE
		{0x8020, 0x8002}, // GLX_RENDER_TYPE: RGBA
		{0x8021, 0x8001}, // GLX_DRAWABLE_TYPE: window
		{0x8022, 0},      // GLX_X_RENDERABLE
		{0x8023, 0},      // GLX_X_VISUAL_TYPE
		{0x20, 0},        // GLX_NONE terminator
	}
	for i, kv := range attribs {
		order.Put32(b, 32+i*8, kv[0])
		order.Put32(b, 32+i*8+4, kv[1])
	}
	return b
}
