// Package x11 implements a minimal in-process X11 display server. It speaks
// a byte-compatible subset of the core protocol over TCP loopback — enough
// for an unmodified Xlib/XCB-linked plugin UI to connect, create windows,
// push pixels with PutImage and receive synthesized pointer events — while
// compositing everything into a single framebuffer read by a render loop.
//
// Only one client is served at a time and only the opcodes emitted by known
// plugin UI toolkits are handled. Unknown opcodes are logged once and
// ignored without a reply: sending an unexpected reply desynchronizes the
// client library's reply matching and must never happen.
package x11

// Connection constants.
const (
	connectionAccepted = 1
	protocolMajor      = 11
	protocolMinor      = 0

	// RootWindow is the fixed ID of the single root window.
	RootWindow uint32 = 1

	defaultColormap = 1
	whitePixel      = 0xffffff
	blackPixel      = 0x000000

	// Non-zero visual ID for the single TrueColor visual. Xlib looks the
	// root visual up by ID and a zero ID makes it bail out.
	defaultVisual = 0x21
)

// Core request opcodes.
const (
	opCreateWindow           = 1
	opChangeWindowAttributes = 2
	opGetWindowAttributes    = 3
	opDestroyWindow          = 4
	opDestroySubwindows      = 5
	opReparentWindow         = 7
	opMapWindow              = 8
	opMapSubwindows          = 9
	opUnmapWindow            = 10
	opConfigureWindow        = 12
	opGetGeometry            = 14
	opQueryTree              = 15
	opInternAtom             = 16
	opGetAtomName            = 17
	opChangeProperty         = 18
	opDeleteProperty         = 19
	opGetProperty            = 20
	opListProperties         = 21
	opSetSelectionOwner      = 22
	opGetSelectionOwner      = 23
	opConvertSelection       = 24
	opSendEvent              = 25
	opGrabPointer            = 26
	opGrabKeyboard           = 31
	opQueryPointer           = 38
	opGetMotionEvents        = 39
	opTranslateCoords        = 40
	opSetInputFocus          = 42
	opGetInputFocus          = 43
	opQueryKeymap            = 44
	opQueryFont              = 47
	opListFonts              = 49
	opSetFontPath            = 51
	opGetFontPath            = 52
	opCreatePixmap           = 53
	opFreePixmap             = 54
	opCreateGC               = 55
	opChangeGC               = 56
	opCopyGC                 = 57
	opSetDashes              = 58
	opSetClipRectangles      = 59
	opFreeGC                 = 60
	opClearArea              = 61
	opCopyArea               = 62
	opCopyPlane              = 63
	opPolyPoint              = 64
	opPolyLine               = 65
	opPolySegment            = 66
	opPolyRectangle          = 67
	opPolyArc                = 68
	opFillPoly               = 69
	opPolyFillRectangle      = 70
	opPolyFillArc            = 71
	opPutImage               = 72
	opGetImage               = 73
	opCreateColormap         = 78
	opFreeColormap           = 79
	opListInstalledColormaps = 83
	opAllocColor             = 84
	opQueryColors            = 91
	opQueryBestSize          = 97
	opQueryExtension         = 98
	opListExtensions         = 100
	opChangeKeyboardMapping  = 101
	opGetKeyboardMapping     = 102
	opGetKeyboardControl     = 103
	opGetPointerControl      = 104
	opGetPointerMapping      = 106

	// Major opcode the GLX extension is advertised under.
	opGLX = 128
)

// Event types.
const (
	evButtonPress     = 4
	evButtonRelease   = 5
	evMotionNotify    = 6
	evExpose          = 12
	evDestroyNotify   = 17
	evConfigureNotify = 22
)

// GLX sub-opcodes (minor opcodes of the GLX major request).
const (
	glxRender             = 1
	glxRenderLarge        = 2
	glxCreateContext      = 3
	glxDestroyContext     = 4
	glxMakeCurrent        = 5
	glxIsDirect           = 6
	glxQueryVersion       = 7
	glxWaitGL             = 8
	glxWaitX              = 9
	glxCopyContext        = 10
	glxSwapBuffers        = 11
	glxGetVisualConfigs   = 14
	glxQueryServerString  = 17
	glxClientInfo         = 18
	glxGetFBConfigs       = 19
	glxCreatePixmap       = 20
	glxDestroyPixmap      = 21
	glxCreateNewContext   = 22
	glxMakeContextCurrent = 24
	glxQueryContext       = 26
)

// ConfigureWindow value-mask bits.
const (
	cwX           = 0x0001
	cwY           = 0x0002
	cwWidth       = 0x0004
	cwHeight      = 0x0008
	cwBorderWidth = 0x0010
	cwSibling     = 0x0020
	cwStackMode   = 0x0040
)

// CWEventMask bit of the ChangeWindowAttributes value mask.
const attrEventMaskBit = 11

// Button1Mask as it appears in the pointer-event state field.
const button1Mask = 1 << 8

var opcodeNames = map[byte]string{
	opCreateWindow:           "CreateWindow",
	opChangeWindowAttributes: "ChangeWindowAttributes",
	opGetWindowAttributes:    "GetWindowAttributes",
	opDestroyWindow:          "DestroyWindow",
	opDestroySubwindows:      "DestroySubwindows",
	opReparentWindow:         "ReparentWindow",
	opMapWindow:              "MapWindow",
	opMapSubwindows:          "MapSubwindows",
	opUnmapWindow:            "UnmapWindow",
	opConfigureWindow:        "ConfigureWindow",
	opGetGeometry:            "GetGeometry",
	opQueryTree:              "QueryTree",
	opInternAtom:             "InternAtom",
	opGetAtomName:            "GetAtomName",
	opChangeProperty:         "ChangeProperty",
	opDeleteProperty:         "DeleteProperty",
	opGetProperty:            "GetProperty",
	opListProperties:         "ListProperties",
	opSetSelectionOwner:      "SetSelectionOwner",
	opGetSelectionOwner:      "GetSelectionOwner",
	opConvertSelection:       "ConvertSelection",
	opSendEvent:              "SendEvent",
	opGrabPointer:            "GrabPointer",
	opGrabKeyboard:           "GrabKeyboard",
	opQueryPointer:           "QueryPointer",
	opTranslateCoords:        "TranslateCoordinates",
	opSetInputFocus:          "SetInputFocus",
	opGetInputFocus:          "GetInputFocus",
	opCreatePixmap:           "CreatePixmap",
	opFreePixmap:             "FreePixmap",
	opCreateGC:               "CreateGC",
	opChangeGC:               "ChangeGC",
	opFreeGC:                 "FreeGC",
	opClearArea:              "ClearArea",
	opCopyArea:               "CopyArea",
	opPolyFillRectangle:      "PolyFillRectangle",
	opPutImage:               "PutImage",
	opGetImage:               "GetImage",
	opCreateColormap:         "CreateColormap",
	opAllocColor:             "AllocColor",
	opQueryExtension:         "QueryExtension",
	opListExtensions:         "ListExtensions",
	opGLX:                    "GLX",
}

// opcodeName returns a human-readable name for logging.
func opcodeName(op byte) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "?"
}
