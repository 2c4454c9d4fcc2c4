// Package plugin defines the narrow contracts between the display core and
// the two external collaborators it serves: the audio engine upstream and
// the hosted plugin UI binary downstream. The core never reaches past these
// interfaces — dynamic loading, port wiring and state atoms all live on the
// other side.
package plugin

import "github.com/pkg/errors"

// Processor is the audio-side face of a hosted plugin. Calls arrive from
// the audio engine's realtime thread; implementations must not block.
type Processor interface {
	// Process renders frames samples from the input buffers into the
	// output buffers.
	Process(inputs, outputs [][]float32, frames int)

	// Activate prepares the plugin for processing at the given rate.
	Activate(sampleRate float64, bufferSize int)
	Deactivate()

	GetParameter(portIndex int) float32
	SetParameter(portIndex int, value float32)

	// SaveState serializes the plugin's full state; RestoreState is its
	// inverse. Neither may be called from the audio thread.
	SaveState() ([]byte, error)
	RestoreState(data []byte) error
}

// UI is the user-interface side of a hosted plugin. Every method must be
// called from the display's plugin-UI goroutine and no other: the library
// behind it keeps per-connection sequence state that corrupts under
// concurrent use.
type UI interface {
	// Instantiate creates the native UI under the parent window named in
	// features. A non-nil error means the UI could not be brought up and
	// the host must not start a display for the plugin.
	Instantiate(features Features) error

	Cleanup()

	// PortEvent delivers a parameter or atom change to the UI.
	PortEvent(portIndex int, value float32)

	// Idle pumps the UI's event loop once.
	Idle()

	// ExtensionData resolves an optional interface by URI, or nil.
	ExtensionData(uri string) any
}

// Features is the capability table handed to UI.Instantiate.
type Features struct {
	// ParentWindow is the X window ID the UI must embed itself under.
	ParentWindow uint32

	// DisplayName is the DISPLAY value the UI's Xlib must connect to.
	DisplayName string

	// Resize is invoked when the UI wants a new size. The display ignores
	// it (the framebuffer follows ConfigureWindow instead) but the slot
	// must be non-nil or some toolkits refuse to instantiate.
	Resize func(w, h int)

	// URIDs maps URIs to stable integer IDs shared with the DSP side.
	URIDs URIDMap

	// RequestValue asks the embedding app for a value the UI cannot
	// produce itself, typically a file path from a picker dialog.
	RequestValue func(key uint32, typ uint32) error
}

// ErrNotInstantiated is returned by hosts when UI entry points are used
// before a successful Instantiate.
var ErrNotInstantiated = errors.New("plugin UI not instantiated")
