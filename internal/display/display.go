// Package display orchestrates one hosted-plugin display: the embedded X11
// server, the render loop compositing its framebuffer onto a surface and
// the plugin-UI loop pumping the hosted UI library. Three goroutines per
// attached display, with a fixed ownership split — the server goroutine
// owns protocol state, the render goroutine owns the surface, the
// plugin-UI goroutine owns the hosted library — and a strict teardown
// order between them.
package display

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"plugview/internal/log"
	"plugview/internal/plugin"
	"plugview/internal/x11"
)

// DetachStatus reports how a detach request was handled.
type DetachStatus int

const (
	// DetachDone means the detach executed (or was already done).
	DetachDone DetachStatus = iota

	// DetachDeferred means a plugin UI instantiation was in flight; the
	// detach was flagged and will execute when the instantiation ends.
	// The display object stays alive until then.
	DetachDeferred
)

// Options tunes per-display behavior.
type Options struct {
	// IdleInterval is the plugin-UI loop period. Zero means ~60 Hz.
	IdleInterval time.Duration

	// UIScale is the initial scale reported to size-querying plugins.
	// Zero means 1.0.
	UIScale float64
}

// Display binds one display number to a surface and a hosted plugin UI.
// All exported methods are safe to call from any goroutine; internally
// they enqueue work or swap atomics rather than touching shared state
// directly.
type Display struct {
	num  int
	log  *log.Logger
	opts Options
	srv  *x11.Server

	// geom is read lock-free; geomMu serializes the writers so two
	// concurrent read-modify-writes cannot lose each other's fields.
	geom   atomic.Pointer[Geometry]
	geomMu sync.Mutex

	tasks *taskQueue

	creating       plugin.CreationGuard
	detachDeferred atomic.Bool
	// deferMu couples the creation-guard check to the deferred flag, so a
	// creation ending between the two cannot strand a deferred detach.
	deferMu sync.Mutex

	mu          sync.Mutex
	attached    bool
	surface     Surface
	acceptInput atomic.Bool

	serverDone chan struct{}
	renderDone chan struct{}
	uiDone     chan struct{}
	uiStop     chan struct{}
}

// New creates an unattached display for DISPLAY=127.0.0.1:num.
func New(num int, logger *log.Logger, opts Options) *Display {
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = time.Second / 60
	}
	d := &Display{
		num:   num,
		log:   logger,
		opts:  opts,
		tasks: newTaskQueue(),
	}
	d.geom.Store(&Geometry{})
	return d
}

// Num returns the display number.
func (d *Display) Num() int {
	return d.num
}

// DisplayString returns the DISPLAY value hosted plugins must use.
func (d *Display) DisplayString() string {
	return d.srv.DisplayString()
}

// Attach binds a surface, starts the X server and launches the three
// goroutines. Fails if the display is already attached or the listen
// socket cannot be bound; a failed bind leaves the display detached and
// harmless rather than half-started.
func (d *Display) Attach(surface Surface, width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return errors.Errorf("display %d already attached", d.num)
	}

	srv := x11.NewServer(d.num, d.log)
	if err := srv.Listen(); err != nil {
		return errors.Wrapf(err, "attach display %d", d.num)
	}
	d.srv = srv
	d.surface = surface
	d.tasks.reset()
	if d.opts.UIScale > 0 {
		srv.SetUIScale(d.opts.UIScale)
	}
	d.geomMu.Lock()
	d.geom.Store(&Geometry{SurfaceW: width, SurfaceH: height})
	d.geomMu.Unlock()
	d.detachDeferred.Store(false)

	d.serverDone = make(chan struct{})
	d.renderDone = make(chan struct{})
	d.uiDone = make(chan struct{})
	d.uiStop = make(chan struct{})

	go func() {
		defer close(d.serverDone)
		srv.Serve()
	}()
	go d.renderLoop(surface)
	go func() {
		// The hosted UI library needs a stable thread identity for the
		// lifetime of the plugin, not just serialized calls.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(d.uiDone)
		d.tasks.run(d.opts.IdleInterval, d.uiStop)
	}()

	d.attached = true
	d.acceptInput.Store(true)
	d.log.Info("display %d: attached, surface %dx%d", d.num, width, height)
	return nil
}

// IsAttached reports whether a surface is currently bound.
func (d *Display) IsAttached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// SignalDetach flags the display for teardown without joining anything,
// for callers on latency-sensitive paths. Returns DetachDeferred when a
// plugin instantiation is running: tearing down under it would free
// resources the creation path still uses, so the detach waits for
// EndPluginCreation.
func (d *Display) SignalDetach() DetachStatus {
	d.deferMu.Lock()
	if d.creating.InProgress() {
		d.detachDeferred.Store(true)
		d.deferMu.Unlock()
		d.log.Info("display %d: detach deferred, plugin creation in progress", d.num)
		return DetachDeferred
	}
	d.deferMu.Unlock()
	d.acceptInput.Store(false)
	d.mu.Lock()
	srv := d.srv
	d.mu.Unlock()
	if srv != nil {
		srv.BeginShutdown()
	}
	return DetachDone
}

// DetachSurface performs the full teardown. The order is load-bearing:
// input stops first, the plugin-UI loop joins before the server closes the
// socket (the hosted UI may be mid-request), the render loop joins before
// the surface is released (presenting to a released surface crashes in the
// driver), and the listener closes last.
func (d *Display) DetachSurface() DetachStatus {
	if d.SignalDetach() == DetachDeferred {
		return DetachDeferred
	}

	d.mu.Lock()
	if !d.attached {
		d.mu.Unlock()
		return DetachDone
	}
	srv := d.srv
	surface := d.surface
	d.attached = false
	d.surface = nil
	d.mu.Unlock()

	close(d.uiStop)
	<-d.uiDone

	srv.Shutdown()
	<-d.serverDone
	<-d.renderDone

	if surface != nil {
		surface.Release()
	}
	d.log.Info("display %d: detached", d.num)
	return DetachDone
}

// BeginPluginCreation marks a UI instantiation as in flight. Call on the
// plugin-UI goroutine before touching the hosted library's instantiate
// entry point.
func (d *Display) BeginPluginCreation() {
	d.creating.Begin()
}

// EndPluginCreation ends the in-flight window and executes a deferred
// detach if one arrived meanwhile.
func (d *Display) EndPluginCreation() {
	d.creating.End()
	d.deferMu.Lock()
	deferred := !d.creating.InProgress() && d.detachDeferred.CompareAndSwap(true, false)
	d.deferMu.Unlock()
	if deferred {
		d.log.Info("display %d: running deferred detach", d.num)
		go d.DetachSurface()
	}
}

// InstantiateUI runs ui.Instantiate on the plugin-UI goroutine, wrapped in
// the creation guard, and blocks for the result. On error the caller must
// not use the display for that plugin.
func (d *Display) InstantiateUI(ui plugin.UI, features plugin.Features) error {
	var err error
	d.tasks.PostAndWait(func() {
		d.BeginPluginCreation()
		defer d.EndPluginCreation()
		err = ui.Instantiate(features)
	})
	return errors.Wrapf(err, "instantiate plugin UI on display %d", d.num)
}

// updateGeometry applies one read-modify-write to the shared geometry
// value under the writer lock, so a surface resize and the render loop's
// plugin-size refresh cannot overwrite each other's fields.
func (d *Display) updateGeometry(mutate func(*Geometry)) {
	d.geomMu.Lock()
	g := *d.geom.Load()
	mutate(&g)
	d.geom.Store(&g)
	d.geomMu.Unlock()
}

// SetSurfaceSize updates the surface dimensions after a resize.
func (d *Display) SetSurfaceSize(width, height int) {
	d.updateGeometry(func(g *Geometry) {
		g.SurfaceW, g.SurfaceH = width, height
	})
	d.mu.Lock()
	srv := d.srv
	d.mu.Unlock()
	if srv != nil {
		srv.RequestFrame()
	}
}

// refreshGeometry folds the server's current plugin size into the shared
// geometry value. Called from the render loop each frame.
func (d *Display) refreshGeometry() {
	pw, ph := d.srv.PluginSize()
	if g := d.geom.Load(); g.PluginW == pw && g.PluginH == ph {
		return
	}
	d.updateGeometry(func(g *Geometry) {
		g.PluginW, g.PluginH = pw, ph
	})
}

// Geometry returns the current surface/plugin geometry snapshot.
func (d *Display) Geometry() Geometry {
	return *d.geom.Load()
}

// InjectTouch queues a pointer sample given in surface coordinates. The
// letterbox inverse maps it into plugin space before it reaches the
// server's touch queue. Dropped once a detach has started.
func (d *Display) InjectTouch(action x11.TouchAction, x, y int) {
	if !d.acceptInput.Load() {
		return
	}
	px, py := d.geom.Load().SurfaceToPlugin(x, y)
	d.srv.InjectTouch(action, px, py)
}

// IsWidgetAtPoint reports whether the surface point lands on an actual
// plugin widget rather than the top-level background. The embedding app
// uses this to decide between forwarding a gesture and panning the view.
func (d *Display) IsWidgetAtPoint(x, y int) bool {
	d.mu.Lock()
	srv := d.srv
	attached := d.attached
	d.mu.Unlock()
	if !attached || srv == nil {
		return false
	}
	px, py := d.geom.Load().SurfaceToPlugin(x, y)
	return srv.IsWidgetAt(px, py)
}

// GetPluginSize returns the plugin's natural size, once known.
func (d *Display) GetPluginSize() (w, h int, ok bool) {
	d.mu.Lock()
	srv := d.srv
	d.mu.Unlock()
	if srv == nil {
		return 0, 0, false
	}
	w, h = srv.PluginSize()
	return w, h, w > 0 && h > 0
}

// RequestFrame asks the plugin to repaint and forces another composite
// pass, for when the surface comes back after being hidden.
func (d *Display) RequestFrame() {
	d.mu.Lock()
	srv := d.srv
	d.mu.Unlock()
	if srv != nil {
		srv.ExposeAll()
		srv.RequestFrame()
	}
}

// SetUIScale sets the scale the server reports to size-querying plugins.
// Must be called before the plugin connects to take effect.
func (d *Display) SetUIScale(scale float64) {
	d.mu.Lock()
	srv := d.srv
	d.mu.Unlock()
	if srv != nil {
		srv.SetUIScale(scale)
	}
}

// SetIdleCallback installs the per-iteration callback of the plugin-UI
// loop, typically the hosted UI's idle entry point.
func (d *Display) SetIdleCallback(idle func()) {
	d.tasks.SetIdle(idle)
}

// PostTask runs task on the plugin-UI goroutine, non-blocking.
func (d *Display) PostTask(task func()) {
	d.tasks.Post(task)
}

// PostTaskAndWait runs task on the plugin-UI goroutine and blocks until it
// completes.
func (d *Display) PostTaskAndWait(task func()) {
	d.tasks.PostAndWait(task)
}
