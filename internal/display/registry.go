package display

import (
	"sync"

	"plugview/internal/log"
	"plugview/internal/x11"
)

// Registry is the process-wide display map, keyed by display number. Every
// caller goes through it rather than holding raw *Display pointers: the
// map lock is held across the call, so a display destroyed on one path
// cannot be used after the fact on another. Displays with a deferred
// detach stay in the map — extending their lifetime is what makes the
// deferral safe.
type Registry struct {
	mu       sync.Mutex
	displays map[int]*Display
	log      *log.Logger
	opts     Options
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *log.Logger, opts Options) *Registry {
	return &Registry{
		displays: make(map[int]*Display),
		log:      logger,
		opts:     opts,
	}
}

// GetOrCreate returns the display for num, creating it on first use.
func (r *Registry) GetOrCreate(num int) *Display {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.displays[num]
	if !ok {
		d = New(num, r.log, r.opts)
		r.displays[num] = d
	}
	return d
}

// Get returns the display for num, or nil.
func (r *Registry) Get(num int) *Display {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.displays[num]
}

// Destroy detaches and removes the display for num. If the detach is
// deferred the display stays registered; the deferred detach removes
// nothing, the object just lives on unattached.
func (r *Registry) Destroy(num int) DetachStatus {
	r.mu.Lock()
	d, ok := r.displays[num]
	if !ok {
		r.mu.Unlock()
		return DetachDone
	}
	if d.creating.InProgress() {
		// Leave the entry; deferral needs the object alive.
		r.mu.Unlock()
		return d.SignalDetach()
	}
	delete(r.displays, num)
	r.mu.Unlock()
	return d.DetachSurface()
}

// Shutdown detaches every display.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	nums := make([]int, 0, len(r.displays))
	for num := range r.displays {
		nums = append(nums, num)
	}
	r.mu.Unlock()
	for _, num := range nums {
		r.Destroy(num)
	}
}

// SetUIScale updates the scale for every current display and for displays
// created later.
func (r *Registry) SetUIScale(scale float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.UIScale = scale
	for _, d := range r.displays {
		d.SetUIScale(scale)
	}
}

// The with* helpers run one display method while holding the map lock, so
// the display cannot be destroyed between lookup and call.

// WithInjectTouch queues a touch sample on the display, if it exists.
func (r *Registry) WithInjectTouch(num int, action x11.TouchAction, x, y int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.displays[num]; d != nil {
		d.InjectTouch(action, x, y)
	}
}

// WithRequestFrame forces a composite on the display, if it exists.
func (r *Registry) WithRequestFrame(num int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.displays[num]; d != nil {
		d.RequestFrame()
	}
}

// WithSetSurfaceSize resizes the display's surface, if it exists.
func (r *Registry) WithSetSurfaceSize(num, width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.displays[num]; d != nil {
		d.SetSurfaceSize(width, height)
	}
}

// WithGetPluginSize reads the plugin's natural size, if known.
func (r *Registry) WithGetPluginSize(num int) (w, h int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.displays[num]; d != nil {
		return d.GetPluginSize()
	}
	return 0, 0, false
}

// WithIsWidgetAtPoint hit-tests the surface point, if the display exists.
func (r *Registry) WithIsWidgetAtPoint(num, x, y int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.displays[num]; d != nil {
		return d.IsWidgetAtPoint(x, y)
	}
	return false
}

// WithSetUIScale sets the reported UI scale, if the display exists.
func (r *Registry) WithSetUIScale(num int, scale float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.displays[num]; d != nil {
		d.SetUIScale(scale)
	}
}

// WithPostTask posts to the display's plugin-UI loop. Reports whether the
// display existed.
func (r *Registry) WithPostTask(num int, task func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.displays[num]
	if d == nil {
		return false
	}
	d.PostTask(task)
	return true
}

// WithSetIdleCallback installs the idle callback, if the display exists.
func (r *Registry) WithSetIdleCallback(num int, idle func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d := r.displays[num]; d != nil {
		d.SetIdleCallback(idle)
	}
}
