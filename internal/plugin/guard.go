package plugin

import "sync/atomic"

// CreationGuard tracks whether a plugin UI instantiation is in flight on
// the display's plugin-UI goroutine. Teardown paths consult it: detaching
// a display while Instantiate is still running would free resources the
// creation path is using, so the detach defers instead.
type CreationGuard struct {
	inFlight atomic.Int32
}

// Begin marks an instantiation as started.
func (g *CreationGuard) Begin() {
	g.inFlight.Add(1)
}

// End marks an instantiation as finished, successful or not.
func (g *CreationGuard) End() {
	g.inFlight.Add(-1)
}

// InProgress reports whether any instantiation has begun but not ended.
func (g *CreationGuard) InProgress() bool {
	return g.inFlight.Load() > 0
}
