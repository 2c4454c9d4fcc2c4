package plugin

import "sync"

// URIDMap maps URIs to stable integer IDs and back. One registry is shared
// process-wide between the DSP and UI sides of every hosted plugin; it is
// injected rather than reached through a package global so tests can run
// isolated instances.
type URIDMap interface {
	// Map returns the ID for uri, allocating one on first use. IDs start
	// at 1; 0 is never a valid ID.
	Map(uri string) uint32

	// Unmap returns the URI for an ID, or "" if the ID was never mapped.
	Unmap(id uint32) string
}

// URIDRegistry is the standard URIDMap: append-only, never reclaimed.
type URIDRegistry struct {
	mu   sync.Mutex
	byID []string
	ids  map[string]uint32
}

// NewURIDRegistry creates an empty registry.
func NewURIDRegistry() *URIDRegistry {
	return &URIDRegistry{ids: make(map[string]uint32)}
}

// Map implements URIDMap.
func (r *URIDRegistry) Map(uri string) uint32 {
	if uri == "" {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[uri]; ok {
		return id
	}
	r.byID = append(r.byID, uri)
	id := uint32(len(r.byID))
	r.ids[uri] = id
	return id
}

// Unmap implements URIDMap.
func (r *URIDRegistry) Unmap(id uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == 0 || int(id) > len(r.byID) {
		return ""
	}
	return r.byID[id-1]
}
