package x11

import "sync"

// atomTable holds the bidirectional name <-> ID mapping backing InternAtom
// and GetAtomName. The table is append-only: atoms live for the lifetime of
// the display and are never reclaimed. IDs start at 1 (0 is None).
type atomTable struct {
	mu     sync.Mutex
	byName map[string]uint32
	byID   map[uint32]string
	next   uint32
}

func newAtomTable() *atomTable {
	return &atomTable{
		byName: make(map[string]uint32),
		byID:   make(map[uint32]string),
		next:   1,
	}
}

// Intern returns the atom ID for name, allocating a new one unless
// onlyIfExists is set. Returns 0 (None) for unknown names when onlyIfExists
// is true, and for empty names.
func (t *atomTable) Intern(name string, onlyIfExists bool) uint32 {
	if name == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id
	}
	if onlyIfExists {
		return 0
	}
	id := t.next
	t.next++
	t.byName[name] = id
	t.byID[id] = name
	return id
}

// Name returns the name of an interned atom, or "" if the ID is unknown.
func (t *atomTable) Name(id uint32) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}
