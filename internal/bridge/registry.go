package bridge

import (
	"sync"
	"sync/atomic"
)

// Registry maps ClosureIDs to interpreter-bound callables.
//
// The registry is the only owner of a stored callable between Register and
// Unregister. Ids start at 1 and are never handed out twice, so a stale id
// can only ever resolve to "not found".
type Registry struct {
	mu       sync.RWMutex
	closures map[ClosureID]any
	nextID   atomic.Uint64
	callable func(any) bool
}

// NewRegistry creates a registry that accepts only values for which
// callable returns true. A nil check accepts any non-nil value.
func NewRegistry(callable func(any) bool) *Registry {
	if callable == nil {
		callable = func(ref any) bool { return ref != nil }
	}
	return &Registry{
		closures: make(map[ClosureID]any),
		callable: callable,
	}
}

// Register stores ref and returns its new id. It returns false, and stores
// nothing, if ref is not callable.
func (r *Registry) Register(ref any) (ClosureID, bool) {
	if !r.callable(ref) {
		return 0, false
	}
	id := ClosureID(r.nextID.Add(1))

	r.mu.Lock()
	r.closures[id] = ref
	r.mu.Unlock()
	return id, true
}

// Unregister drops the callable stored under id. It reports whether the id
// was live; a second call for the same id returns false.
func (r *Registry) Unregister(id ClosureID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.closures[id]; !ok {
		return false
	}
	delete(r.closures, id)
	return true
}

// Lookup returns the callable stored under id.
func (r *Registry) Lookup(id ClosureID) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.closures[id]
	return ref, ok
}

// Contains reports whether id is live.
func (r *Registry) Contains(id ClosureID) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.closures)
}

// IsEmpty reports whether nothing is registered.
func (r *Registry) IsEmpty() bool {
	return r.Len() == 0
}

// Clear drops every registration and returns how many there were. Ids
// issued before Clear stay dead.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.closures)
	r.closures = make(map[ClosureID]any)
	return n
}
