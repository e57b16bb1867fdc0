// Package registry implements the per-session operation registry:
// spec.md §3's activeOperations map and §4.B's tryInsert/remove/drainAll
// operations. Modeled on the teacher's subscription.Manager
// (internal/graphql/subscription/manager.go), whose mutex-guarded map is
// the same shape, generalized to hold cancel handles instead of
// event-bus subscriptions.
package registry

import "sync"

// CancelHandle cancels whatever is backing an active operation: the
// subscription executor's response stream, and nothing else. Calling
// Cancel more than once must be safe.
type CancelHandle interface {
	Cancel()
}

// CancelFunc adapts a plain function to a CancelHandle.
type CancelFunc func()

func (f CancelFunc) Cancel() { f() }

// Registry is a per-session map from operation id to its cancel handle.
// All methods are safe for concurrent use, but per spec.md §5 a single
// session's frames are expected to be processed serially by the caller;
// the mutex here guards against the transport delivering frames
// concurrently, not against cross-session sharing (there is none).
type Registry struct {
	mu  sync.Mutex
	ops map[string]CancelHandle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{ops: make(map[string]CancelHandle)}
}

// TryInsert stores handle under id only if id is absent, returning false
// (and leaving the registry unchanged) otherwise. This drives spec.md §3
// invariant #2: a duplicate start is a silent no-op.
func (r *Registry) TryInsert(id string, handle CancelHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ops[id]; exists {
		return false
	}
	r.ops[id] = handle
	return true
}

// Remove deletes and returns the handle for id, or nil if absent.
func (r *Registry) Remove(id string) CancelHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.ops[id]
	if !ok {
		return nil
	}
	delete(r.ops, id)
	return handle
}

// DrainAll removes and returns every active handle, in no particular
// order. Used on connection_terminate.
func (r *Registry) DrainAll() []CancelHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := make([]CancelHandle, 0, len(r.ops))
	for id, handle := range r.ops {
		handles = append(handles, handle)
		delete(r.ops, id)
	}
	return handles
}

// Len reports the number of active operations. Test-only convenience.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}
