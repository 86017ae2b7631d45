package permission

import (
	"errors"
	"sync"
)

// Registry maps protected resource names to the numeric resource ids used by
// per-resource permission grants.
//
// Ids are assigned in registration order starting at 1 and are stable for the
// lifetime of the process. A frozen registry is safe for concurrent reads.
type Registry struct {
	mu       sync.RWMutex
	nameToID map[string]int
	idToName map[int]string
	frozen   bool
}

// NewRegistry creates an empty resource [Registry].
func NewRegistry() *Registry {
	return &Registry{
		nameToID: make(map[string]int),
		idToName: make(map[int]string),
	}
}

// Register assigns the next id to the named resource.
// Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	if name == "" {
		return -1, errors.New("resource name cannot be empty")
	}

	if _, exists := r.nameToID[name]; exists {
		return -1, errors.New("resource already registered")
	}

	id := len(r.nameToID) + 1
	r.nameToID[name] = id
	r.idToName[id] = name

	return id, nil
}

// RegisterWithID registers a resource under an id chosen by the caller, for
// hosts whose resource ids come from an existing table.
func (r *Registry) RegisterWithID(name string, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("registry frozen")
	}
	if name == "" {
		return errors.New("resource name cannot be empty")
	}
	if id <= 0 {
		return errors.New("resource id must be > 0")
	}
	if _, exists := r.nameToID[name]; exists {
		return errors.New("resource already registered")
	}
	if _, exists := r.idToName[id]; exists {
		return errors.New("resource id already in use")
	}

	r.nameToID[name] = id
	r.idToName[id] = name
	return nil
}

// ID returns the id for the named resource, or false if not registered.
func (r *Registry) ID(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	return id, ok
}

// Name returns the resource name for the given id, or false if unassigned.
func (r *Registry) Name(id int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.idToName[id]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered resources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToID)
}
