package output

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/gogpu/compositor/geom"
)

// Options are passed to backend factories.
type Options struct {
	// Size is the initial surface size.
	Size geom.Size

	// PartialSwap asks for partial swap support where the backend has it.
	PartialSwap bool

	// Workers is the number of rasterizer goroutines for CPU backends.
	Workers int
}

// Factory creates a surface with the given options.
type Factory func(opts Options) (Surface, error)

// Backend is a registered surface backend.
type Backend struct {
	// Name is the unique identifier of the backend.
	Name string

	// Priority orders backends, higher first. GPU backends use 100, CPU
	// backends 10.
	Priority int

	Factory Factory

	// Available reports whether the backend can run on this system.
	Available func() bool
}

// Errors.
var (
	// ErrNoBackendAvailable is returned when no registered backend is
	// available.
	ErrNoBackendAvailable = errors.New("output: no backend available")
)

// BackendNotFoundError reports a name that is not registered.
type BackendNotFoundError struct {
	Name string
}

func (e *BackendNotFoundError) Error() string {
	return "output: backend not found: " + e.Name
}

// BackendUnavailableError reports a registered backend that cannot run.
type BackendUnavailableError struct {
	Name string
}

func (e *BackendUnavailableError) Error() string {
	return "output: backend unavailable: " + e.Name
}

// Registry holds surface backends.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Backend
}

var globalRegistry = &Registry{}

// NewRegistry returns an empty registry. Most code uses the global
// registry through Register and New.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Backend)}
}

// Register adds a backend to the global registry, replacing one of the same
// name. A nil available means always available.
func Register(name string, priority int, factory Factory, available func() bool) {
	globalRegistry.Register(name, priority, factory, available)
}

// Unregister removes a backend from the global registry.
func Unregister(name string) {
	globalRegistry.Unregister(name)
}

// List returns the registered backend names, highest priority first.
func List() []string {
	return globalRegistry.List()
}

// Available returns the available backend names, highest priority first.
func Available() []string {
	return globalRegistry.Available()
}

// New creates a surface with the best available backend.
func New(opts Options) (Surface, error) {
	return globalRegistry.New(opts)
}

// NewByName creates a surface with the named backend.
func NewByName(name string, opts Options) (Surface, error) {
	return globalRegistry.NewByName(name, opts)
}

// Register adds a backend to r.
func (r *Registry) Register(name string, priority int, factory Factory, available func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		r.entries = make(map[string]*Backend)
	}
	if available == nil {
		available = func() bool { return true }
	}
	r.entries[name] = &Backend{Name: name, Priority: priority, Factory: factory, Available: available}
}

// Unregister removes a backend from r.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// List returns the registered backend names, highest priority first.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames(false)
}

// Available returns the available backend names, highest priority first.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames(true)
}

// Get returns a copy of the named backend.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.entries[name]
	if !ok {
		return Backend{}, false
	}
	return *b, true
}

// New tries the available backends in priority order and returns the first
// surface created.
func (r *Registry) New(opts Options) (Surface, error) {
	r.mu.RLock()
	names := r.sortedNames(true)
	r.mu.RUnlock()

	if len(names) == 0 {
		return nil, ErrNoBackendAvailable
	}
	var errs []error
	for _, name := range names {
		s, err := r.NewByName(name, opts)
		if err == nil {
			return s, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// NewByName creates a surface with the named backend.
func (r *Registry) NewByName(name string, opts Options) (Surface, error) {
	r.mu.RLock()
	b, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &BackendNotFoundError{Name: name}
	}
	if !b.Available() {
		return nil, &BackendUnavailableError{Name: name}
	}
	return b.Factory(opts)
}

// sortedNames must be called with the lock held. Equal priorities sort by
// name.
func (r *Registry) sortedNames(onlyAvailable bool) []string {
	entries := make([]*Backend, 0, len(r.entries))
	for _, b := range r.entries {
		if onlyAvailable && !b.Available() {
			continue
		}
		entries = append(entries, b)
	}
	slices.SortFunc(entries, func(a, b *Backend) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	names := make([]string, len(entries))
	for i, b := range entries {
		names[i] = b.Name
	}
	return names
}
