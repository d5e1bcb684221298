package stage

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe collection of compiled schemas indexed by
// name. The package-level functions operate on a default registry that
// is pre-populated with the built-in profiles.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Schema),
	}
}

// Register adds a compiled schema under its name. Registering a name
// twice is an error.
func (r *Registry) Register(s *Schema) error {
	if s == nil {
		return fmt.Errorf("nil schema")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[s.Name]; exists {
		return fmt.Errorf("schema %q already registered", s.Name)
	}
	r.entries[s.Name] = s
	return nil
}

// MustRegister registers a schema, panicking on error.
func (r *Registry) MustRegister(s *Schema) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns the schema for a name and whether it exists.
func (r *Registry) Get(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.entries[name]
	return s, ok
}

// Has reports whether a schema is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered schema names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered schemas.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// defaultRegistry holds the built-in profiles plus anything registered
// through the package-level Register.
var defaultRegistry = NewRegistry()

// Register adds a schema to the default registry.
func Register(s *Schema) error { return defaultRegistry.Register(s) }

// MustRegister adds a schema to the default registry, panicking on error.
func MustRegister(s *Schema) { defaultRegistry.MustRegister(s) }

// Lookup returns a schema from the default registry.
func Lookup(name string) (*Schema, error) {
	s, ok := defaultRegistry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown schema %q (registered: %v)", name, defaultRegistry.Names())
	}
	return s, nil
}

// MustLookup returns a schema from the default registry, panicking when
// the name is unknown.
func MustLookup(name string) *Schema {
	s, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Profiles returns the names available in the default registry.
func Profiles() []string { return defaultRegistry.Names() }
