package store

import (
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// Registry maps names to stores. Providers that need a store (e.g. the shared log-view backend)
// look it up by the name given in their configuration.
type Registry struct {
	stores *xsync.MapOf[string, IStore]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{stores: xsync.NewMapOf[string, IStore]()}
}

// Register adds a store under name, replacing any store registered before
func (r *Registry) Register(name string, s IStore) {
	r.stores.Store(name, s)
}

// Get returns the store registered under name
func (r *Registry) Get(name string) (IStore, error) {
	s, ok := r.stores.Load(name)
	if !ok {
		return nil, NewError(RetCNotFound, fmt.Sprintf("no store registered as %q", name))
	}
	return s, nil
}

// Names returns the sorted names of all registered stores
func (r *Registry) Names() []string {
	var names []string
	r.stores.Range(func(name string, _ IStore) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
