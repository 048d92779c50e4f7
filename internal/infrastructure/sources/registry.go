// Package sources holds the upstream adapters EDIRE pulls from and the
// registry that maps configured source ids to them.
package sources

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

// Registry is an in-memory integration.SourceRegistry
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]integration.SourceAdapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]integration.SourceAdapter)}
}

// Register adds an adapter under its source id
func (r *Registry) Register(adapter integration.SourceAdapter) error {
	id := adapter.SourceID()
	if id == "" {
		return fmt.Errorf("%w: empty source id", integration.ErrSourceNotFound)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[id]; ok {
		return fmt.Errorf("%w: %s", integration.ErrSourceAlreadyRegistered, id)
	}
	r.adapters[id] = adapter
	return nil
}

// Get returns the adapter registered for sourceID
func (r *Registry) Get(sourceID string) (integration.SourceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrSourceNotFound, sourceID)
	}
	return adapter, nil
}

// List returns all adapters ordered by source id
func (r *Registry) List() []integration.SourceAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]integration.SourceAdapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b integration.SourceAdapter) int {
		return strings.Compare(a.SourceID(), b.SourceID())
	})
	return out
}

var _ integration.SourceRegistry = (*Registry)(nil)
