package provider

import (
	"sync"

	"github.com/mixelka/unibox/pkg/models"
)

// Registry indexes adapters by platform. New platforms register here
// without the sync or reply paths changing.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Platform]Adapter
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Platform]Adapter)}
}

// Register adds or replaces the adapter for its platform
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get returns the adapter for a platform
func (r *Registry) Get(p models.Platform) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// Platforms lists every registered platform
func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
