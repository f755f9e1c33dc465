package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/use-agent/stealthfetch/models"
)

// Registry maps engine kinds to their adapters.
type Registry struct {
	mu      sync.RWMutex
	engines map[models.EngineKind]Engine
}

// NewRegistry creates a registry holding the given engines.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[models.EngineKind]Engine, len(engines))}
	for _, e := range engines {
		r.Register(e)
	}
	return r
}

// Default returns a registry with all three built-in engines.
func Default(opts ...Option) *Registry {
	return NewRegistry(
		NewRod(opts...),
		NewChromedp(opts...),
		NewChromedpStealth(opts...),
	)
}

// Register adds or replaces an engine.
func (r *Registry) Register(e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[e.Kind()] = e
}

// Lookup returns the engine for kind. A missing engine is an
// ENGINE_UNAVAILABLE error naming the kind.
func (r *Registry) Lookup(kind models.EngineKind) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[kind]
	if !ok {
		return nil, models.NewFetchError(
			models.ErrCodeEngineUnavailable,
			fmt.Sprintf("engine %q is not available", kind),
			nil,
		)
	}
	return e, nil
}

// Kinds lists the registered engines in sorted order.
func (r *Registry) Kinds() []models.EngineKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.EngineKind, 0, len(r.engines))
	for k := range r.engines {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
