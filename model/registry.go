package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/chatmesh/core"
)

// Registry is the model-selection collaborator: it resolves models by name.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates a registry pre-populated with models keyed by Info().Name.
func NewRegistry(models ...Model) *Registry {
	r := &Registry{models: make(map[string]Model, len(models))}
	for _, m := range models {
		r.Register(m.Info().Name, m)
	}
	return r
}

// Register adds (or replaces) a model under name. Registering under an
// alias lets several names resolve to the same model.
func (r *Registry) Register(name string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
}

// Get resolves name to a model, failing with core.ErrUnknownModel.
func (r *Registry) Get(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownModel, name)
	}
	return m, nil
}

// Names returns the registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
