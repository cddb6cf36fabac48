package modules

import (
	"fmt"
	"sync"
)

// Registry keeps modules in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	modules map[string]Module
}

// NewRegistry builds a registry seeded with the given modules.
func NewRegistry(mods ...Module) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module, len(mods))}
	for _, m := range mods {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends a module. Slugs must be unique.
func (r *Registry) Register(m Module) error {
	if m.Slug == "" {
		return fmt.Errorf("%w: slug required", ErrInvalidManifest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[m.Slug]; exists {
		return fmt.Errorf("modules: %s already registered", m.Slug)
	}
	r.order = append(r.order, m.Slug)
	r.modules[m.Slug] = m
	return nil
}

// SetEnabled toggles a registered module.
func (r *Registry) SetEnabled(slug string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.modules[slug]
	if !ok {
		return fmt.Errorf("modules: %s not registered", slug)
	}
	m.Enabled = &enabled
	r.modules[slug] = m
	return nil
}

// EnabledModules returns enabled modules in registration order.
func (r *Registry) EnabledModules() []Module {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, 0, len(r.order))
	for _, slug := range r.order {
		m := r.modules[slug]
		if m.IsEnabled() {
			out = append(out, m)
		}
	}
	return out
}
