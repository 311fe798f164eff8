package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when no plugin is registered under an id.
var ErrNotFound = errors.New("plugin not found")

// ErrDisabled is returned when the resolved plugin is disabled.
var ErrDisabled = errors.New("plugin is disabled")

// Registry maps tool ids to registered plugins and their enabled flags.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	enabled map[string]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		enabled: make(map[string]bool),
	}
}

// Register adds a plugin, enabled by default. Re-registering an id
// replaces the previous plugin.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin: register nil plugin")
	}
	if p.ID() == "" {
		return fmt.Errorf("plugin: register plugin with empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.ID()] = p
	r.enabled[p.ID()] = true
	return nil
}

// Unregister removes a plugin.
func (r *Registry) Unregister(toolID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, toolID)
	delete(r.enabled, toolID)
}

// Resolve returns the plugin behind a tool id, or ErrNotFound /
// ErrDisabled.
func (r *Registry) Resolve(toolID string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[toolID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, toolID)
	}
	if !r.enabled[toolID] {
		return nil, fmt.Errorf("%w: %s", ErrDisabled, toolID)
	}
	return p, nil
}

// SetEnabled flips a plugin's enabled flag. Returns false if unknown.
func (r *Registry) SetEnabled(toolID string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[toolID]; !ok {
		return false
	}
	r.enabled[toolID] = enabled
	return true
}

// IDs returns every registered tool id, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EnabledIDs returns the sorted ids of enabled plugins.
func (r *Registry) EnabledIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for id := range r.plugins {
		if r.enabled[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
