package tenanthost

import (
	"context"
	"sort"
	"sync"
)

// MemoryHost is an in-process Host implementation: tenants, their task
// bindings and settings providers are registered directly, with no
// external discovery. Used by the bundled demo (cmd/server) and by
// control-loop tests as a stand-in for a real multi-tenant host.
type MemoryHost struct {
	mu       sync.RWMutex
	shells   map[string]Shell
	tasks    map[string][]Task
	settings map[string][]SettingsProvider
}

// NewMemoryHost returns an empty host.
func NewMemoryHost() *MemoryHost {
	return &MemoryHost{
		shells:   make(map[string]Shell),
		tasks:    make(map[string][]Task),
		settings: make(map[string][]SettingsProvider),
	}
}

// AddTenant registers a running tenant with its task bindings and
// settings providers.
func (h *MemoryHost) AddTenant(id string, tasks []Task, providers []SettingsProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shells[id] = Shell{ID: id, State: TenantRunning}
	h.tasks[id] = tasks
	h.settings[id] = providers
}

// RemoveTenant marks a tenant stopped and released, as a tenant host does
// when a tenant is torn down.
func (h *MemoryHost) RemoveTenant(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.shells[id]; ok {
		s.State = TenantStopped
		s.Released = true
		h.shells[id] = s
	}
}

// SetTasks replaces the task bindings for a running tenant, as happens
// when a tenant's task set changes between ticks.
func (h *MemoryHost) SetTasks(id string, tasks []Task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks[id] = tasks
}

func (h *MemoryHost) ListTenants(ctx context.Context) ([]Shell, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Shell, 0, len(h.shells))
	for _, s := range h.shells {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *MemoryHost) EnterScope(ctx context.Context, tenantID string) (Scope, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return &memoryScope{
		tasks:     append([]Task(nil), h.tasks[tenantID]...),
		providers: append([]SettingsProvider(nil), h.settings[tenantID]...),
	}, nil
}

type memoryScope struct {
	tasks     []Task
	providers []SettingsProvider
}

func (s *memoryScope) Tasks() []Task { return s.tasks }

func (s *memoryScope) Task(name string) (Task, bool) {
	for _, t := range s.tasks {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

func (s *memoryScope) SettingsProviders() []SettingsProvider {
	providers := append([]SettingsProvider(nil), s.providers...)
	sort.Slice(providers, func(i, j int) bool { return providers[i].Order() < providers[j].Order() })
	return providers
}

func (s *memoryScope) Close() {}
