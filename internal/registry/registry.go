// Package registry is the scheduler's concurrent map from (tenant, task)
// to its scheduling.Entry. Together with the control package's run-history
// store it is the scheduler's cross-tenant mutable state (SPEC_FULL.md,
// Concurrency & Resource Model).
package registry

import (
	"sync"
	"time"

	"github.com/taskscope/scheduler/internal/scheduling"
)

// keySeparator must not appear in a tenant id or task name. spec.md §4.3
// flags the source system's bare string concatenation as a collision bug;
// NUL is the fix (tenant/task identifiers are printable strings).
const keySeparator = "\x00"

func composeKey(k scheduling.TaskKey) string {
	return k.Tenant + keySeparator + k.TaskName
}

// Registry is a concurrent TaskKey -> *scheduling.Entry map. Snapshot
// reads return cloned Settings/State; Get and GetOrCreate return the
// *scheduling.Entry itself, whose state changes only through its locked
// methods.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*scheduling.Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*scheduling.Entry)}
}

// Get returns the entry for key, if present.
func (r *Registry) Get(key scheduling.TaskKey) (*scheduling.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[composeKey(key)]
	return e, ok
}

// GetOrCreate returns the existing entry for key, or creates one with
// ReferenceTime = ref if absent. The boolean reports whether a new entry
// was created. Linearisable per key (spec.md §5).
func (r *Registry) GetOrCreate(key scheduling.TaskKey, ref time.Time) (entry *scheduling.Entry, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ck := composeKey(key)
	if e, ok := r.entries[ck]; ok {
		return e, false
	}
	e := scheduling.NewEntry(key, ref)
	r.entries[ck] = e
	return e, true
}

// Remove deletes the entry for key, if present.
func (r *Registry) Remove(key scheduling.TaskKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, composeKey(key))
}

// SnapshotByTenant returns clones of (Settings, State) for every entry
// belonging to tenant, keyed by task name.
func (r *Registry) SnapshotByTenant(tenant string) map[string]struct {
	Settings scheduling.Settings
	State    scheduling.State
} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]struct {
		Settings scheduling.Settings
		State    scheduling.State
	})
	for k, e := range r.entries {
		tk := decomposeKey(k)
		if tk.Tenant != tenant {
			continue
		}
		out[tk.TaskName] = struct {
			Settings scheduling.Settings
			State    scheduling.State
		}{Settings: e.Settings(), State: e.State()}
	}
	return out
}

// SnapshotAll returns every entry's key in the registry.
func (r *Registry) SnapshotAll() []scheduling.TaskKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]scheduling.TaskKey, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, decomposeKey(k))
	}
	return keys
}

// PruneKeeping removes every entry whose key is not in valid.
func (r *Registry) PruneKeeping(valid map[scheduling.TaskKey]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.entries {
		if _, ok := valid[decomposeKey(k)]; !ok {
			delete(r.entries, k)
		}
	}
}

// PruneTenantsNotIn removes every entry whose tenant is not in running
// (spec.md §4.5 tick step 2: prune to entries whose tenant is still
// running, before per-tenant task discovery narrows further).
func (r *Registry) PruneTenantsNotIn(running map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.entries {
		tk := decomposeKey(k)
		if _, ok := running[tk.Tenant]; !ok {
			delete(r.entries, k)
		}
	}
}

// PruneTenantKeeping removes every entry for tenant whose task name is not
// in keepNames (spec.md §4.5 tick step 3.b: narrow to the tenant's
// currently-discovered task types).
func (r *Registry) PruneTenantKeeping(tenant string, keepNames map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.entries {
		tk := decomposeKey(k)
		if tk.Tenant != tenant {
			continue
		}
		if _, ok := keepNames[tk.TaskName]; !ok {
			delete(r.entries, k)
		}
	}
}

func decomposeKey(s string) scheduling.TaskKey {
	for i := 0; i < len(s); i++ {
		if s[i] == keySeparator[0] {
			return scheduling.TaskKey{Tenant: s[:i], TaskName: s[i+1:]}
		}
	}
	return scheduling.TaskKey{Tenant: s}
}
