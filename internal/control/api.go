package control

import (
	"github.com/taskscope/scheduler/internal/scheduling"
)

// Command applies an operator command to the entry for (tenant, taskName).
// Absent entries are ignored (spec.md §4.6).
func (s *Scheduler) Command(tenant, taskName string, code scheduling.Command) {
	key := scheduling.TaskKey{Tenant: tenant, TaskName: taskName}
	entry, ok := s.reg.Get(key)
	if !ok {
		return
	}
	entry.Command(s.now().UTC(), code)
}

// GetSettings returns a clone of the settings for (tenant, taskName), or
// scheduling.NoneSettings if no entry exists.
func (s *Scheduler) GetSettings(tenant, taskName string) scheduling.Settings {
	entry, ok := s.reg.Get(scheduling.TaskKey{Tenant: tenant, TaskName: taskName})
	if !ok {
		return scheduling.NoneSettings
	}
	return entry.Settings()
}

// GetSettingsForTenant returns a clone of every task's settings for tenant,
// keyed by task name.
func (s *Scheduler) GetSettingsForTenant(tenant string) map[string]scheduling.Settings {
	snap := s.reg.SnapshotByTenant(tenant)
	out := make(map[string]scheduling.Settings, len(snap))
	for name, v := range snap {
		out[name] = v.Settings
	}
	return out
}

// GetState returns a clone of the run-state for (tenant, taskName), or
// scheduling.UndefinedState if no entry exists.
func (s *Scheduler) GetState(tenant, taskName string) scheduling.State {
	entry, ok := s.reg.Get(scheduling.TaskKey{Tenant: tenant, TaskName: taskName})
	if !ok {
		return scheduling.UndefinedState
	}
	return entry.State()
}

// GetStates returns a clone of every task's run-state for tenant, keyed by
// task name.
func (s *Scheduler) GetStates(tenant string) map[string]scheduling.State {
	snap := s.reg.SnapshotByTenant(tenant)
	out := make(map[string]scheduling.State, len(snap))
	for name, v := range snap {
		out[name] = v.State
	}
	return out
}

// GetHistory returns the bounded run history for (tenant, taskName), most
// recent last. This is a SPEC_FULL.md supplement beyond spec.md §4.6,
// diagnostic only.
func (s *Scheduler) GetHistory(tenant, taskName string) []HistoryRecord {
	return s.hist.get(scheduling.TaskKey{Tenant: tenant, TaskName: taskName})
}
