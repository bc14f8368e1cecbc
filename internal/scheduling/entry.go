// Package scheduling holds the per-(tenant, task) bookkeeping the control
// loop consults and mutates on every tick: a task's settings, its run
// state, and the schedule entry that ties the two together.
package scheduling

import (
	"sync"
	"time"

	"github.com/taskscope/scheduler/internal/cronspec"
)

// Status is the run-state of a scheduler entry.
type Status string

const (
	StatusIdle      Status = "Idle"
	StatusRunning   Status = "Running"
	StatusFaulted   Status = "Faulted"
	StatusDisabled  Status = "Disabled"
	StatusUndefined Status = "Undefined"
)

// TaskKey uniquely identifies a scheduled task within a tenant.
type TaskKey struct {
	Tenant   string
	TaskName string
}

// Settings is an immutable-by-convention snapshot of a task's schedule and
// enablement. Callers receive clones; mutate only through the Entry's
// ApplySettings and Command (Enable/Disable).
type Settings struct {
	Name        string
	Schedule    string
	Enable      bool
	Title       string
	Description string
}

// NoneSettings is the distinguished "no settings found" value.
var NoneSettings = Settings{}

// IsNone reports whether s is the distinguished empty settings value.
func (s Settings) IsNone() bool {
	return s == NoneSettings
}

// Clone returns an independent copy of s.
func (s Settings) Clone() Settings {
	return s
}

// DefaultSettings builds the fallback settings spec.md documents for a task
// with no settings provider response: disabled, default cron cadence.
func DefaultSettings(taskName string) Settings {
	return Settings{
		Name:     taskName,
		Schedule: cronspec.DefaultSchedule,
		Enable:   false,
	}
}

// State is the mutable run-state of a scheduler entry. Callers receive
// clones; mutate only through the Entry methods below.
type State struct {
	Status        Status
	StartedUtc    time.Time
	StoppedUtc    time.Time
	LastException error
	NextStartUtc  time.Time
}

// UndefinedState is returned for keys the registry has no entry for.
var UndefinedState = State{Status: StatusUndefined}

// Clone returns an independent copy of s.
func (s State) Clone() State {
	return s
}

// Command is an operator-issued verb applied synchronously to an entry.
type Command string

const (
	CommandEnable     Command = "Enable"
	CommandDisable    Command = "Disable"
	CommandResetState Command = "ResetState"
	// CommandTrigger makes CanRun skip the schedule check until the entry
	// next runs (enablement and status checks still apply); the command
	// itself does not touch ReferenceTime. It
	// supplements spec.md's three commands (see SPEC_FULL.md) mirroring
	// the teacher's manual "run now" endpoint.
	CommandTrigger Command = "Trigger"
)

// Entry is the scheduler's per-(tenant, task) record: schedule, settings,
// state and the reference time cron occurrences are computed from. All
// mutation happens through its methods, which take the entry's lock; all
// reads external packages perform go through Settings()/State() clones.
type Entry struct {
	Key TaskKey

	mu            sync.Mutex
	referenceTime time.Time
	settings      Settings
	state         State
	triggered     bool
}

// NewEntry creates an entry in its first-observation state: None settings
// and status Undefined; the first ApplySettings with non-None settings
// makes it Idle. ref is the tick start the entry is first observed at.
func NewEntry(key TaskKey, ref time.Time) *Entry {
	e := &Entry{
		Key:           key,
		referenceTime: ref,
		settings:      NoneSettings,
		state:         State{Status: StatusUndefined},
	}
	return e
}

// Settings returns a clone of the entry's current settings.
func (e *Entry) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// State returns a clone of the entry's current state, with NextStartUtc
// recomputed from the live schedule/reference time (spec.md §3: derived
// purely from (Settings.Schedule, ReferenceTime)).
func (e *Entry) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Entry) stateLocked() State {
	st := e.state.Clone()
	if e.settings.Schedule != "" {
		if next, err := cronspec.NextOccurrence(e.settings.Schedule, e.referenceTime); err == nil {
			st.NextStartUtc = next
		}
	}
	return st
}

// ApplySettings adopts new as the entry's settings. If the schedule
// changed, ReferenceTime resets to now first so the new cadence starts
// fresh (spec.md §3/§4.2). If the entry was Undefined and new is non-None,
// it becomes Idle.
func (e *Entry) ApplySettings(now time.Time, next Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if next.Schedule != e.settings.Schedule {
		e.referenceTime = now
	}
	e.settings = next.Clone()

	if e.state.Status == StatusUndefined && !next.IsNone() {
		e.state.Status = StatusIdle
	}
}

// CanRun reports whether the entry is eligible to fire at now: enabled,
// not already running or undefined, and either manually triggered or past
// its next cron occurrence. Faulted entries are admitted deliberately
// (spec.md S6 / §9 open question, resolved in favour of retry-on-next-tick).
func (e *Entry) CanRun(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.settings.Enable {
		return false
	}
	if e.state.Status != StatusIdle && e.state.Status != StatusFaulted {
		return false
	}
	if e.triggered {
		return true
	}
	next, err := cronspec.NextOccurrence(e.settings.Schedule, e.referenceTime)
	if err != nil {
		return false
	}
	return !now.Before(next)
}

// Run transitions the entry to Running and records the start time. Callers
// must have just observed CanRun(now) true for this same now under a
// single logical critical section (the registry/control loop serializes
// this per tenant, see SPEC_FULL.md §5).
func (e *Entry) Run(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = StatusRunning
	e.state.StartedUtc = now
	e.triggered = false
	// Advance the moving reference time (spec.md §1) so the next
	// occurrence is computed forward from this firing, not re-derived
	// from the stale instant the entry was created or last rescheduled
	// at — otherwise a fired entry would immediately be eligible again
	// on the very next tick.
	e.referenceTime = now
}

// Idle transitions the entry back to Idle after a successful DoWork.
func (e *Entry) Idle(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = StatusIdle
	e.state.StoppedUtc = now
	e.state.LastException = nil
}

// Fault transitions the entry to Faulted after a failed DoWork.
func (e *Entry) Fault(now time.Time, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Status = StatusFaulted
	e.state.StoppedUtc = now
	e.state.LastException = err
}

// Command applies an operator command synchronously.
func (e *Entry) Command(now time.Time, code Command) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch code {
	case CommandEnable:
		e.settings.Enable = true
		if e.state.Status == StatusDisabled {
			e.state.Status = StatusIdle
		}
	case CommandDisable:
		e.settings.Enable = false
		e.state.Status = StatusDisabled
	case CommandResetState:
		e.state.Status = StatusIdle
		e.state.LastException = nil
		e.referenceTime = now
	case CommandTrigger:
		e.triggered = true
	}
}
