package scheduling

import (
	"errors"
	"testing"
	"time"

	"github.com/taskscope/scheduler/internal/cronspec"
)

func key() TaskKey { return TaskKey{Tenant: "t1", TaskName: "Foo"} }

func TestNewEntryUndefinedUntilSettings(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntry(key(), now)
	if got := e.State().Status; got != StatusUndefined {
		t.Fatalf("status = %v, want Undefined", got)
	}
	if e.CanRun(now) {
		t.Fatal("CanRun should be false with no settings")
	}
}

func TestApplySettingsFirstObservationIdle(t *testing.T) {
	now := time.Now().UTC()
	e := NewEntry(key(), now)
	e.ApplySettings(now, Settings{Name: "Foo", Schedule: "* * * * *", Enable: true})
	if got := e.State().Status; got != StatusIdle {
		t.Fatalf("status = %v, want Idle", got)
	}
}

func TestCanRunRequiresElapsedSchedule(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntry(key(), t0)
	e.ApplySettings(t0, Settings{Name: "Foo", Schedule: "* * * * *", Enable: true})

	if e.CanRun(t0.Add(30 * time.Second)) {
		t.Fatal("CanRun should be false before the minute elapses")
	}
	if !e.CanRun(t0.Add(70 * time.Second)) {
		t.Fatal("CanRun should be true once the minute elapses")
	}
}

func TestRunIdleCycle(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntry(key(), t0)
	e.ApplySettings(t0, Settings{Name: "Foo", Schedule: "* * * * *", Enable: true})

	now := t0.Add(70 * time.Second)
	if !e.CanRun(now) {
		t.Fatal("expected CanRun true")
	}
	e.Run(now)
	if got := e.State().Status; got != StatusRunning {
		t.Fatalf("status = %v, want Running", got)
	}
	if e.CanRun(now) {
		t.Fatal("CanRun should be false while Running")
	}

	e.Idle(now.Add(time.Second))
	st := e.State()
	if st.Status != StatusIdle {
		t.Fatalf("status = %v, want Idle", st.Status)
	}
	if st.LastException != nil {
		t.Fatalf("LastException = %v, want nil", st.LastException)
	}
}

func TestFaultThenRecover(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntry(key(), t0)
	e.ApplySettings(t0, Settings{Name: "Foo", Schedule: "* * * * *", Enable: true})

	now := t0.Add(70 * time.Second)
	e.Run(now)
	boom := errors.New("boom")
	e.Fault(now, boom)

	st := e.State()
	if st.Status != StatusFaulted {
		t.Fatalf("status = %v, want Faulted", st.Status)
	}
	if st.LastException != boom {
		t.Fatalf("LastException = %v, want boom", st.LastException)
	}

	// S6: CanRun admits Faulted entries on the next tick.
	next := now.Add(70 * time.Second)
	if !e.CanRun(next) {
		t.Fatal("CanRun should admit a Faulted entry")
	}
	e.Run(next)
	e.Idle(next.Add(time.Second))
	st = e.State()
	if st.Status != StatusIdle || st.LastException != nil {
		t.Fatalf("expected recovered Idle state with no exception, got %+v", st)
	}
}

func TestDisableIsSticky(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntry(key(), t0)
	e.ApplySettings(t0, Settings{Name: "Foo", Schedule: "* * * * *", Enable: true})

	e.Command(t0, CommandDisable)
	now := t0.Add(5 * time.Minute)
	if e.CanRun(now) {
		t.Fatal("CanRun should be false after Disable")
	}
	if got := e.State().Status; got != StatusDisabled {
		t.Fatalf("status = %v, want Disabled", got)
	}

	e.Command(now, CommandEnable)
	if got := e.State().Status; got != StatusIdle {
		t.Fatalf("status after Enable = %v, want Idle", got)
	}
	if !e.CanRun(now) {
		t.Fatal("CanRun should be true again after Enable")
	}
}

func TestScheduleChangeResetsReference(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntry(key(), t0)
	e.ApplySettings(t0, Settings{Name: "Foo", Schedule: "*/5 * * * *", Enable: true})

	changeAt := t0.Add(60 * time.Second)
	e.ApplySettings(changeAt, Settings{Name: "Foo", Schedule: "* * * * *", Enable: true})

	want, err := cronspec.NextOccurrence("* * * * *", changeAt)
	if err != nil {
		t.Fatal(err)
	}
	got := e.State().NextStartUtc
	if !got.Equal(want) {
		t.Fatalf("NextStartUtc = %v, want %v", got, want)
	}
}

func TestResetStateClearsFaultAndReference(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEntry(key(), t0)
	e.ApplySettings(t0, Settings{Name: "Foo", Schedule: "* * * * *", Enable: true})
	now := t0.Add(70 * time.Second)
	e.Run(now)
	e.Fault(now, errors.New("boom"))

	resetAt := now.Add(2 * time.Minute)
	e.Command(resetAt, CommandResetState)
	st := e.State()
	if st.Status != StatusIdle {
		t.Fatalf("status = %v, want Idle", st.Status)
	}
	if st.LastException != nil {
		t.Fatal("expected LastException cleared")
	}
	want, err := cronspec.NextOccurrence("* * * * *", resetAt)
	if err != nil {
		t.Fatal(err)
	}
	if !st.NextStartUtc.Equal(want) {
		t.Fatalf("NextStartUtc = %v, want %v (reference reset to %v)", st.NextStartUtc, want, resetAt)
	}
}
