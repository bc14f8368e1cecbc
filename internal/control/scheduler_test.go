package control

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskscope/scheduler/internal/scheduling"
	"github.com/taskscope/scheduler/internal/tenanthost"
)

// fakeTask is a minimal tenanthost.Task for tests; work is injected so
// different scenarios can observe/control invocation.
type fakeTask struct {
	name     string
	schedule string
	work     func(ctx context.Context) error
	calls    atomic.Int32
}

func (t *fakeTask) Name() string           { return t.name }
func (t *fakeTask) DefaultSchedule() string { return t.schedule }
func (t *fakeTask) DoWork(ctx context.Context, _ tenanthost.Scope) error {
	t.calls.Add(1)
	if t.work != nil {
		return t.work(ctx)
	}
	return nil
}

// fakeProvider always returns the same settings for any task name.
type fakeProvider struct {
	order    int
	settings tenanthost.Settings
	has      bool
}

func (p *fakeProvider) Order() int { return p.order }
func (p *fakeProvider) GetSettings(ctx context.Context, taskName string) (tenanthost.Settings, bool, error) {
	if !p.has {
		return tenanthost.Settings{}, false, nil
	}
	s := p.settings
	s.Name = taskName
	return s, true, nil
}

// testClock is a manually-advanced clock for deterministic cron-boundary
// assertions, avoiding any dependence on the real wall clock's position
// within the current minute.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestBasicFiringTick(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	task := &fakeTask{name: "Foo", schedule: "* * * * *"}
	provider := &fakeProvider{order: 0, has: true, settings: tenanthost.Settings{Schedule: "* * * * *", Enable: true}}
	host.AddTenant("t1", []tenanthost.Task{task}, []tenanthost.SettingsProvider{provider})

	clock := newTestClock()
	sched := New(host, Config{PollingTime: time.Minute, MinIdleTime: time.Second, MaxParallelism: 4})
	sched.SetClock(clock.now)

	sched.tick(context.Background(), clock.now())
	if task.calls.Load() != 0 {
		t.Fatalf("should not fire before a minute elapses, calls=%d", task.calls.Load())
	}

	clock.advance(70 * time.Second)
	sched.tick(context.Background(), clock.now())
	if task.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", task.calls.Load())
	}
	st := sched.GetState("t1", "Foo")
	if st.Status != scheduling.StatusIdle {
		t.Fatalf("status = %v, want Idle", st.Status)
	}
	if st.LastException != nil {
		t.Fatalf("LastException = %v, want nil", st.LastException)
	}
}

func TestDisableEnableTick(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	task := &fakeTask{name: "Foo", schedule: "* * * * *"}
	provider := &fakeProvider{order: 0, has: true, settings: tenanthost.Settings{Schedule: "* * * * *", Enable: true}}
	host.AddTenant("t1", []tenanthost.Task{task}, []tenanthost.SettingsProvider{provider})

	clock := newTestClock()
	sched := New(host, Config{PollingTime: time.Minute, MinIdleTime: time.Second, MaxParallelism: 4})
	sched.SetClock(clock.now)

	sched.tick(context.Background(), clock.now())
	clock.advance(70 * time.Second)
	sched.tick(context.Background(), clock.now())
	if task.calls.Load() != 1 {
		t.Fatalf("expected initial firing, calls=%d", task.calls.Load())
	}

	sched.Command("t1", "Foo", scheduling.CommandDisable)
	if sched.GetState("t1", "Foo").Status != scheduling.StatusDisabled {
		t.Fatal("expected Disabled after Command(Disable)")
	}

	for i := 0; i < 5; i++ {
		clock.advance(time.Minute)
		sched.tick(context.Background(), clock.now())
	}
	if task.calls.Load() != 1 {
		t.Fatalf("task fired while disabled: calls=%d", task.calls.Load())
	}

	sched.Command("t1", "Foo", scheduling.CommandEnable)
	if sched.GetState("t1", "Foo").Status != scheduling.StatusIdle {
		t.Fatal("expected Idle after Command(Enable)")
	}
	clock.advance(time.Minute)
	sched.tick(context.Background(), clock.now())
	if task.calls.Load() != 2 {
		t.Fatalf("expected re-firing after Enable, calls=%d", task.calls.Load())
	}
}

func TestTenantRemovalPrunesTick(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	task := &fakeTask{name: "X", schedule: "* * * * *"}
	provider := &fakeProvider{order: 0, has: true, settings: tenanthost.Settings{Schedule: "* * * * *", Enable: true}}
	host.AddTenant("t2", []tenanthost.Task{task}, []tenanthost.SettingsProvider{provider})

	clock := newTestClock()
	sched := New(host, Config{PollingTime: time.Minute, MinIdleTime: time.Second, MaxParallelism: 4})
	sched.SetClock(clock.now)

	sched.tick(context.Background(), clock.now())
	clock.advance(70 * time.Second)
	sched.tick(context.Background(), clock.now())
	if task.calls.Load() != 1 {
		t.Fatalf("expected initial firing, calls=%d", task.calls.Load())
	}

	host.RemoveTenant("t2")
	clock.advance(70 * time.Second)
	sched.tick(context.Background(), clock.now())

	if states := sched.GetStates("t2"); len(states) != 0 {
		t.Fatalf("expected no states for removed tenant, got %v", states)
	}
	if got := sched.GetState("t2", "X").Status; got != scheduling.StatusUndefined {
		t.Fatalf("status = %v, want Undefined", got)
	}
}

func TestFaultThenRecoverTick(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	fail := true
	task := &fakeTask{name: "Foo", schedule: "* * * * *", work: func(ctx context.Context) error {
		if fail {
			fail = false
			return errors.New("boom")
		}
		return nil
	}}
	provider := &fakeProvider{order: 0, has: true, settings: tenanthost.Settings{Schedule: "* * * * *", Enable: true}}
	host.AddTenant("t1", []tenanthost.Task{task}, []tenanthost.SettingsProvider{provider})

	clock := newTestClock()
	sched := New(host, Config{PollingTime: time.Minute, MinIdleTime: time.Second, MaxParallelism: 4})
	sched.SetClock(clock.now)

	sched.tick(context.Background(), clock.now())
	clock.advance(70 * time.Second)
	sched.tick(context.Background(), clock.now())

	st := sched.GetState("t1", "Foo")
	if st.Status != scheduling.StatusFaulted {
		t.Fatalf("status = %v, want Faulted", st.Status)
	}
	if st.LastException == nil {
		t.Fatal("expected LastException set")
	}

	// S6: CanRun admits a Faulted entry on the next tick.
	clock.advance(time.Minute)
	sched.tick(context.Background(), clock.now())
	st = sched.GetState("t1", "Foo")
	if st.Status != scheduling.StatusIdle {
		t.Fatalf("status after recovery = %v, want Idle", st.Status)
	}
	if st.LastException != nil {
		t.Fatal("expected LastException cleared on recovery")
	}
	if task.calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", task.calls.Load())
	}
}

func TestFaultContainmentTick(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	taskA := &fakeTask{name: "A", schedule: "* * * * *", work: func(ctx context.Context) error {
		return errors.New("A always fails")
	}}
	taskB := &fakeTask{name: "B", schedule: "* * * * *"}
	provider := &fakeProvider{order: 0, has: true, settings: tenanthost.Settings{Schedule: "* * * * *", Enable: true}}
	host.AddTenant("t1", []tenanthost.Task{taskA, taskB}, []tenanthost.SettingsProvider{provider})

	clock := newTestClock()
	sched := New(host, Config{PollingTime: time.Minute, MinIdleTime: time.Second, MaxParallelism: 4})
	sched.SetClock(clock.now)

	sched.tick(context.Background(), clock.now())
	clock.advance(70 * time.Second)
	sched.tick(context.Background(), clock.now())

	if taskB.calls.Load() != 1 {
		t.Fatalf("task B should have been attempted, calls=%d", taskB.calls.Load())
	}
	if sched.GetState("t1", "A").Status != scheduling.StatusFaulted {
		t.Fatal("expected task A Faulted")
	}
	if sched.GetState("t1", "B").Status != scheduling.StatusIdle {
		t.Fatal("task B should not be affected by task A's fault")
	}
}

func TestScheduleChangeResetsNextTick(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	task := &fakeTask{name: "Foo", schedule: "*/5 * * * *"}
	provider := &fakeProvider{order: 0, has: true, settings: tenanthost.Settings{Schedule: "*/5 * * * *", Enable: true}}
	host.AddTenant("t1", []tenanthost.Task{task}, []tenanthost.SettingsProvider{provider})

	clock := newTestClock()
	sched := New(host, Config{PollingTime: time.Minute, MinIdleTime: time.Second, MaxParallelism: 4})
	sched.SetClock(clock.now)

	sched.tick(context.Background(), clock.now())
	clock.advance(60 * time.Second)
	sched.tick(context.Background(), clock.now())
	if task.calls.Load() != 0 {
		t.Fatalf("every-5-minutes task should not fire within 60s of creation, calls=%d", task.calls.Load())
	}

	provider.settings.Schedule = "* * * * *"
	clock.advance(time.Second)
	sched.tick(context.Background(), clock.now())
	if task.calls.Load() != 0 {
		t.Fatalf("schedule change should reset the reference time, not fire immediately, calls=%d", task.calls.Load())
	}

	clock.advance(60 * time.Second)
	sched.tick(context.Background(), clock.now())
	if task.calls.Load() != 1 {
		t.Fatalf("task should fire once the relaxed schedule elapses, calls=%d", task.calls.Load())
	}
}

func TestWaitForNextTickHonoursPollingTime(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	sched := New(host, Config{PollingTime: 80 * time.Millisecond, MinIdleTime: 10 * time.Millisecond, MaxParallelism: 1})

	start := time.Now()
	if err := sched.waitForNextTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("waitForNextTick: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 70*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestWaitForNextTickShortensOnUpdate(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	sched := New(host, Config{PollingTime: 5 * time.Second, MinIdleTime: 30 * time.Millisecond, MaxParallelism: 1})

	sched.UpdateAsync()
	start := time.Now()
	if err := sched.waitForNextTick(context.Background(), time.Now()); err != nil {
		t.Fatalf("waitForNextTick: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Fatalf("update signal did not shorten wait: %v", elapsed)
	}
}

func TestBootstrapWaitsForRunningTenant(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	sched := New(host, Config{PollingTime: time.Minute, MinIdleTime: 20 * time.Millisecond, MaxParallelism: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		host.AddTenant("t1", nil, nil)
	}()

	done := make(chan error, 1)
	go func() { done <- sched.bootstrap(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("bootstrap: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bootstrap did not return after tenant appeared")
	}
}

func TestBoundedParallelism(t *testing.T) {
	host := tenanthost.NewMemoryHost()
	var concurrent atomic.Int32
	var maxSeen atomic.Int32
	var totalCalls atomic.Int32
	for i := 0; i < 10; i++ {
		task := &fakeTask{name: "Slow", schedule: "* * * * *", work: func(ctx context.Context) error {
			totalCalls.Add(1)
			n := concurrent.Add(1)
			defer concurrent.Add(-1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return nil
		}}
		provider := &fakeProvider{order: 0, has: true, settings: tenanthost.Settings{Schedule: "* * * * *", Enable: true}}
		host.AddTenant(tenantName(i), []tenanthost.Task{task}, []tenanthost.SettingsProvider{provider})
	}

	clock := newTestClock()
	sched := New(host, Config{PollingTime: time.Minute, MinIdleTime: time.Second, MaxParallelism: 3})
	sched.SetClock(clock.now)

	sched.tick(context.Background(), clock.now())
	clock.advance(70 * time.Second)
	sched.tick(context.Background(), clock.now())

	if totalCalls.Load() != 10 {
		t.Fatalf("expected all 10 tenants' tasks to fire, got %d", totalCalls.Load())
	}
	if maxSeen.Load() > 3 {
		t.Fatalf("observed %d concurrent DoWork invocations, want <= 3", maxSeen.Load())
	}
}

func tenantName(i int) string {
	return "tenant-" + string(rune('a'+i))
}
