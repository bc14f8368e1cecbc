// Package control implements the scheduler's control loop (spec.md C5)
// and the public query/command API built on top of it (C6). It is the
// only package that drives registry mutation and task invocation end to
// end; everything else (cronspec, scheduling, registry, tenanthost) is
// passive machinery this package wires together.
package control

import (
	"context"
	"log"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskscope/scheduler/internal/registry"
	"github.com/taskscope/scheduler/internal/scheduling"
	"github.com/taskscope/scheduler/internal/tenanthost"
)

// Config carries the three knobs spec.md §6 names.
type Config struct {
	// PollingTime is the maximum time between ticks. Default 60s.
	PollingTime time.Duration
	// MinIdleTime is the minimum time between ticks, and the bootstrap
	// retry interval while no tenant is running. Default 10s.
	MinIdleTime time.Duration
	// MaxParallelism bounds concurrent per-tenant fan-out. Default
	// min(runtime.NumCPU(), 8).
	MaxParallelism int
}

// WithDefaults fills any zero fields of c with spec.md §6's defaults.
func (c Config) WithDefaults() Config {
	if c.PollingTime <= 0 {
		c.PollingTime = 60 * time.Second
	}
	if c.MinIdleTime <= 0 {
		c.MinIdleTime = 10 * time.Second
	}
	if c.MaxParallelism <= 0 {
		c.MaxParallelism = runtime.NumCPU()
		if c.MaxParallelism > 8 {
			c.MaxParallelism = 8
		}
	}
	return c
}

// Scheduler drives the tick loop described in spec.md §4.5 and exposes the
// query/command API of §4.6. Construct with New and run with Run; the
// query/command methods are safe to call concurrently with Run, while
// SetLogger and SetClock must be called before Run starts.
type Scheduler struct {
	host tenanthost.Host
	reg  *registry.Registry
	hist *historyStore
	cfg  Config
	log  *log.Logger

	isRunning atomic.Bool
	updateCh  chan struct{}

	// now is the clock used for entry bookkeeping (settings application,
	// Run/Idle/Fault timestamps). Defaults to time.Now; overridable so
	// tests can exercise cron-minute-boundary logic deterministically
	// instead of depending on the real wall clock's position within the
	// current minute.
	now func() time.Time
}

// New constructs a Scheduler against host, ready to Run.
func New(host tenanthost.Host, cfg Config) *Scheduler {
	return &Scheduler{
		host:     host,
		reg:      registry.New(),
		hist:     newHistoryStore(),
		cfg:      cfg.WithDefaults(),
		log:      log.Default(),
		updateCh: make(chan struct{}, 1),
		now:      time.Now,
	}
}

// SetLogger overrides the default *log.Logger (log.Default()).
func (s *Scheduler) SetLogger(l *log.Logger) { s.log = l }

// SetClock overrides the clock used for entry bookkeeping. Intended for
// tests that need deterministic cron-minute-boundary behaviour.
func (s *Scheduler) SetClock(f func() time.Time) { s.now = f }

// IsRunning reflects whether bootstrap has completed: at least one
// tenant has been observed running since Run started.
func (s *Scheduler) IsRunning() bool { return s.isRunning.Load() }

// UpdateAsync raises the update signal so the control loop's inter-tick
// wait ends early, once spec.md §4.5's minimum idle time has passed. It
// never blocks.
func (s *Scheduler) UpdateAsync() {
	select {
	case s.updateCh <- struct{}{}:
	default:
	}
}

// Run drives the control loop until ctx is cancelled. It bootstraps
// (waiting for at least one running tenant), then ticks indefinitely.
// Per-task errors never escape this method; the only way it returns is
// ctx cancellation, in which case it returns ctx.Err() after draining the
// in-flight tick.
func (s *Scheduler) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.log.Println("control: stopping")
	})
	defer stop()

	if err := s.bootstrap(ctx); err != nil {
		s.isRunning.Store(false)
		return err
	}
	s.isRunning.Store(true)
	defer s.isRunning.Store(false)

	tickStart := time.Now().UTC()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.tick(ctx, tickStart)

		next := time.Now().UTC()
		if err := s.waitForNextTick(ctx, next); err != nil {
			return err
		}
		tickStart = time.Now().UTC()
	}
}

// bootstrap blocks until at least one tenant is Running, polling every
// MinIdleTime. A host error or empty/transient result is treated as "no
// tenants this tick" and bootstrap simply continues (spec.md §7
// HostTransient).
func (s *Scheduler) bootstrap(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		shells, err := s.host.ListTenants(ctx)
		if err != nil {
			s.log.Printf("control: bootstrap: list tenants: %v", err)
		} else if anyRunning(shells) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.MinIdleTime):
		}
	}
}

func anyRunning(shells []tenanthost.Shell) bool {
	for _, s := range shells {
		if s.State == tenanthost.TenantRunning {
			return true
		}
	}
	return false
}

// tick is one iteration of the control loop: spec.md §4.5 steps 1-3.
func (s *Scheduler) tick(ctx context.Context, tickStart time.Time) {
	shells, err := s.host.ListTenants(ctx)
	if err != nil {
		s.log.Printf("control: list tenants: %v", err)
		return
	}

	running := make([]tenanthost.Shell, 0, len(shells))
	runningTenants := make(map[string]struct{}, len(shells))
	for _, sh := range shells {
		if sh.State == tenanthost.TenantRunning && !sh.Released {
			running = append(running, sh)
			runningTenants[sh.ID] = struct{}{}
		}
	}

	s.reg.PruneTenantsNotIn(runningTenants)

	sem := make(chan struct{}, s.cfg.MaxParallelism)
	var wg sync.WaitGroup
	for _, shell := range running {
		if ctx.Err() != nil {
			break
		}
		shell := shell
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.runTenant(ctx, shell, tickStart)
		}()
	}
	wg.Wait()

	valid := make(map[scheduling.TaskKey]struct{})
	for _, k := range s.reg.SnapshotAll() {
		valid[k] = struct{}{}
	}
	s.hist.prune(valid)
}

// runTenant processes every task for one tenant, sequentially, as spec.md
// §5 requires (two tasks on the same tenant must never collide in the
// tenant's service scope).
func (s *Scheduler) runTenant(ctx context.Context, shell tenanthost.Shell, tickStart time.Time) {
	if shell.Released || ctx.Err() != nil {
		return
	}

	scope, err := s.host.EnterScope(ctx, shell.ID)
	if err != nil {
		s.log.Printf("control: tenant %s: enter scope: %v", shell.ID, err)
		return
	}
	defer scope.Close()

	tasks := scope.Tasks()
	keep := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		keep[t.Name()] = struct{}{}
	}
	s.reg.PruneTenantKeeping(shell.ID, keep)

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name() < tasks[j].Name() })

	taskCtx := withTenantContext(ctx, TenantContext{
		TenantID:         shell.ID,
		RequestURLHost:   shell.RequestURLHost,
		RequestURLPrefix: shell.RequestURLPrefix,
		IsBackground:     true,
	})

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		s.runTask(taskCtx, scope, shell.ID, task, tickStart)
	}
}

func (s *Scheduler) runTask(ctx context.Context, scope tenanthost.Scope, tenantID string, task tenanthost.Task, tickStart time.Time) {
	key := scheduling.TaskKey{Tenant: tenantID, TaskName: task.Name()}
	entry, _ := s.reg.GetOrCreate(key, tickStart)

	settings := s.resolveSettings(ctx, scope, task)
	entry.ApplySettings(s.now().UTC(), settings)

	now := s.now().UTC()
	if !entry.CanRun(now) {
		return
	}

	s.log.Printf("control: tenant %s task %s: start", tenantID, task.Name())
	entry.Run(now)

	err := task.DoWork(ctx, scope)
	finished := s.now().UTC()

	s.hist.record(key, HistoryRecord{StartedUtc: now, StoppedUtc: finished, Err: err})

	if err != nil {
		entry.Fault(finished, err)
		s.log.Printf("control: tenant %s task %s: error: %v", tenantID, task.Name(), err)
		return
	}
	entry.Idle(finished)
	s.log.Printf("control: tenant %s task %s: finished", tenantID, task.Name())
}

// resolveSettings consults the tenant's settings providers in ascending
// Order, returning the first non-None response, or the documented default
// (spec.md §4.5 step 3.d).
func (s *Scheduler) resolveSettings(ctx context.Context, scope tenanthost.Scope, task tenanthost.Task) scheduling.Settings {
	for _, provider := range scope.SettingsProviders() {
		got, ok, err := provider.GetSettings(ctx, task.Name())
		if err != nil {
			s.log.Printf("control: settings provider order=%d task=%s: %v", provider.Order(), task.Name(), err)
			continue
		}
		if !ok {
			continue
		}
		return scheduling.Settings{
			Name:        got.Name,
			Schedule:    got.Schedule,
			Enable:      got.Enable,
			Title:       got.Title,
			Description: got.Description,
		}
	}
	def := scheduling.DefaultSettings(task.Name())
	if sched := task.DefaultSchedule(); sched != "" {
		def.Schedule = sched
	}
	return def
}

// waitForNextTick waits until both PollingTime since the last tick and a
// fresh MinIdleTime since the update signal (or start of the wait) have
// elapsed, polling once a second for a released/changed tenant set to
// raise the update signal early (spec.md §4.5 step 4).
func (s *Scheduler) waitForNextTick(ctx context.Context, tickStart time.Time) error {
	deadline := tickStart.Add(s.cfg.PollingTime)
	minIdleDeadline := time.Now().Add(s.cfg.MinIdleTime)
	updateRequested := false

	lastShells, _ := s.host.ListTenants(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		now := time.Now()
		minIdleDone := now.After(minIdleDeadline) || now.Equal(minIdleDeadline)
		if minIdleDone && (now.After(deadline) || now.Equal(deadline)) {
			return nil
		}
		if updateRequested && minIdleDone {
			return nil
		}

		wake := minIdleDeadline
		if !updateRequested && deadline.After(wake) {
			wake = deadline
		}
		timer := time.NewTimer(wake.Sub(now))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-s.updateCh:
			if !updateRequested {
				updateRequested = true
				minIdleDeadline = time.Now().Add(s.cfg.MinIdleTime)
			}
		case <-ticker.C:
			shells, err := s.host.ListTenants(ctx)
			if err == nil {
				if tenantSetChanged(lastShells, shells) && !updateRequested {
					updateRequested = true
					minIdleDeadline = time.Now().Add(s.cfg.MinIdleTime)
				}
				lastShells = shells
			}
		}
		timer.Stop()
	}
}

func tenantSetChanged(a, b []tenanthost.Shell) bool {
	countRunning := func(shells []tenanthost.Shell) int {
		n := 0
		for _, s := range shells {
			if s.State == tenanthost.TenantRunning && !s.Released {
				n++
			}
		}
		return n
	}
	if countRunning(a) != countRunning(b) {
		return true
	}
	released := func(shells []tenanthost.Shell) bool {
		for _, s := range shells {
			if s.Released {
				return true
			}
		}
		return false
	}
	return released(b) && !released(a)
}
