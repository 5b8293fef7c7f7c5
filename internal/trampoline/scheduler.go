package trampoline

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"trampoline/internal/trace"
)

// Pacing controls what the loop does in a round where no task is ready.
type Pacing uint8

const (
	// PacingSpin starts the next round immediately.
	PacingSpin Pacing = iota
	// PacingSleep sleeps on the clock until the earliest timer deadline,
	// capped by Config.IdleQuantum.
	PacingSleep
)

func (p Pacing) String() string {
	switch p {
	case PacingSpin:
		return "spin"
	case PacingSleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// ParsePacing converts a string to a Pacing.
func ParsePacing(s string) (Pacing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "spin":
		return PacingSpin, nil
	case "sleep":
		return PacingSleep, nil
	default:
		return PacingSpin, fmt.Errorf("invalid pacing: %q (expected: spin|sleep)", s)
	}
}

const (
	// DefaultIdleQuantum caps a single idle sleep.
	DefaultIdleQuantum = 10 * time.Millisecond
	// DefaultSnapshotEvery is the minimum clock time between snapshots when
	// the task set does not change.
	DefaultSnapshotEvery = 250 * time.Millisecond
)

// Config configures a Scheduler. The zero value is usable.
type Config struct {
	// RunID tags snapshots.
	RunID string
	// Clock drives timers and pacing. Defaults to a RealClock.
	Clock Clock
	// Tracer receives scheduler diagnostics. Defaults to trace.Nop.
	Tracer trace.Tracer
	// SyncInterval is the housekeeping period. Defaults to DefaultSyncInterval.
	SyncInterval time.Duration
	// Flushers are flushed by the housekeeping task.
	Flushers []Flusher
	// DiskSync commits file system buffers after flushing. Defaults to the
	// platform sync.
	DiskSync func() error
	// Pacing selects idle behaviour.
	Pacing Pacing
	// IdleQuantum caps an idle sleep. Defaults to DefaultIdleQuantum.
	IdleQuantum time.Duration
	// SnapshotEvery throttles snapshots. Defaults to DefaultSnapshotEvery.
	SnapshotEvery time.Duration
	// Status, when set, receives non-blocking notifications.
	Status chan<- Status
}

// Scheduler owns the live tasks and runs scheduling rounds. It is not safe
// for concurrent use, except for Snapshot and the spawn queue.
type Scheduler struct {
	cfg    Config
	ctx    *Context
	queue  *SpawnQueue
	tasks  []*Task
	nextID TaskID
	round  uint64
	closed bool
	fault  error

	active     string
	activeID   TaskID
	snap       atomic.Pointer[Snapshot]
	lastSnapMs uint64
	dirty      bool
}

// New builds a scheduler with the built-in "sync" housekeeping task already
// live.
func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = trace.Nop
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.DiskSync == nil {
		cfg.DiskSync = syncDisk
	}
	if cfg.IdleQuantum <= 0 {
		cfg.IdleQuantum = DefaultIdleQuantum
	}
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = DefaultSnapshotEvery
	}
	queue := &SpawnQueue{}
	s := &Scheduler{
		cfg:    cfg,
		queue:  queue,
		nextID: 1,
		dirty:  true,
		ctx: &Context{
			clock:  cfg.Clock,
			tracer: cfg.Tracer,
			queue:  queue,
			table:  NewAnnotations(),
		},
	}
	hk := housekeeping(cfg.SyncInterval, cfg.Flushers, cfg.DiskSync)
	s.tasks = append(s.tasks, s.newTask(SpawnRequest{Name: "sync", Func: hk}))
	s.snap.Store(&Snapshot{RunID: cfg.RunID})
	return s
}

// Context returns the ambient context handed to routines.
func (s *Scheduler) Context() *Context { return s.ctx }

// Queue returns the spawn queue.
func (s *Scheduler) Queue() *SpawnQueue { return s.queue }

// Spawn queues a named task; it first runs in the round after the next drain.
func (s *Scheduler) Spawn(name string, fn Func, args ...any) {
	s.queue.SubmitNamed(name, fn, args, nil)
}

// Tasks returns the live tasks in resume order.
func (s *Scheduler) Tasks() []*Task {
	return slices.Clone(s.tasks)
}

// Round returns the number of rounds run so far.
func (s *Scheduler) Round() uint64 { return s.round }

// Snapshot returns the most recently published state.
func (s *Scheduler) Snapshot() Snapshot {
	return *s.snap.Load()
}

// Step runs one scheduling round. A returned error is a task fault; the
// scheduler refuses further rounds afterwards.
func (s *Scheduler) Step() (stats RoundStats, err error) {
	if s.closed {
		return stats, ErrClosed
	}
	if s.fault != nil {
		return stats, s.fault
	}
	s.round++
	stats.Round = s.round

	span := trace.Begin(s.cfg.Tracer, trace.ScopeRound, "round", 0)
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: s.active, ID: s.activeID, Value: r, Stack: debug.Stack()}
		}
		s.ctx.reset()
		if err != nil {
			s.fault = err
			span.WithExtra("error", err.Error())
		}
		if s.cfg.Tracer.Enabled() {
			span.End(fmt.Sprintf("resumed=%d live=%d", stats.Resumed, stats.Live))
		}
	}()

	// 1. resume
	for i, t := range s.tasks {
		s.setActive(t.name, t.id)
		before := t.resumes
		done, rerr := t.resume(s.ctx)
		if t.resumes != before {
			stats.Resumed++
		}
		if rerr != nil {
			return stats, rerr
		}
		if done {
			s.retire(t)
			s.tasks[i] = nil
			stats.Finished++
			s.notify(StatusFinished, t, 0)
			trace.Point(s.cfg.Tracer, trace.ScopeTask, "finished", t.name)
		}
	}
	s.ctx.reset()

	// 2. prune
	if stats.Finished > 0 {
		s.tasks = slices.DeleteFunc(s.tasks, func(t *Task) bool { return t == nil })
		s.dirty = true
	}

	// 3. poll
	for _, t := range s.tasks {
		s.setActive(t.name, t.id)
		if t.poll(s.ctx) {
			stats.Fired++
			s.notify(StatusFired, t, 0)
		}
		if t.Pending() {
			stats.Ready++
		}
	}

	// 4. spawn
	for _, req := range s.queue.Drain() {
		if req.Func == nil {
			trace.Warn(s.cfg.Tracer, trace.ScopeScheduler, "spawn", fmt.Sprintf("dropping %q: nil func", req.Name))
			continue
		}
		s.setActive(req.Name, 0)
		t := s.newTask(req)
		s.tasks = append(s.tasks, t)
		stats.Spawned++
		stats.Ready++
		s.dirty = true
		s.notify(StatusSpawned, t, 0)
		trace.Point(s.cfg.Tracer, trace.ScopeTask, "spawned", t.name)
	}
	s.setActive("", 0)

	stats.Live = len(s.tasks)
	s.publish(stats)
	return stats, nil
}

// Run clears the current event and runs rounds until a task faults or ctx is
// cancelled. Every live task is released before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx.reset()
	trace.Point(s.cfg.Tracer, trace.ScopeScheduler, "start",
		fmt.Sprintf("run=%s tasks=%d pacing=%s", s.cfg.RunID, len(s.tasks), s.cfg.Pacing))
	defer s.Close()

	for {
		if err := ctx.Err(); err != nil {
			trace.Point(s.cfg.Tracer, trace.ScopeScheduler, "stop", err.Error())
			return err
		}
		stats, err := s.Step()
		if err != nil {
			trace.Fail(s.cfg.Tracer, trace.ScopeScheduler, "fault", err.Error())
			return err
		}
		if s.cfg.Pacing == PacingSleep && stats.Ready == 0 {
			s.idle()
		}
	}
}

// Close releases every live task and pending spawn request.
func (s *Scheduler) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, t := range s.tasks {
		s.retire(t)
	}
	s.tasks = nil
	s.queue.Drain()
	s.ctx.reset()
}

// retire releases t's routines and polls and drops its wake reasons from the
// annotation table.
func (s *Scheduler) retire(t *Task) {
	t.release()
	s.ctx.table.release(t.info)
	t.info = nil
}

func (s *Scheduler) newTask(req SpawnRequest) *Task {
	id := s.nextID
	s.nextID++
	return newTask(id, req.Name, req.Func(s.ctx, req.Args))
}

func (s *Scheduler) setActive(name string, id TaskID) {
	s.active = name
	s.activeID = id
}

func (s *Scheduler) idle() {
	now := s.cfg.Clock.NowMs()
	deadline := addMs(now, durationMs(s.cfg.IdleQuantum))
	for _, t := range s.tasks {
		if ms, ok := t.nextDeadlineMs(); ok && ms < deadline {
			deadline = ms
		}
	}
	if deadline > now {
		s.cfg.Clock.SleepUntilMs(deadline)
	}
}

func (s *Scheduler) notify(kind StatusKind, t *Task, resumed int) {
	if s.cfg.Status == nil {
		return
	}
	st := Status{
		Kind:    kind,
		Round:   s.round,
		Live:    len(s.tasks),
		Resumed: resumed,
		Time:    time.Now(),
	}
	if t != nil {
		st.TaskID = t.id
		st.Task = t.name
	}
	select {
	case s.cfg.Status <- st:
	default:
	}
}

func (s *Scheduler) publish(stats RoundStats) {
	now := s.cfg.Clock.NowMs()
	if !s.dirty && now-s.lastSnapMs < durationMs(s.cfg.SnapshotEvery) {
		return
	}
	s.dirty = false
	s.lastSnapMs = now
	snap := &Snapshot{
		RunID:   s.cfg.RunID,
		Round:   s.round,
		ClockMs: now,
		Time:    time.Now(),
		Tasks:   make([]TaskState, 0, len(s.tasks)),
	}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, TaskState{
			ID:      t.id,
			Name:    t.name,
			Depth:   t.Depth(),
			Waits:   t.Waits(),
			Pending: t.Pending(),
			Resumes: t.resumes,
		})
	}
	s.snap.Store(snap)
	s.notify(StatusRound, nil, stats.Resumed)
}
