package trampoline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trampoline/internal/trace"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *VirtualClock) {
	t.Helper()
	clock := NewVirtualClock(0)
	cfg.Clock = clock
	if cfg.DiskSync == nil {
		cfg.DiskSync = func() error { return nil }
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = time.Hour
	}
	s := New(cfg)
	t.Cleanup(s.Close)
	return s, clock
}

func routine(body func(ctx *Context, yield func(Yield) bool)) Func {
	return func(ctx *Context, _ Args) Routine {
		return func(yield func(Yield) bool) {
			body(ctx, yield)
		}
	}
}

func mustStep(t *testing.T, s *Scheduler) RoundStats {
	t.Helper()
	stats, err := s.Step()
	if err != nil {
		t.Fatalf("round %d: %v", s.Round(), err)
	}
	return stats
}

func findTask(s *Scheduler, name string) *Task {
	for _, task := range s.Tasks() {
		if task.Name() == name {
			return task
		}
	}
	return nil
}

func TestSchedulerStartsWithSyncTask(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	tasks := s.Tasks()
	if len(tasks) != 1 || tasks[0].Name() != "sync" {
		t.Fatalf("initial tasks = %v", tasks)
	}
}

func TestSpawnRunsNextRound(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	var ran []uint64

	child := routine(func(ctx *Context, yield func(Yield) bool) {
		ran = append(ran, s.Round())
	})
	s.Spawn("parent", routine(func(ctx *Context, yield func(Yield) bool) {
		ctx.Spawn("child", child)
	}))

	if stats := mustStep(t, s); stats.Spawned != 1 {
		t.Fatalf("round 1 spawned %d", stats.Spawned)
	}
	mustStep(t, s)
	if len(ran) != 0 {
		t.Fatalf("child ran in the round it was spawned: %v", ran)
	}
	mustStep(t, s)
	if len(ran) != 1 || ran[0] != 3 {
		t.Fatalf("child ran in rounds %v, want [3]", ran)
	}
}

func TestNestedCallsUnwindInOneRound(t *testing.T) {
	const depth = 5
	s, _ := newTestScheduler(t, Config{})

	var nest func(n int) Func
	nest = func(n int) Func {
		return routine(func(ctx *Context, yield func(Yield) bool) {
			if n > 0 {
				yield(Call(nest(n - 1)))
			}
		})
	}
	s.Spawn("deep", nest(depth))
	mustStep(t, s)
	task := findTask(s, "deep")
	if task == nil {
		t.Fatal("deep task not spawned")
	}

	stats := mustStep(t, s)
	if stats.Finished != 1 {
		t.Fatalf("finished = %d, want 1", stats.Finished)
	}
	if got := task.Resumes(); got != depth+1 {
		t.Fatalf("resumes = %d, want %d", got, depth+1)
	}
	if findTask(s, "deep") != nil {
		t.Fatal("finished task still live")
	}
}

func TestCallPassesArgsAndResumesCaller(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	var trail []string

	callee := func(ctx *Context, args Args) Routine {
		return func(yield func(Yield) bool) {
			trail = append(trail, "callee", args.At(0).(string))
			yield(Wait(time.Second))
			trail = append(trail, "callee-woke")
		}
	}
	s.Spawn("caller", routine(func(ctx *Context, yield func(Yield) bool) {
		trail = append(trail, "caller")
		if !yield(Call(callee, "hello")) {
			return
		}
		trail = append(trail, "caller-back")
	}))

	mustStep(t, s)
	mustStep(t, s)
	if got := strings.Join(trail, ","); got != "caller,callee,hello" {
		t.Fatalf("trail = %s", got)
	}
	if task := findTask(s, "caller"); task.Depth() != 2 || task.Waits() != 1 {
		t.Fatalf("depth=%d waits=%d", task.Depth(), task.Waits())
	}
}

func TestFirstFiredPollWins(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	lateAdvances := 0
	firstStopped := false
	var woke *EventInfo

	first := func(yield func(Event) bool) {
		if !yield("a") {
			firstStopped = true
		}
	}
	late := PollFunc(func() PollResult {
		lateAdvances++
		return Fired("b")
	})
	s.Spawn("racer", routine(func(ctx *Context, yield func(Yield) bool) {
		pending := PollFunc(Pending)
		if !yield(Wait(pending, Source(first), late)) {
			return
		}
		woke = ctx.Event()
		yield(Wait(time.Hour))
	}))

	mustStep(t, s)
	if stats := mustStep(t, s); stats.Fired != 1 || stats.Ready != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if lateAdvances != 0 {
		t.Fatalf("poll after the winner was advanced %d times", lateAdvances)
	}
	if !firstStopped {
		t.Fatal("winning source was not released")
	}
	mustStep(t, s)
	if !woke.Is("a") || woke.Is("b") {
		t.Fatalf("woke on %v", woke)
	}
}

func TestEmptyWaitGetsFallbackTimeout(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	var events []*EventInfo

	s.Spawn("idle", routine(func(ctx *Context, yield func(Yield) bool) {
		events = append(events, ctx.Event())
		for range 2 {
			if !yield(Nothing) {
				return
			}
			events = append(events, ctx.Event())
		}
		yield(Wait(time.Hour))
	}))

	for range 4 {
		mustStep(t, s)
	}
	if len(events) != 3 {
		t.Fatalf("resumed %d times, want 3", len(events))
	}
	if !events[0].Empty() {
		t.Fatalf("first run event = %v", events[0])
	}
	for _, ev := range events[1:] {
		if !ev.Is(Timeout{After: Unit}) {
			t.Fatalf("fallback event = %v", ev)
		}
	}
}

func TestExhaustedPollsDropOut(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	var woke *EventInfo

	never := func(yield func(Event) bool) {}
	s.Spawn("exhaust", routine(func(ctx *Context, yield func(Yield) bool) {
		if !yield(Wait(Source(never))) {
			return
		}
		woke = ctx.Event()
		yield(Wait(time.Hour))
	}))

	mustStep(t, s)
	mustStep(t, s)
	if task := findTask(s, "exhaust"); task.Waits() != 0 || !task.Pending() {
		t.Fatalf("waits=%d pending=%v", task.Waits(), task.Pending())
	}
	mustStep(t, s)
	if !woke.Is(Timeout{After: Unit}) {
		t.Fatalf("woke on %v", woke)
	}
}

func TestNumericWaitCountsUnits(t *testing.T) {
	s, clock := newTestScheduler(t, Config{})
	var woke time.Duration

	s.Spawn("half", routine(func(ctx *Context, yield func(Yield) bool) {
		if !yield(Wait(0.5)) {
			return
		}
		woke = ctx.Now()
		yield(Wait(time.Hour))
	}))

	mustStep(t, s)
	mustStep(t, s)
	clock.Advance(499 * time.Millisecond)
	mustStep(t, s)
	if woke != 0 {
		t.Fatal("woke before the deadline")
	}
	clock.Advance(time.Millisecond)
	mustStep(t, s)
	mustStep(t, s)
	if woke != 500*time.Millisecond {
		t.Fatalf("woke at %v", woke)
	}
}

func TestFailStopsScheduler(t *testing.T) {
	boom := errors.New("boom")
	s, _ := newTestScheduler(t, Config{})
	s.Spawn("faulty", routine(func(ctx *Context, yield func(Yield) bool) {
		yield(Fail(boom))
	}))
	bystanderRuns := 0
	s.Spawn("bystander", routine(func(ctx *Context, yield func(Yield) bool) {
		for {
			bystanderRuns++
			if !yield(Nothing) {
				return
			}
		}
	}))

	mustStep(t, s)
	_, err := s.Step()
	var te *TaskError
	if !errors.As(err, &te) || te.Task != "faulty" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("task error must unwrap to the reported error")
	}
	if bystanderRuns != 0 {
		t.Fatalf("task after the faulty one ran %d times in the faulting round", bystanderRuns)
	}
	for range 3 {
		if _, again := s.Step(); again != err {
			t.Fatalf("later rounds returned %v", again)
		}
	}
	if bystanderRuns != 0 {
		t.Fatalf("task ran %d times after the fault", bystanderRuns)
	}
}

func TestPanicBecomesPanicError(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	s.Spawn("bad", routine(func(ctx *Context, yield func(Yield) bool) {
		panic("kaboom")
	}))

	mustStep(t, s)
	_, err := s.Step()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
	if pe.Task != "bad" || pe.Value != "kaboom" || len(pe.Stack) == 0 {
		t.Fatalf("panic error = %+v", pe)
	}
}

func TestNilCallFaults(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	s.Spawn("nil-call", routine(func(ctx *Context, yield func(Yield) bool) {
		yield(Call(nil))
	}))
	mustStep(t, s)
	if _, err := s.Step(); !errors.Is(err, ErrNilCall) {
		t.Fatalf("err = %v", err)
	}
}

func TestUnrecognizedPollWarns(t *testing.T) {
	ring := trace.NewRingTracer(32, trace.LevelError)
	s, _ := newTestScheduler(t, Config{Tracer: ring})
	s.Spawn("confused", routine(func(ctx *Context, yield func(Yield) bool) {
		yield(Wait("bogus"))
		yield(Wait(time.Hour))
	}))
	s.Queue().Submit(nil, nil, nil)

	mustStep(t, s)
	mustStep(t, s)

	var unrecognized, dropped bool
	for _, ev := range ring.Snapshot() {
		if ev.Kind != trace.KindWarn {
			continue
		}
		switch ev.Name {
		case "unrecognized poll":
			unrecognized = strings.Contains(ev.Detail, "confused") && strings.Contains(ev.Detail, "bogus")
		case "spawn":
			dropped = true
		}
	}
	if !unrecognized {
		t.Fatalf("no unrecognized poll warning in %+v", ring.Snapshot())
	}
	if !dropped {
		t.Fatal("nil spawn request was not reported")
	}
	if task := findTask(s, "confused"); !task.Pending() {
		t.Fatal("task with only a bad spec must get the fallback timeout")
	}
}

type countingFlusher struct {
	n   int
	err error
}

func (f *countingFlusher) Flush() error {
	f.n++
	return f.err
}

func TestHousekeepingFlushesAndSyncs(t *testing.T) {
	good := &countingFlusher{}
	bad := &countingFlusher{err: errors.New("disk full")}
	syncs := 0
	ring := trace.NewRingTracer(32, trace.LevelError)
	s, clock := newTestScheduler(t, Config{
		Tracer:       ring,
		SyncInterval: 5 * time.Second,
		Flushers:     []Flusher{good, bad},
		DiskSync:     func() error { syncs++; return nil },
	})

	mustStep(t, s)
	clock.Advance(5 * time.Second)
	mustStep(t, s)
	mustStep(t, s)
	if good.n != 1 || bad.n != 1 || syncs != 1 {
		t.Fatalf("flushes=%d/%d syncs=%d", good.n, bad.n, syncs)
	}

	warned := false
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindWarn && ev.Name == "flush" && strings.Contains(ev.Detail, "disk full") {
			warned = true
		}
	}
	if !warned {
		t.Fatal("flush failure was not reported")
	}
}

func TestRunSleepPacing(t *testing.T) {
	s, clock := newTestScheduler(t, Config{
		Pacing:      PacingSleep,
		IdleQuantum: time.Hour,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var woke time.Duration
	s.Spawn("sleeper", routine(func(tc *Context, yield func(Yield) bool) {
		if !yield(Wait(3 * time.Second)) {
			return
		}
		woke = tc.Now()
		cancel()
		yield(Wait(time.Hour))
	}))

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v", err)
	}
	if woke != 3*time.Second {
		t.Fatalf("woke at %v", woke)
	}
	if clock.NowMs() < 3000 {
		t.Fatalf("clock = %d", clock.NowMs())
	}
	if _, err := s.Step(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Step after Run = %v", err)
	}
}

func TestSnapshotAndStatus(t *testing.T) {
	status := make(chan Status, 16)
	s, _ := newTestScheduler(t, Config{RunID: "run-1", Status: status})
	s.Spawn("worker", routine(func(ctx *Context, yield func(Yield) bool) {
		yield(Wait(time.Hour))
	}))
	mustStep(t, s)

	snap := s.Snapshot()
	if snap.RunID != "run-1" || snap.Round != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	var names []string
	for _, ts := range snap.Tasks {
		names = append(names, ts.Name)
	}
	if strings.Join(names, ",") != "sync,worker" {
		t.Fatalf("snapshot tasks = %v", names)
	}

	var kinds []StatusKind
	for len(status) > 0 {
		kinds = append(kinds, (<-status).Kind)
	}
	if len(kinds) != 2 || kinds[0] != StatusSpawned || kinds[1] != StatusRound {
		t.Fatalf("status kinds = %v", kinds)
	}
}

func TestCloseReleasesSuspendedRoutines(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	released := false
	s.Spawn("holder", routine(func(ctx *Context, yield func(Yield) bool) {
		defer func() { released = true }()
		yield(Wait(time.Hour))
	}))
	mustStep(t, s)
	mustStep(t, s)
	s.Close()
	if !released {
		t.Fatal("Close must stop suspended routines")
	}
}

func TestParsePacing(t *testing.T) {
	if p, err := ParsePacing("Sleep"); err != nil || p != PacingSleep {
		t.Fatalf("ParsePacing(Sleep) = %v, %v", p, err)
	}
	if p, err := ParsePacing(""); err != nil || p != PacingSpin {
		t.Fatalf("ParsePacing(\"\") = %v, %v", p, err)
	}
	if _, err := ParsePacing("busy"); err == nil {
		t.Fatal("expected error")
	}
}

type wakeToken struct{ n int }

func TestFinishedTasksReleaseAnnotations(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	for i := range 50 {
		token := &wakeToken{n: i}
		s.Spawn("", routine(func(ctx *Context, yield func(Yield) bool) {
			fire := PollFunc(func() PollResult { return Fired(token) })
			if !yield(Wait(fire)) {
				return
			}
			if ctx.Lookup(token) != ctx.Event() {
				t.Errorf("token %d not annotated while current", token.n)
			}
		}))
	}

	for range 3 {
		mustStep(t, s)
	}
	if live := len(s.Tasks()); live != 1 {
		t.Fatalf("live tasks = %d", live)
	}
	if n := s.Context().table.Len(); n != 0 {
		t.Fatalf("annotations left behind by finished tasks = %d", n)
	}
}

func TestCloseReleasesAnnotations(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	token := &wakeToken{}
	s.Spawn("waiter", routine(func(ctx *Context, yield func(Yield) bool) {
		if !yield(Wait(PollFunc(func() PollResult { return Fired(token) }))) {
			return
		}
		yield(Wait(time.Hour))
	}))
	for range 3 {
		mustStep(t, s)
	}
	if s.Context().Lookup(token) == nil {
		t.Fatal("wake reason of a live task must stay annotated")
	}
	s.Close()
	if n := s.Context().table.Len(); n != 0 {
		t.Fatalf("annotations after Close = %d", n)
	}
}

func TestRoutineOwnedPollSurvivesReregistration(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	ticks := NewPassThrough(func(yield func(Event) bool) {
		for yield("tick") {
		}
	})
	var woke []string

	s.Spawn("ticker", routine(func(ctx *Context, yield func(Yield) bool) {
		for {
			if !yield(Wait(ticks, time.Hour)) {
				return
			}
			woke = append(woke, ctx.Event().String())
		}
	}))

	for range 5 {
		mustStep(t, s)
	}
	if len(woke) != 3 {
		t.Fatalf("woke = %v", woke)
	}
	for _, w := range woke {
		if w != "tick" {
			t.Fatalf("woke = %v", woke)
		}
	}
}

func TestAbandonedSourceIsClosed(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	stopped := false
	idle := func(yield func(Event) bool) {
		for yield(nil) {
		}
		stopped = true
	}

	s.Spawn("race", routine(func(ctx *Context, yield func(Yield) bool) {
		now := PollFunc(func() PollResult { return Fired("now") })
		if !yield(Wait(Source(idle), now)) {
			return
		}
		yield(Wait(time.Hour))
	}))

	mustStep(t, s)
	mustStep(t, s)
	if !stopped {
		t.Fatal("source built by Wait must be stopped once abandoned")
	}
}

func TestSubMillisecondWaitNeverFiresEarly(t *testing.T) {
	s, clock := newTestScheduler(t, Config{})
	var woke time.Duration = -1

	s.Spawn("brief", routine(func(ctx *Context, yield func(Yield) bool) {
		if !yield(Wait(0.0005)) {
			return
		}
		woke = ctx.Now()
		yield(Wait(time.Hour))
	}))

	mustStep(t, s)
	mustStep(t, s)
	mustStep(t, s)
	if woke != -1 {
		t.Fatalf("woke at %v before any time passed", woke)
	}
	clock.Advance(time.Millisecond)
	mustStep(t, s)
	mustStep(t, s)
	if woke != time.Millisecond {
		t.Fatalf("woke at %v", woke)
	}
}
