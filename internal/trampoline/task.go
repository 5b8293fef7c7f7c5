package trampoline

import (
	"fmt"
	"time"

	"trampoline/internal/trace"
)

// TaskID identifies a task for diagnostics.
type TaskID uint64

// Task is one cooperatively scheduled unit of work: an explicit stack of
// routines, the wait set of its innermost routine and the event that fired
// last.
type Task struct {
	id       TaskID
	name     string
	stack    []*frame
	polls    []Poll
	event    Event
	firstRun bool
	info     *EventInfo
	resumes  uint64
}

func newTask(id TaskID, name string, root Routine) *Task {
	if name == "" {
		name = fmt.Sprintf("task-%d", id)
	}
	return &Task{
		id:       id,
		name:     name,
		stack:    []*frame{newFrame(root)},
		firstRun: true,
	}
}

// ID returns the task identifier.
func (t *Task) ID() TaskID { return t.id }

// Name returns the diagnostic label.
func (t *Task) Name() string { return t.name }

// Depth returns the number of routines on the call stack.
func (t *Task) Depth() int { return len(t.stack) }

// Waits returns the size of the current wait set.
func (t *Task) Waits() int { return len(t.polls) }

// Pending reports whether an event is waiting to be delivered.
func (t *Task) Pending() bool { return t.event != nil }

// Resumes counts the resume calls that got past the wait gate, including the
// inline resumes of nested calls.
func (t *Task) Resumes() uint64 { return t.resumes }

// resume advances the task by one logical step. done reports that the root
// routine returned. Faults from the routine are returned or panic through.
func (t *Task) resume(ctx *Context) (done bool, err error) {
	if t.event == nil && !t.firstRun {
		return false, nil
	}
	t.firstRun = false
	t.resumes++
	ctx.install(t, t.event)

	var y Yield
	for {
		if len(t.stack) == 0 {
			return true, nil
		}
		top := t.stack[len(t.stack)-1]
		v, ok := top.step()
		if ok {
			y = v
			break
		}
		t.stack[len(t.stack)-1] = nil
		t.stack = t.stack[:len(t.stack)-1]
	}

	t.event = nil

	switch y.kind {
	case yieldCall:
		if y.fn == nil {
			return false, &TaskError{Task: t.name, ID: t.id, Err: ErrNilCall}
		}
		t.stack = append(t.stack, newFrame(y.fn(ctx, Args{Positional: y.args})))
		t.firstRun = true
		return t.resume(ctx)
	case yieldWait:
		for _, spec := range y.specs {
			t.register(ctx, spec)
		}
	case yieldFail:
		return false, &TaskError{Task: t.name, ID: t.id, Err: y.err}
	}
	return false, nil
}

func (t *Task) register(ctx *Context, spec any) {
	switch v := spec.(type) {
	case Poll:
		t.polls = append(t.polls, v)
	case Source:
		t.polls = append(t.polls, ownedPoll{NewPassThrough(v)})
	case func(func(Event) bool):
		t.polls = append(t.polls, ownedPoll{NewPassThrough(v)})
	case time.Duration:
		t.polls = append(t.polls, NewTimerPoll(ctx.clock, v))
	default:
		d, numeric, valid := unitsDuration(spec)
		if numeric && valid {
			t.polls = append(t.polls, NewTimerPoll(ctx.clock, d))
			return
		}
		ctx.Warn("unrecognized poll", fmt.Sprintf("ignoring %T %v", spec, spec))
	}
}

// poll advances the wait set once. The first poll to fire wins and the rest
// of the set is abandoned; exhausted polls drop out. An empty set yields the
// fallback Timeout. fired reports whether a poll produced the event.
func (t *Task) poll(ctx *Context) (fired bool) {
	n := 0
	for i, p := range t.polls {
		r := p.Advance()
		switch {
		case r.Status == PollFired && r.Event != nil:
			t.event = r.Event
			for _, rest := range t.polls[i:] {
				t.releasePoll(ctx, rest)
			}
			for _, kept := range t.polls[:n] {
				t.releasePoll(ctx, kept)
			}
			clear(t.polls)
			t.polls = t.polls[:0]
			if ctx.tracer.Enabled() {
				trace.Point(ctx.tracer, trace.ScopePoll, "fired", fmt.Sprintf("%s: %v", t.name, r.Event))
			}
			return true
		case r.Status == PollExhausted:
			t.releasePoll(ctx, p)
		default:
			t.polls[n] = p
			n++
		}
	}
	clear(t.polls[n:])
	t.polls = t.polls[:n]
	if n == 0 {
		t.event = Timeout{After: Unit}
	}
	return false
}

func (t *Task) releasePoll(ctx *Context, p Poll) {
	if err := releasePoll(p); err != nil {
		trace.Warn(ctx.tracer, trace.ScopePoll, "release poll", fmt.Sprintf("%s: %v", t.name, err))
	}
}

// release stops every routine on the stack and drops the wait set.
func (t *Task) release() {
	for i := len(t.stack) - 1; i >= 0; i-- {
		t.stack[i].release()
	}
	t.stack = nil
	for _, p := range t.polls {
		_ = releasePoll(p)
	}
	t.polls = nil
}

// nextDeadlineMs returns the earliest known timer deadline in the wait set.
func (t *Task) nextDeadlineMs() (uint64, bool) {
	var (
		best  uint64
		found bool
	)
	for _, p := range t.polls {
		d, ok := p.(Deadliner)
		if !ok {
			continue
		}
		ms, ok := d.DeadlineMs()
		if ok && (!found || ms < best) {
			best, found = ms, true
		}
	}
	return best, found
}
