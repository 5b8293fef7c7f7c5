package trampoline

import (
	"time"

	"trampoline/internal/trace"
)

// Context is the ambient state a routine sees while it runs: the event that
// woke the current task, the spawn queue, the clock and the tracer. There is
// one Context per Scheduler; the scheduler re-installs it before every
// resume, so values read from it are only meaningful until the routine
// yields.
type Context struct {
	clock  Clock
	tracer trace.Tracer
	queue  *SpawnQueue
	table  *Annotations

	task *Task
	info *EventInfo
}

// Event describes why the current task woke up. It is nil before the
// scheduler starts and empty on a task's first run.
func (c *Context) Event() *EventInfo {
	if c == nil {
		return nil
	}
	return c.info
}

// Task returns the task being resumed, or nil between resumes.
func (c *Context) Task() *Task {
	if c == nil {
		return nil
	}
	return c.task
}

// Lookup returns the EventInfo that last wrapped ev.
func (c *Context) Lookup(ev Event) *EventInfo {
	if c == nil {
		return nil
	}
	return c.table.Lookup(ev)
}

// Spawn queues a new task; it first runs in the next round.
func (c *Context) Spawn(name string, fn Func, args ...any) {
	c.queue.SubmitNamed(name, fn, args, nil)
}

// Queue returns the scheduler's spawn queue.
func (c *Context) Queue() *SpawnQueue { return c.queue }

// Clock returns the scheduler clock.
func (c *Context) Clock() Clock { return c.clock }

// Now returns the scheduler clock reading as a Duration since its epoch.
func (c *Context) Now() time.Duration { return msDuration(c.clock.NowMs()) }

// Tracer returns the scheduler tracer.
func (c *Context) Tracer() trace.Tracer { return c.tracer }

// After returns a timer poll on the scheduler clock.
func (c *Context) After(d time.Duration) *TimerPoll {
	return NewTimerPoll(c.clock, d)
}

// Warn reports a non-fatal problem attributed to the current task.
func (c *Context) Warn(name, detail string) {
	if c.task != nil {
		detail = c.task.Name() + ": " + detail
	}
	trace.Warn(c.tracer, trace.ScopeTask, name, detail)
}

// install wraps ev in a fresh EventInfo and makes it current for t.
func (c *Context) install(t *Task, ev Event) {
	c.table.release(t.info)
	info := NewEventInfo(ev, c.table)
	t.info = info
	c.task = t
	c.info = info
}

func (c *Context) reset() {
	c.task = nil
	c.info = nil
}
