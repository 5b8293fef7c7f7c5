// Package trace provides the diagnostic event stream of the trampoline
// scheduler.
//
// Tracing answers two questions on a robot that has no debugger attached:
// what was the control loop doing when it stalled, and which task brought it
// down. Every scheduler component emits events through a Tracer; the host
// decides where they end up.
//
// # Usage
//
//	trampoline run --trace=trace.ndjson --trace-level=detail
//
// # Tracers
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to a file or stderr
//   - RingTracer: circular buffer dumped after a fault
//   - SlogTracer: forwards events into a *slog.Logger
//   - MultiTracer: fans out to several tracers
//
// # Levels
//
//   - LevelOff: nothing
//   - LevelError: only warnings and faults
//   - LevelInfo: scheduler start, stop and faults
//   - LevelDetail: rounds and task lifecycle
//   - LevelDebug: everything including individual poll results
//
// Warn and error events bypass scope filtering at every level above off.
//
// # Scopes
//
//   - ScopeScheduler: run start, stop and faults
//   - ScopeRound: one span per scheduling round
//   - ScopeTask: spawn, finish and task warnings
//   - ScopePoll: poll firing and release
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeRound, "round", 0)
//	defer span.End("")
package trace
