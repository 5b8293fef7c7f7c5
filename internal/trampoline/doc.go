// Package trampoline is the run-time core of the robot controller: a
// single-threaded cooperative scheduler that multiplexes many logically
// concurrent behaviours onto one thread of control.
//
// # Tasks
//
// A [Task] owns an explicit call stack of suspendable computations. Each
// computation is a [Routine], a pull-style iterator of [Yield] values. A yield
// either registers wait conditions ([Wait]), performs a nested call into
// another routine ([Call]), reports a fault ([Fail]) or does nothing
// ([Nothing]). When the innermost routine returns, control returns into its
// caller; when the root routine returns, the task is finished.
//
// # Polls
//
// Wait conditions are [Poll] values. Every round the scheduler advances each
// task's wait set once; the first poll to fire (in registration order) wins,
// and the rest of the set is abandoned. A task with nothing to wait on
// receives a fallback [Timeout] of one [Unit] so it can never stall.
//
// # Rounds
//
// [Scheduler.Step] runs one round:
//
//  1. resume every task whose wake condition fired, in list order
//  2. drop finished tasks
//  3. poll every remaining wait set once
//  4. turn queued spawn requests into new tasks
//
// [Scheduler.Run] repeats rounds until a task faults or the host cancels the
// context. A fault in any task stops the whole scheduler.
//
// # Ambient context
//
// Routines receive the scheduler's [Context] when they are built. During a
// resume, [Context.Event] describes why the task woke up; the value is only
// valid until the routine yields again.
package trampoline
