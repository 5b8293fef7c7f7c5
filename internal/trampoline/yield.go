package trampoline

import (
	"fmt"
	"iter"
)

// Routine is a suspendable computation. Every value it yields is a suspension
// point; returning completes it.
type Routine = iter.Seq[Yield]

// Func builds a Routine. It is invoked once per spawn or nested call with the
// scheduler's Context and the call's arguments.
type Func func(ctx *Context, args Args) Routine

// Args carries the arguments of a spawn request or nested call.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// At returns the i-th positional argument, or nil.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a.Positional) {
		return nil
	}
	return a.Positional[i]
}

// Named returns a keyword argument.
func (a Args) Named(key string) (any, bool) {
	v, ok := a.Keyword[key]
	return v, ok
}

// Len returns the number of positional arguments.
func (a Args) Len() int { return len(a.Positional) }

type yieldKind uint8

const (
	yieldNothing yieldKind = iota
	yieldCall
	yieldWait
	yieldFail
)

// Yield is the value a Routine produces at a suspension point.
type Yield struct {
	kind  yieldKind
	fn    Func
	args  []any
	specs []any
	err   error
}

// Nothing registers no wait condition. If the task's wait set is empty the
// next poll cycle wakes it with a fallback Timeout.
var Nothing = Yield{}

// Call pushes the routine built by fn onto the task's stack and runs its
// first step immediately. When it returns, the caller resumes.
func Call(fn Func, args ...any) Yield {
	return Yield{kind: yieldCall, fn: fn, args: args}
}

// Wait registers wait conditions. Each spec may be a Poll, a Source (or an
// equivalent func(func(Event) bool)), a time.Duration, or a number of Units.
// Anything else is reported and dropped.
func Wait(specs ...any) Yield {
	if len(specs) == 0 || len(specs) == 1 && specs[0] == nil {
		return Nothing
	}
	return Yield{kind: yieldWait, specs: specs}
}

// Fail reports a fault. The scheduler stops and returns err. Fail(nil) is
// Nothing.
func Fail(err error) Yield {
	if err == nil {
		return Nothing
	}
	return Yield{kind: yieldFail, err: err}
}

func (y Yield) String() string {
	switch y.kind {
	case yieldCall:
		return fmt.Sprintf("call(%d args)", len(y.args))
	case yieldWait:
		return fmt.Sprintf("wait(%d)", len(y.specs))
	case yieldFail:
		return "fail(" + y.err.Error() + ")"
	default:
		return "nothing"
	}
}

// frame is one resumable computation on a task's stack.
type frame struct {
	next func() (Yield, bool)
	stop func()
	done bool
}

func newFrame(r Routine) *frame {
	if r == nil {
		return &frame{done: true}
	}
	next, stop := iter.Pull(r)
	return &frame{next: next, stop: stop}
}

// step advances the computation to its next suspension point. ok is false once
// the computation has returned.
func (f *frame) step() (Yield, bool) {
	if f.done {
		return Nothing, false
	}
	y, ok := f.next()
	if !ok {
		f.done = true
	}
	return y, ok
}

func (f *frame) release() {
	if f.done {
		return
	}
	f.done = true
	f.stop()
}
