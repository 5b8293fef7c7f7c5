package trampoline

// PollStatus reports how a single Advance call went.
type PollStatus uint8

const (
	// PollPending indicates the condition has not fired yet.
	PollPending PollStatus = iota
	// PollFired indicates the condition fired and produced an Event.
	PollFired
	// PollExhausted indicates the poll will never fire again.
	PollExhausted
)

func (s PollStatus) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollFired:
		return "fired"
	case PollExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// PollResult is the outcome of advancing a Poll once.
type PollResult struct {
	Status PollStatus
	Event  Event
}

// Pending reports that nothing happened yet.
func Pending() PollResult { return PollResult{Status: PollPending} }

// Fired reports that ev happened. A nil ev is treated as Pending.
func Fired(ev Event) PollResult { return PollResult{Status: PollFired, Event: ev} }

// Exhausted reports that the poll can never fire again.
func Exhausted() PollResult { return PollResult{Status: PollExhausted} }

// Poll is a non-blocking, steppable wait condition. Advance must return in
// bounded, near-zero time: every live task's every poll is advanced once per
// round on the scheduler's only thread.
//
// Polls passed to Wait belong to the routine and are never closed by the
// scheduler; a routine may register the same poll again after it is
// abandoned. Sources passed to Wait are wrapped in a PassThrough that the
// task closes when it leaves the wait set.
type Poll interface {
	Advance() PollResult
}

// PollFunc adapts a plain function to the Poll interface.
type PollFunc func() PollResult

// Advance calls f.
func (f PollFunc) Advance() PollResult { return f() }

// Deadliner is implemented by polls that know when they will fire. Sleep
// pacing uses it to avoid oversleeping a timer.
type Deadliner interface {
	DeadlineMs() (uint64, bool)
}

// ownedPoll marks a pass-through the task built itself from a raw Source.
// Nobody else can reach it, so it is closed once it leaves the wait set.
type ownedPoll struct {
	*PassThrough
}

// releasePoll closes p if the task owns it. Polls handed in by routines stay
// open: the routine may register them again.
func releasePoll(p Poll) error {
	if o, ok := p.(ownedPoll); ok {
		return o.Close()
	}
	return nil
}
