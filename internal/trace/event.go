package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpanBegin marks the start of a logical operation.
	KindSpanBegin Kind = iota + 1
	// KindSpanEnd marks the end of a logical operation.
	KindSpanEnd
	// KindPoint represents an instant event.
	KindPoint
	KindHeartbeat // periodic liveness signal
	// KindWarn reports a recoverable problem.
	KindWarn
	// KindError reports a fault that stopped the scheduler.
	KindError
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	case KindWarn:
		return "warn"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent coarser events.
type Scope uint8

const (
	// ScopeScheduler covers the scheduler as a whole.
	ScopeScheduler Scope = iota + 1
	// ScopeRound covers one scheduling round.
	ScopeRound
	// ScopeTask covers individual task lifecycle.
	ScopeTask
	ScopePoll // individual wait conditions (most detailed)
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeScheduler:
		return "scheduler"
	case ScopeRound:
		return "round"
	case ScopeTask:
		return "task"
	case ScopePoll:
		return "poll"
	default:
		return "unknown"
	}
}

// Event represents a single trace event.
type Event struct {
	Time     time.Time         // wall-clock timestamp
	Seq      uint64            // global sequence number (monotonic)
	Kind     Kind              // event kind
	Scope    Scope             // granularity level
	SpanID   uint64            // unique span identifier
	ParentID uint64            // parent span (0 if root)
	GID      uint64            // goroutine ID (heartbeats run off the loop)
	Name     string            // e.g. "round", "finished", "unrecognized poll"
	Detail   string            // optional detail message
	Extra    map[string]string // extensible key-value pairs
}
