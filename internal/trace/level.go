package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	// LevelOff disables tracing.
	LevelOff    Level = iota // no tracing
	LevelError               // warnings and faults only
	LevelInfo                // scheduler start/stop
	LevelDetail              // rounds and task lifecycle
	LevelDebug               // everything including polls
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelInfo:
		return "info"
	case LevelDetail:
		return "detail"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "info":
		return LevelInfo, nil
	case "detail":
		return LevelDetail, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|info|detail|debug)", s)
	}
}

// ShouldEmit returns true if the given scope should emit at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelOff, LevelError:
		return false
	case LevelInfo:
		return scope <= ScopeScheduler
	case LevelDetail:
		return scope <= ScopeTask
	case LevelDebug:
		return true
	}
	return false
}

// Accepts reports whether ev passes the level filter. Heartbeats, warnings
// and errors are accepted at every level above off.
func (l Level) Accepts(ev *Event) bool {
	if l == LevelOff || ev == nil {
		return false
	}
	switch ev.Kind {
	case KindHeartbeat, KindWarn, KindError:
		return true
	}
	return l.ShouldEmit(ev.Scope)
}
