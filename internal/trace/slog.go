package trace

import (
	"context"
	"log/slog"
)

// SlogTracer forwards trace events into a structured logger. Warnings and
// errors keep their severity; scheduler-scope events log at Info and the
// finer scopes at Debug.
type SlogTracer struct {
	logger *slog.Logger
	level  Level
}

// NewSlogTracer wraps logger. A nil logger uses slog.Default().
func NewSlogTracer(logger *slog.Logger, level Level) *SlogTracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogTracer{logger: logger.With("component", "trace"), level: level}
}

// Emit logs ev when it passes the level filter.
func (t *SlogTracer) Emit(ev *Event) {
	if !t.level.Accepts(ev) {
		return
	}

	lvl := slogLevel(ev)
	ctx := context.Background()
	if !t.logger.Enabled(ctx, lvl) {
		return
	}

	attrs := make([]slog.Attr, 0, 6+len(ev.Extra))
	attrs = append(attrs,
		slog.String("kind", ev.Kind.String()),
		slog.String("scope", ev.Scope.String()),
		slog.Uint64("seq", ev.Seq),
	)
	if ev.SpanID != 0 {
		attrs = append(attrs, slog.Uint64("span", ev.SpanID))
	}
	if ev.Detail != "" {
		attrs = append(attrs, slog.String("detail", ev.Detail))
	}
	for k, v := range ev.Extra {
		attrs = append(attrs, slog.String(k, v))
	}
	t.logger.LogAttrs(ctx, lvl, ev.Name, attrs...)
}

func slogLevel(ev *Event) slog.Level {
	switch ev.Kind {
	case KindError:
		return slog.LevelError
	case KindWarn:
		return slog.LevelWarn
	}
	if ev.Scope <= ScopeScheduler {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

// Flush is a no-op; the logger's handlers own buffering.
func (t *SlogTracer) Flush() error { return nil }

// Close is a no-op.
func (t *SlogTracer) Close() error { return nil }

// Level returns the current tracing level.
func (t *SlogTracer) Level() Level { return t.level }

// Enabled returns true if tracing is active.
func (t *SlogTracer) Enabled() bool { return t.level > LevelOff }
