package trampoline

import (
	"fmt"
	"time"
)

// DefaultSyncInterval is the housekeeping period.
const DefaultSyncInterval = 5 * time.Second

// Flusher is anything the housekeeping task should flush periodically: log
// files, tracers, state files.
type Flusher interface {
	Flush() error
}

// FlushFunc adapts a function to Flusher.
type FlushFunc func() error

// Flush calls f.
func (f FlushFunc) Flush() error { return f() }

// housekeeping builds the always-present "sync" task: every interval it
// flushes each flusher and then commits file system buffers. Failures are
// reported as warnings; housekeeping never faults the scheduler.
func housekeeping(interval time.Duration, flushers []Flusher, diskSync func() error) Func {
	return func(ctx *Context, _ Args) Routine {
		return func(yield func(Yield) bool) {
			for {
				if !yield(Wait(interval)) {
					return
				}
				for i, f := range flushers {
					if err := f.Flush(); err != nil {
						ctx.Warn("flush", fmt.Sprintf("flusher %d: %v", i, err))
					}
				}
				if err := diskSync(); err != nil {
					ctx.Warn("sync", err.Error())
				}
			}
		}
	}
}
