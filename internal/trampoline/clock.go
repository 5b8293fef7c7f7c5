package trampoline

import (
	"math"
	"sync"
	"time"

	"fortio.org/safecast"
)

// Clock supplies time and blocking behaviour for timers and idle pacing.
type Clock interface {
	NowMs() uint64
	SleepUntilMs(deadlineMs uint64)
}

// preciseClock is implemented by clocks that can report time below
// millisecond resolution. Timers use it to avoid firing early.
type preciseClock interface {
	Now() time.Duration
}

// VirtualClock advances only when told to. Sleeping jumps straight to the
// deadline, which makes timer behaviour deterministic in tests and
// simulations.
type VirtualClock struct {
	mu    sync.Mutex
	nowMs uint64
}

// NewVirtualClock returns a clock starting at startMs.
func NewVirtualClock(startMs uint64) *VirtualClock {
	return &VirtualClock{nowMs: startMs}
}

func (c *VirtualClock) NowMs() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowMs
}

// Now returns the current reading as a Duration.
func (c *VirtualClock) Now() time.Duration {
	return msDuration(c.NowMs())
}

func (c *VirtualClock) SleepUntilMs(deadlineMs uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if deadlineMs > c.nowMs {
		c.nowMs = deadlineMs
	}
}

// Advance moves the clock forward by d.
func (c *VirtualClock) Advance(d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowMs = addMs(c.nowMs, durationMs(d))
}

// RealClock blocks the OS thread until the requested deadline. It measures
// monotonic time since NewRealClock.
type RealClock struct {
	start time.Time
}

// NewRealClock returns a RealClock starting at zero.
func NewRealClock() *RealClock {
	return &RealClock{start: time.Now()}
}

func (c *RealClock) NowMs() uint64 {
	return durationMs(c.Now())
}

// Now returns the time elapsed since the clock was created, at full
// resolution.
func (c *RealClock) Now() time.Duration {
	if c == nil || c.start.IsZero() {
		return 0
	}
	return time.Since(c.start)
}

func (c *RealClock) SleepUntilMs(deadlineMs uint64) {
	if c == nil {
		return
	}
	now := c.NowMs()
	if deadlineMs <= now {
		return
	}
	delta := deadlineMs - now
	maxMs := uint64(math.MaxInt64 / int64(time.Millisecond))
	if delta > maxMs {
		delta = maxMs
	}
	delay, err := safecast.Conv[int64](delta)
	if err != nil {
		return
	}
	time.Sleep(time.Duration(delay) * time.Millisecond)
}

// durationMs converts d to whole milliseconds; negative durations are zero.
func durationMs(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	ms, err := safecast.Conv[uint64](d.Milliseconds())
	if err != nil {
		return 0
	}
	return ms
}

// ceilMs converts d to milliseconds, rounding any fraction up.
func ceilMs(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	ms := durationMs(d)
	if d%time.Millisecond != 0 {
		ms = addMs(ms, 1)
	}
	return ms
}

// msDuration converts milliseconds back to a Duration, saturating.
func msDuration(ms uint64) time.Duration {
	maxMs := uint64(math.MaxInt64 / int64(time.Millisecond))
	if ms > maxMs {
		ms = maxMs
	}
	n, err := safecast.Conv[int64](ms)
	if err != nil {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n) * time.Millisecond
}

func addMs(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
