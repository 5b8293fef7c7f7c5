package trampoline

import (
	"math"
	"time"

	"fortio.org/safecast"
)

// Unit is the length of one scheduler time-unit. Numeric wait specs count in
// units, and the fallback wait of an idle task lasts one unit.
const Unit = time.Second

// TimerPoll fires exactly once, after a fixed duration measured from its
// creation, and is exhausted afterwards.
type TimerPoll struct {
	clock      Clock
	precise    preciseClock
	after      time.Duration
	created    time.Duration
	deadlineMs uint64
	fired      bool
}

// NewTimerPoll starts a timer on clock. Negative durations fire on the first
// advance. The deadline never falls before the full duration has elapsed.
func NewTimerPoll(clock Clock, after time.Duration) *TimerPoll {
	if after < 0 {
		after = 0
	}
	p := &TimerPoll{clock: clock, after: after}
	if pc, ok := clock.(preciseClock); ok {
		p.precise = pc
		p.created = pc.Now()
		p.deadlineMs = ceilMs(p.created + after)
		if p.created+after < p.created {
			p.deadlineMs = math.MaxUint64
		}
	} else {
		p.deadlineMs = addMs(clock.NowMs(), ceilMs(after))
	}
	return p
}

// Advance fires once the full duration has elapsed.
func (p *TimerPoll) Advance() PollResult {
	if p.fired {
		return Exhausted()
	}
	if !p.elapsed() {
		return Pending()
	}
	p.fired = true
	return Fired(Timeout{After: p.after})
}

func (p *TimerPoll) elapsed() bool {
	if p.precise != nil {
		return p.precise.Now()-p.created >= p.after
	}
	return p.clock.NowMs() >= p.deadlineMs
}

// After returns the configured duration.
func (p *TimerPoll) After() time.Duration { return p.after }

// DeadlineMs reports the clock reading at which the timer fires.
func (p *TimerPoll) DeadlineMs() (uint64, bool) {
	if p.fired {
		return 0, false
	}
	return p.deadlineMs, true
}

// unitsDuration interprets a numeric wait spec as a count of Units. ok is
// false when v is not numeric; valid is false for NaN, infinities and values
// that overflow a Duration.
func unitsDuration(v any) (d time.Duration, ok, valid bool) {
	switch n := v.(type) {
	case float64:
		d, valid = floatUnits(n)
		return d, true, valid
	case float32:
		d, valid = floatUnits(float64(n))
		return d, true, valid
	case int:
		d, valid = intUnits(int64(n))
		return d, true, valid
	case int8:
		d, valid = intUnits(int64(n))
		return d, true, valid
	case int16:
		d, valid = intUnits(int64(n))
		return d, true, valid
	case int32:
		d, valid = intUnits(int64(n))
		return d, true, valid
	case int64:
		d, valid = intUnits(n)
		return d, true, valid
	case uint:
		d, valid = uintUnits(uint64(n))
		return d, true, valid
	case uint8:
		d, valid = intUnits(int64(n))
		return d, true, valid
	case uint16:
		d, valid = intUnits(int64(n))
		return d, true, valid
	case uint32:
		d, valid = intUnits(int64(n))
		return d, true, valid
	case uint64:
		d, valid = uintUnits(n)
		return d, true, valid
	}
	return 0, false, false
}

func floatUnits(f float64) (time.Duration, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	ns, err := safecast.Round[int64](f * float64(Unit))
	if err != nil {
		return 0, false
	}
	return time.Duration(ns), true
}

func intUnits(n int64) (time.Duration, bool) {
	if n > math.MaxInt64/int64(Unit) || n < math.MinInt64/int64(Unit) {
		return 0, false
	}
	return time.Duration(n) * Unit, true
}

func uintUnits(n uint64) (time.Duration, bool) {
	v, err := safecast.Conv[int64](n)
	if err != nil {
		return 0, false
	}
	return intUnits(v)
}
