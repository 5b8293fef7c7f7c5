package trace

import (
	"strconv"
	"sync"
	"time"
)

// Probe reports a few key/value pairs attached to each heartbeat, typically
// the scheduler's current round and live task count.
type Probe func() map[string]string

// Heartbeat emits liveness events from its own goroutine. If heartbeats
// keep arriving while the round counter in them stops moving, some task is
// holding the control loop.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	started  time.Time

	mu    sync.Mutex
	probe Probe

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartHeartbeat starts emitting on tracer every interval. It returns nil
// (a valid, inert Heartbeat) when tracing is off or interval is not positive.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		started:  time.Now(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

// SetProbe installs the function sampled on every beat. Safe to call while
// the heartbeat runs.
func (h *Heartbeat) SetProbe(p Probe) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.probe = p
	h.mu.Unlock()
}

func (h *Heartbeat) loop() {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var beats uint64
	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			beats++
			h.tracer.Emit(h.beat(now, beats))
		}
	}
}

func (h *Heartbeat) beat(now time.Time, n uint64) *Event {
	extra := map[string]string{
		"uptime": now.Sub(h.started).Truncate(time.Millisecond).String(),
	}
	h.mu.Lock()
	probe := h.probe
	h.mu.Unlock()
	if probe != nil {
		for k, v := range probe() {
			extra[k] = v
		}
	}
	return &Event{
		Time:   now,
		Seq:    NextSeq(),
		Kind:   KindHeartbeat,
		Scope:  ScopeScheduler,
		GID:    getGoroutineID(),
		Name:   "heartbeat",
		Detail: "#" + strconv.FormatUint(n, 10),
		Extra:  extra,
	}
}

// Stop ends the goroutine and waits for it. Repeated calls are no-ops.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
