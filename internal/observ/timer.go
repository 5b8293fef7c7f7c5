// Package observ records how long the controller's boot stages take.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Stage is one timed step of the boot sequence.
type Stage struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
	Err   error
}

// Timer collects stages in the order they began. It is safe for concurrent
// use.
type Timer struct {
	mu     sync.Mutex
	stages []Stage
	now    func() time.Time
}

// NewTimer creates a new empty Timer.
func NewTimer() *Timer { return &Timer{stages: make([]Stage, 0, 8), now: time.Now} }

// Begin starts a stage and returns its index.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = append(t.stages, Stage{Name: name, Start: t.now()})
	return len(t.stages) - 1
}

// End finishes the stage at idx.
func (t *Timer) End(idx int, note string) {
	t.finish(idx, note, nil)
}

// Time runs fn as a stage named name and records its error.
func (t *Timer) Time(name string, fn func() error) error {
	idx := t.Begin(name)
	err := fn()
	t.finish(idx, "", err)
	return err
}

func (t *Timer) finish(idx int, note string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.stages) {
		return
	}
	s := &t.stages[idx]
	s.Dur = t.now().Sub(s.Start)
	s.Note = note
	s.Err = err
}

// Stages returns a copy of the recorded stages.
func (t *Timer) Stages() []Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Stage, len(t.stages))
	copy(out, t.stages)
	return out
}

// Summary renders the stages as an aligned table.
func (t *Timer) Summary() string {
	report := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, s := range report.Stages {
		fmt.Fprintf(&sb, "  %-20s %9.2f ms", s.Name, s.DurationMS)
		switch {
		case s.Error != "":
			sb.WriteString("  !! " + s.Error)
		case s.Note != "":
			sb.WriteString("  // " + s.Note)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "  %-20s %9.2f ms\n", "total", report.TotalMS)
	return sb.String()
}

// StageReport is the serialisable view of a Stage.
type StageReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Report aggregates every stage.
type Report struct {
	TotalMS float64       `json:"total_ms"`
	Stages  []StageReport `json:"stages"`
}

// Report builds the per-stage durations and their total in milliseconds.
func (t *Timer) Report() Report {
	stages := t.Stages()
	if len(stages) == 0 {
		return Report{}
	}
	report := Report{Stages: make([]StageReport, len(stages))}
	var total time.Duration
	for i, s := range stages {
		total += s.Dur
		report.Stages[i] = StageReport{
			Name:       s.Name,
			DurationMS: durationToMillis(s.Dur),
			Note:       s.Note,
		}
		if s.Err != nil {
			report.Stages[i].Error = s.Err.Error()
		}
	}
	report.TotalMS = durationToMillis(total)
	return report
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
