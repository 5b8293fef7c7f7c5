package behaviors

import (
	"fmt"

	"trampoline/internal/board"
	"trampoline/internal/trace"
	"trampoline/internal/trampoline"
)

// SwitchChange is the event fired when the switch register changes.
type SwitchChange struct {
	Old, New uint8
}

func (c SwitchChange) String() string {
	return fmt.Sprintf("switches %08b -> %08b", c.Old, c.New)
}

// SwitchPoll fires when the switch register differs from the last value it
// saw. It can be registered again after firing.
type SwitchPoll struct {
	board board.Board
	last  uint8
	err   error
}

// NewSwitchPoll samples the current switch state as its baseline.
func NewSwitchPoll(b board.Board) *SwitchPoll {
	p := &SwitchPoll{board: b}
	p.last, p.err = b.Switches()
	return p
}

// Advance reads the switches once. Read errors leave the poll pending.
func (p *SwitchPoll) Advance() trampoline.PollResult {
	v, err := p.board.Switches()
	if err != nil {
		p.err = err
		return trampoline.Pending()
	}
	p.err = nil
	if v == p.last {
		return trampoline.Pending()
	}
	ev := SwitchChange{Old: p.last, New: v}
	p.last = v
	return trampoline.Fired(ev)
}

// Last returns the most recent reading.
func (p *SwitchPoll) Last() uint8 { return p.last }

// Err returns the error of the most recent read, if any.
func (p *SwitchPoll) Err() error { return p.err }

// Switches reports every switch change through the tracer.
func Switches(b board.Board) trampoline.Func {
	return func(ctx *trampoline.Context, _ trampoline.Args) trampoline.Routine {
		return func(yield func(trampoline.Yield) bool) {
			poll := NewSwitchPoll(b)
			if err := poll.Err(); err != nil {
				ctx.Warn("switches", err.Error())
			}
			for {
				if !yield(trampoline.Wait(poll)) {
					return
				}
				for _, leaf := range ctx.Event().Leaves() {
					if change, ok := leaf.(SwitchChange); ok {
						trace.Point(ctx.Tracer(), trace.ScopeTask, "switches", change.String())
					}
				}
			}
		}
	}
}
