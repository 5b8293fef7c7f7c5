package trampoline

import "iter"

// Source is a raw suspendable computation used as a wait condition. Each
// value it yields is one advance: nil means "not yet", anything else fires.
// Returning ends the condition without firing.
type Source = iter.Seq[Event]

// PassThrough adapts a Source to the Poll interface.
type PassThrough struct {
	next func() (Event, bool)
	stop func()
	done bool
}

// NewPassThrough pulls from src one value per Advance.
func NewPassThrough(src Source) *PassThrough {
	if src == nil {
		return &PassThrough{done: true}
	}
	next, stop := iter.Pull(src)
	return &PassThrough{next: next, stop: stop}
}

// Advance pulls the next value from the source.
func (p *PassThrough) Advance() PollResult {
	if p.done {
		return Exhausted()
	}
	ev, ok := p.next()
	if !ok {
		p.done = true
		return Exhausted()
	}
	if ev == nil {
		return Pending()
	}
	return Fired(ev)
}

// Close releases the underlying iterator. The source's yield returns false.
func (p *PassThrough) Close() error {
	if p.done {
		return nil
	}
	p.done = true
	p.stop()
	return nil
}
