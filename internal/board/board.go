// Package board abstracts the controller's power board: status LEDs, the
// hardware watchdog and the DIP switches.
package board

import (
	"errors"
	"sync"
)

// Switch bits.
const (
	// SwitchCompetition is set when the robot runs in competition mode.
	// Telemetry stays off in competition mode.
	SwitchCompetition uint8 = 1 << 0
)

// ErrUnavailable is returned by boards without the requested peripheral.
var ErrUnavailable = errors.New("peripheral unavailable")

// Board is the power board as seen by the host and the behaviours.
type Board interface {
	SetLEDs(mask uint8) error
	LEDs() uint8
	ClearWatchdog() error
	Switches() (uint8, error)
}

// SimBoard is an in-memory board for machines without hardware. It records
// every LED write and watchdog clear.
type SimBoard struct {
	mu        sync.Mutex
	leds      uint8
	switches  uint8
	history   []uint8
	watchdogs int
}

// NewSimBoard returns a board whose switches read as switches.
func NewSimBoard(switches uint8) *SimBoard {
	return &SimBoard{switches: switches}
}

func (b *SimBoard) SetLEDs(mask uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leds = mask
	b.history = append(b.history, mask)
	return nil
}

func (b *SimBoard) LEDs() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.leds
}

func (b *SimBoard) ClearWatchdog() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchdogs++
	return nil
}

func (b *SimBoard) Switches() (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.switches, nil
}

// SetSwitches flips the simulated switches.
func (b *SimBoard) SetSwitches(v uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.switches = v
}

// LEDHistory returns every mask written so far.
func (b *SimBoard) LEDHistory() []uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint8, len(b.history))
	copy(out, b.history)
	return out
}

// WatchdogClears returns how often the watchdog was cleared.
func (b *SimBoard) WatchdogClears() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watchdogs
}
