// Package behaviors holds the built-in robot tasks that can be started by
// name from trampoline.toml.
package behaviors

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"trampoline/internal/board"
	"trampoline/internal/trampoline"
)

// Period is the tick of the periodic behaviours.
const Period = time.Second

// BlinkMask is the LED toggled by the blink behaviour.
const BlinkMask uint8 = 0x80

type builder func(b board.Board) trampoline.Func

var catalog = map[string]builder{
	"watchdog": Watchdog,
	"blink":    Blink,
	"switches": Switches,
}

// Names lists the known behaviours in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the behaviour called name bound to b.
func Lookup(name string, b board.Board) (trampoline.Func, error) {
	build, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown behavior %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return build(b), nil
}

// Validate reports the first unknown name.
func Validate(names []string) error {
	for _, name := range names {
		if _, ok := catalog[strings.ToLower(strings.TrimSpace(name))]; !ok {
			return fmt.Errorf("unknown behavior %q (known: %s)", name, strings.Join(Names(), ", "))
		}
	}
	return nil
}

// Watchdog clears the hardware watchdog once per Period.
func Watchdog(b board.Board) trampoline.Func {
	return func(ctx *trampoline.Context, _ trampoline.Args) trampoline.Routine {
		return func(yield func(trampoline.Yield) bool) {
			for {
				if err := b.ClearWatchdog(); err != nil {
					ctx.Warn("watchdog", err.Error())
				}
				if !yield(trampoline.Wait(Period)) {
					return
				}
			}
		}
	}
}

// Blink toggles BlinkMask once per Period, leaving the other LEDs alone.
func Blink(b board.Board) trampoline.Func {
	return func(ctx *trampoline.Context, _ trampoline.Args) trampoline.Routine {
		return func(yield func(trampoline.Yield) bool) {
			for {
				if err := b.SetLEDs(b.LEDs() ^ BlinkMask); err != nil {
					ctx.Warn("blink", err.Error())
				}
				if !yield(trampoline.Wait(Period)) {
					return
				}
			}
		}
	}
}
