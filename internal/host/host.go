// Package host boots the robot controller: it brings up the peripherals,
// signals progress on the status LEDs, starts telemetry outside competition
// mode and finally hands control to the scheduler.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"trampoline/internal/behaviors"
	"trampoline/internal/board"
	"trampoline/internal/config"
	"trampoline/internal/observ"
	"trampoline/internal/statefile"
	"trampoline/internal/trace"
	"trampoline/internal/trampoline"
)

// LED masks shown while booting. The board shows LEDsRunning once the
// scheduler owns the controller.
const (
	LEDsPeripherals uint8 = 1
	LEDsBehaviors   uint8 = 2
	LEDsWatchdog    uint8 = 4
	LEDsTelemetry   uint8 = 8
	LEDsRunning     uint8 = 0
)

// Monitor displays scheduler progress. It returns when status is closed or
// ctx ends.
type Monitor func(ctx context.Context, status <-chan trampoline.Status, snapshot func() trampoline.Snapshot) error

// Task is a routine started next to the configured behaviours, such as the
// robot's own code.
type Task struct {
	Name string
	Func trampoline.Func
}

// Options configures Boot. Board and Config are required.
type Options struct {
	Config config.Config
	Board  board.Board
	// Dir is where relative paths in Config resolve. Defaults to ".".
	Dir    string
	Logger *slog.Logger
	Tracer trace.Tracer
	Timer  *observ.Timer
	Clock  trampoline.Clock
	// RunID tags logs and the state file. A random UUID when empty.
	RunID string
	// NoTelemetry suppresses the telemetry daemon regardless of switches.
	NoTelemetry bool
	// StateFile overrides [scheduler].state_file. "-" disables it.
	StateFile string
	// Flushers are added to the scheduler's housekeeping.
	Flushers []trampoline.Flusher
	// DiskSync overrides the platform sync.
	DiskSync func() error
	// Monitor, when set, runs alongside the scheduler.
	Monitor Monitor
	// Tasks are spawned after the behaviours.
	Tasks []Task
	// Ready is called with the scheduler's snapshot source once the
	// scheduler is built, before it starts.
	Ready func(snapshot func() trampoline.Snapshot)
}

// Boot runs the boot sequence and then the scheduler until ctx ends or a
// task faults. Cancelling ctx is a clean shutdown and returns nil.
func Boot(ctx context.Context, opts Options) error {
	if opts.Board == nil {
		return errors.New("host: no board")
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.FromContext(ctx)
	}
	if opts.Timer == nil {
		opts.Timer = observ.NewTimer()
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	log := opts.Logger.With("run", opts.RunID)
	b := opts.Board
	cfg := opts.Config

	log.Info("initialising trampoline")

	if err := stage(opts, log, "peripherals", LEDsPeripherals, func() error { return nil }); err != nil {
		return err
	}

	var funcs []trampoline.Func
	err := stage(opts, log, "behaviors", LEDsBehaviors, func() error {
		for _, name := range cfg.Robot.Behaviors {
			fn, err := behaviors.Lookup(name, b)
			if err != nil {
				return err
			}
			funcs = append(funcs, fn)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := stage(opts, log, "watchdog", LEDsWatchdog, b.ClearWatchdog); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	err = stage(opts, log, "telemetry", LEDsTelemetry, func() error {
		switches, err := b.Switches()
		if err != nil {
			return fmt.Errorf("read switches: %w", err)
		}
		switch {
		case switches&board.SwitchCompetition != 0:
			log.Info("competition mode, telemetry off")
			return nil
		case opts.NoTelemetry || !cfg.Telemetry.Enabled:
			log.Info("telemetry disabled")
			return nil
		}
		tel, err := StartTelemetry(gctx, cfg.Telemetry, opts.Dir)
		if err != nil {
			return err
		}
		log.Info("telemetry started", "command", cfg.Telemetry.Command, "pid", tel.PID())
		g.Go(func() error {
			if err := tel.Wait(gctx); err != nil {
				// the robot keeps running without telemetry
				log.Warn("telemetry exited", "error", err)
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return err
	}

	var (
		sched  *trampoline.Scheduler
		writer *statefile.Writer
		status chan trampoline.Status
	)
	err = stage(opts, log, "scheduler", LEDsRunning, func() error {
		pacing, err := trampoline.ParsePacing(cfg.Scheduler.Pacing)
		if err != nil {
			return err
		}
		flushers := append([]trampoline.Flusher{}, opts.Flushers...)
		if path := statePath(opts); path != "" {
			writer = statefile.NewWriter(path, func() trampoline.Snapshot { return sched.Snapshot() })
			flushers = append(flushers, writer)
		}
		if opts.Monitor != nil {
			status = make(chan trampoline.Status, 256)
		}
		sched = trampoline.New(trampoline.Config{
			RunID:         opts.RunID,
			Clock:         opts.Clock,
			Tracer:        opts.Tracer,
			SyncInterval:  cfg.Scheduler.SyncInterval.Duration,
			Flushers:      flushers,
			DiskSync:      opts.DiskSync,
			Pacing:        pacing,
			IdleQuantum:   cfg.Scheduler.IdleQuantum.Duration,
			SnapshotEvery: cfg.Scheduler.SnapshotEvery.Duration,
			Status:        status,
		})
		for i, fn := range funcs {
			sched.Spawn(cfg.Robot.Behaviors[i], fn)
		}
		for _, task := range opts.Tasks {
			if task.Func == nil {
				return fmt.Errorf("task %q has no func", task.Name)
			}
			sched.Spawn(task.Name, task.Func)
		}
		if opts.Ready != nil {
			opts.Ready(sched.Snapshot)
		}
		return nil
	})
	if err != nil {
		if sched != nil {
			sched.Close()
		}
		cancel()
		if werr := g.Wait(); werr != nil {
			log.Warn("shutdown after failed boot", "error", werr)
		}
		return err
	}

	if opts.Monitor != nil {
		g.Go(func() error {
			return opts.Monitor(gctx, status, sched.Snapshot)
		})
	}

	log.Info("starting trampoline", "tasks", len(funcs)+len(opts.Tasks)+1)
	g.Go(func() error {
		if status != nil {
			defer close(status)
		}
		err := sched.Run(gctx)
		if writer != nil {
			if ferr := writer.Flush(); ferr != nil {
				log.Warn("final state write failed", "error", ferr)
			}
		}
		if err != nil && gctx.Err() == nil {
			log.Error("scheduler fault", "error", err)
			return err
		}
		return nil
	})

	err = g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("trampoline stopped", "rounds", sched.Round(), "error", err)
	return err
}

// stage times fn, then shows leds on success.
func stage(opts Options, log *slog.Logger, name string, leds uint8, fn func() error) error {
	err := opts.Timer.Time(name, fn)
	if err != nil {
		log.Error("boot stage failed", "stage", name, "error", err)
		trace.Fail(opts.Tracer, trace.ScopeScheduler, "boot", name+": "+err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := opts.Board.SetLEDs(leds); err != nil {
		log.Warn("set leds", "stage", name, "error", err)
	}
	log.Debug("boot stage done", "stage", name, "leds", leds)
	trace.Point(opts.Tracer, trace.ScopeScheduler, "boot", name)
	return nil
}

func statePath(opts Options) string {
	path := opts.StateFile
	if path == "" {
		path = opts.Config.Scheduler.StateFile
	}
	if path == "" || path == "-" {
		return ""
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(opts.Dir, path)
	}
	return path
}
