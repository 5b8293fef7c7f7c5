package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"trampoline/internal/config"
	"trampoline/internal/trace"
)

type tracing struct {
	tracer    trace.Tracer
	ring      *trace.RingTracer
	heartbeat *trace.Heartbeat
	cleanup   func()
}

// setupTracing combines [trace] from the config file with the trace flags;
// flags win when set. Warnings and faults always reach logger.
func setupTracing(cmd *cobra.Command, cfg config.Trace, dir string, logger *slog.Logger) (*tracing, error) {
	flags := cmd.Root().PersistentFlags()

	output := cfg.Output
	levelStr := cfg.Level
	modeStr := cfg.Mode
	formatStr := cfg.Format
	ringSize := cfg.RingSize
	heartbeatInterval := cfg.Heartbeat.Duration

	var err error
	if flags.Changed("trace") {
		if output, err = flags.GetString("trace"); err != nil {
			return nil, fmt.Errorf("failed to get trace flag: %w", err)
		}
	}
	if flags.Changed("trace-level") {
		if levelStr, err = flags.GetString("trace-level"); err != nil {
			return nil, fmt.Errorf("failed to get trace-level flag: %w", err)
		}
	}
	if flags.Changed("trace-mode") {
		if modeStr, err = flags.GetString("trace-mode"); err != nil {
			return nil, fmt.Errorf("failed to get trace-mode flag: %w", err)
		}
	}
	if flags.Changed("trace-format") {
		if formatStr, err = flags.GetString("trace-format"); err != nil {
			return nil, fmt.Errorf("failed to get trace-format flag: %w", err)
		}
	}
	if flags.Changed("trace-ring-size") {
		if ringSize, err = flags.GetInt("trace-ring-size"); err != nil {
			return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
		}
	}
	if flags.Changed("trace-heartbeat") {
		if heartbeatInterval, err = flags.GetDuration("trace-heartbeat"); err != nil {
			return nil, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
		}
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	// an output file without a level means "trace the task lifecycle"
	if level == trace.LevelOff && output != "" {
		level = trace.LevelDetail
	}

	logTracer := trace.NewSlogTracer(logger, trace.LevelError)
	if level == trace.LevelOff {
		return &tracing{tracer: logTracer, cleanup: func() {}}, nil
	}

	mode, err := trace.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	if output == "" && mode != trace.ModeRing {
		output = "-"
	}
	format, err := trace.ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	built, err := trace.New(trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: resolvePath(dir, output),
		RingSize:   ringSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	tracer := trace.NewMultiTracer(level, built.Tracer, logTracer)

	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)

	heartbeat := trace.StartHeartbeat(tracer, heartbeatInterval)

	cleanup := func() {
		heartbeat.Stop()

		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}
	return &tracing{tracer: tracer, ring: built.Ring, heartbeat: heartbeat, cleanup: cleanup}, nil
}
