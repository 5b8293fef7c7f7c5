package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"trampoline/internal/behaviors"
	"trampoline/internal/board"
	"trampoline/internal/host"
	"trampoline/internal/observ"
	"trampoline/internal/prof"
	"trampoline/internal/trace"
	"trampoline/internal/trampoline"
	"trampoline/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the controller and run the scheduler",
	Long: `Boot the controller: bring up the board, start the configured behaviours,
start telemetry outside competition mode and run the scheduler until
interrupted or until a task faults.`,
	Args: cobra.NoArgs,
	RunE: runController,
}

func init() {
	runCmd.Flags().String("ui", "auto", "task monitor (auto|on|off)")
	runCmd.Flags().Bool("no-telemetry", false, "never start the telemetry daemon")
	runCmd.Flags().String("state-file", "", "override [scheduler].state_file (- disables)")
	runCmd.Flags().Uint8("switches", 0, "switch register of the simulated board (bit 0: competition mode)")
	runCmd.Flags().String("crash-dump", "", "write the trace ring here when a task faults")
	runCmd.Flags().String("cpuprofile", "", "write CPU profile to file")
	runCmd.Flags().String("memprofile", "", "write heap profile to file on exit")
	runCmd.Flags().String("runtime-trace", "", "write Go runtime trace to file")
}

func runController(cmd *cobra.Command, _ []string) error {
	uiFlag, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	mode, err := readUIMode(uiFlag)
	if err != nil {
		return err
	}
	noTelemetry, err := cmd.Flags().GetBool("no-telemetry")
	if err != nil {
		return fmt.Errorf("failed to get no-telemetry flag: %w", err)
	}
	stateFile, err := cmd.Flags().GetString("state-file")
	if err != nil {
		return fmt.Errorf("failed to get state-file flag: %w", err)
	}
	switches, err := cmd.Flags().GetUint8("switches")
	if err != nil {
		return fmt.Errorf("failed to get switches flag: %w", err)
	}
	crashDump, err := cmd.Flags().GetString("crash-dump")
	if err != nil {
		return fmt.Errorf("failed to get crash-dump flag: %w", err)
	}
	profOpts, err := readProfileFlags(cmd)
	if err != nil {
		return err
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}

	cfg, cfgPath, dir, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := behaviors.Validate(cfg.Robot.Behaviors); err != nil {
		return fmt.Errorf("[robot].behaviors: %w", err)
	}
	useTUI := shouldUseTUI(mode)

	// the monitor owns the terminal, so console logs go quiet under it
	var console io.Writer = cmd.ErrOrStderr()
	if quiet || useTUI {
		console = nil
	}
	logs, err := host.NewLogs(host.LogOptions{
		Console: console,
		File:    resolvePath(dir, cfg.Log.File),
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Journal: cfg.Log.Journal,
	})
	if err != nil {
		return err
	}
	defer logs.Close()

	runID := uuid.NewString()
	logger := logs.Logger.With("run", runID)
	if cfgPath != "" {
		logger.Info("loaded config", "path", cfgPath)
	}

	tr, err := setupTracing(cmd, cfg.Trace, dir, logger)
	if err != nil {
		return err
	}
	defer tr.cleanup()

	session, err := prof.Start(profOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Stop(); err != nil {
			logger.Warn("profiling", "error", err)
		}
	}()

	opts := host.Options{
		Config:      cfg,
		Board:       board.NewSimBoard(switches),
		Dir:         dir,
		Logger:      logs.Logger,
		Tracer:      tr.tracer,
		Timer:       observ.NewTimer(),
		RunID:       runID,
		NoTelemetry: noTelemetry,
		StateFile:   stateFile,
		Flushers:    []trampoline.Flusher{logs, tr.tracer},
		Ready: func(snapshot func() trampoline.Snapshot) {
			tr.heartbeat.SetProbe(func() map[string]string {
				snap := snapshot()
				return map[string]string{
					"round": strconv.FormatUint(snap.Round, 10),
					"tasks": strconv.Itoa(len(snap.Tasks)),
				}
			})
		},
	}
	if useTUI {
		out := cmd.OutOrStdout()
		opts.Monitor = func(ctx context.Context, status <-chan trampoline.Status, snapshot func() trampoline.Snapshot) error {
			return ui.Run(ctx, out, "trampoline", status, snapshot)
		}
	}

	start := time.Now()
	err = host.Boot(cmd.Context(), opts)
	if errors.Is(err, ui.ErrInterrupted) {
		err = nil
	}

	if timings {
		fmt.Fprint(cmd.ErrOrStderr(), opts.Timer.Summary())
	}
	if err != nil {
		if tr.ring != nil {
			dumpRing(cmd, tr.ring, resolvePath(dir, crashDump))
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("fault:"), err)
		}
		return err
	}
	if !quiet && !useTUI {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s after %s\n", color.GreenString("stopped"), time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func readProfileFlags(cmd *cobra.Command) (prof.Options, error) {
	var opts prof.Options
	var err error
	if opts.CPU, err = cmd.Flags().GetString("cpuprofile"); err != nil {
		return opts, fmt.Errorf("failed to get cpuprofile flag: %w", err)
	}
	if opts.Mem, err = cmd.Flags().GetString("memprofile"); err != nil {
		return opts, fmt.Errorf("failed to get memprofile flag: %w", err)
	}
	if opts.Trace, err = cmd.Flags().GetString("runtime-trace"); err != nil {
		return opts, fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	return opts, nil
}

// dumpRing writes the last trace events leading up to a fault. Without a
// path they go to stderr as text.
func dumpRing(cmd *cobra.Command, ring *trace.RingTracer, path string) {
	if path == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "last trace events:")
		_ = ring.Dump(cmd.ErrOrStderr(), trace.FormatText)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "crash dump: %v\n", err)
		return
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "crash dump: %v\n", err)
		return
	}
	defer f.Close()
	if err := ring.Dump(f, trace.DetectFormat(path)); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "crash dump: %v\n", err)
	}
}
