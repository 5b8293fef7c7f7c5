package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"trampoline/internal/config"
)

// Telemetry is the running radio telemetry daemon. Its output is appended
// to its own log file.
type Telemetry struct {
	cmd *exec.Cmd
	log *os.File
}

// StartTelemetry launches cfg.Command from dir. The process is killed when
// ctx is cancelled.
func StartTelemetry(ctx context.Context, cfg config.Telemetry, dir string) (*Telemetry, error) {
	logPath := cfg.Log
	if logPath != "" && !filepath.IsAbs(logPath) {
		logPath = filepath.Join(dir, logPath)
	}

	var logFile *os.File
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open telemetry log: %w", err)
		}
		logFile = f
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = dir
	if logFile != nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}
	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("start telemetry %q: %w", cfg.Command, err)
	}
	return &Telemetry{cmd: cmd, log: logFile}, nil
}

// PID returns the process id.
func (t *Telemetry) PID() int {
	if t == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Wait blocks until the process exits and closes its log. A process killed
// because its context ended is not an error.
func (t *Telemetry) Wait(ctx context.Context) error {
	err := t.cmd.Wait()
	if t.log != nil {
		if cerr := t.log.Close(); err == nil {
			err = cerr
		}
	}
	if ctx.Err() != nil {
		var exitErr *exec.ExitError
		if err == nil || errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
			return nil
		}
	}
	return err
}
