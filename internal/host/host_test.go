package host

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"trampoline/internal/board"
	"trampoline/internal/config"
	"trampoline/internal/observ"
	"trampoline/internal/statefile"
	"trampoline/internal/trampoline"
)

func testOptions(t *testing.T, b board.Board) Options {
	t.Helper()
	cfg := config.Default()
	cfg.Robot.Behaviors = []string{"watchdog", "blink"}
	cfg.Telemetry.Enabled = false
	return Options{
		Config:   cfg,
		Board:    b,
		Dir:      t.TempDir(),
		Timer:    observ.NewTimer(),
		Clock:    trampoline.NewVirtualClock(0),
		RunID:    "test-run",
		DiskSync: func() error { return nil },
	}
}

func TestBootSequence(t *testing.T) {
	b := board.NewSimBoard(board.SwitchCompetition)
	opts := testOptions(t, b)
	var ready func() trampoline.Snapshot
	opts.Ready = func(snapshot func() trampoline.Snapshot) { ready = snapshot }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := Boot(ctx, opts); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if ready == nil || ready().RunID != "test-run" {
		t.Fatal("Ready was not handed the scheduler snapshot")
	}

	history := b.LEDHistory()
	want := []uint8{LEDsPeripherals, LEDsBehaviors, LEDsWatchdog, LEDsTelemetry, LEDsRunning}
	if len(history) < len(want) || !slices.Equal(history[:len(want)], want) {
		t.Fatalf("led history = %v", history)
	}
	if len(history) == len(want) || history[len(want)] != 0x80 {
		t.Fatalf("blink did not run: %v", history)
	}
	if b.WatchdogClears() < 2 {
		t.Fatalf("watchdog clears = %d", b.WatchdogClears())
	}

	var names []string
	for _, s := range opts.Timer.Stages() {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "peripherals,behaviors,watchdog,telemetry,scheduler" {
		t.Fatalf("stages = %v", names)
	}

	state, err := statefile.Read(filepath.Join(opts.Dir, opts.Config.Scheduler.StateFile))
	if err != nil {
		t.Fatalf("state file: %v", err)
	}
	if state.Snapshot.RunID != "test-run" {
		t.Fatalf("run id = %q", state.Snapshot.RunID)
	}
}

func TestBootUnknownBehavior(t *testing.T) {
	b := board.NewSimBoard(0)
	opts := testOptions(t, b)
	opts.Config.Robot.Behaviors = []string{"moonwalk"}

	err := Boot(context.Background(), opts)
	if err == nil || !strings.Contains(err.Error(), "behaviors") {
		t.Fatalf("err = %v", err)
	}
	if got := b.LEDHistory(); !slices.Equal(got, []uint8{LEDsPeripherals}) {
		t.Fatalf("led history = %v", got)
	}
}

func TestBootReportsFault(t *testing.T) {
	b := board.NewSimBoard(board.SwitchCompetition)
	opts := testOptions(t, b)
	opts.Config.Robot.Behaviors = nil
	opts.StateFile = "-"
	boom := errors.New("boom")
	opts.Flushers = []trampoline.Flusher{trampoline.FlushFunc(func() error { return nil })}

	fault := func(ctx *trampoline.Context, _ trampoline.Args) trampoline.Routine {
		return func(yield func(trampoline.Yield) bool) {
			yield(trampoline.Fail(boom))
		}
	}
	opts.Monitor = func(ctx context.Context, status <-chan trampoline.Status, snapshot func() trampoline.Snapshot) error {
		for range status {
		}
		return nil
	}

	opts.Tasks = []Task{{Name: "faulty", Func: fault}}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Boot(ctx, opts); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("fault must stop the scheduler before the deadline")
	}
}

func TestBootReapsTelemetryWhenSchedulerStageFails(t *testing.T) {
	b := board.NewSimBoard(0)
	opts := testOptions(t, b)
	opts.Config.Telemetry = config.Telemetry{
		Enabled: true,
		Command: "sh",
		Args:    []string{"-c", "exec sleep 30"},
		Log:     "xbd-log.txt",
	}
	var logBuf bytes.Buffer
	opts.Logger = slog.New(slog.NewTextHandler(&logBuf, nil))
	opts.Tasks = []Task{{Name: "broken"}}

	start := time.Now()
	err := Boot(context.Background(), opts)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("Boot waited for the telemetry daemon to exit on its own")
	}

	m := regexp.MustCompile(`pid=(\d+)`).FindStringSubmatch(logBuf.String())
	if m == nil {
		t.Fatalf("telemetry never started:\n%s", logBuf.String())
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		t.Fatal(err)
	}
	// a killed but unreaped child would still answer signal 0 as a zombie
	if err := unix.Kill(pid, 0); !errors.Is(err, unix.ESRCH) {
		t.Fatalf("telemetry pid %d not reaped: %v", pid, err)
	}
}

func TestStartTelemetryAppendsLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "xbd-log.txt")
	if err := os.WriteFile(logPath, []byte("previous\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	tel, err := StartTelemetry(ctx, config.Telemetry{
		Enabled: true,
		Command: "sh",
		Args:    []string{"-c", "echo radio up"},
		Log:     "xbd-log.txt",
	}, dir)
	if err != nil {
		t.Fatalf("StartTelemetry: %v", err)
	}
	if tel.PID() == 0 {
		t.Fatal("no pid")
	}
	if err := tel.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "previous\nradio up\n" {
		t.Fatalf("log = %q", data)
	}
}

func TestTelemetryKilledOnCancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tel, err := StartTelemetry(ctx, config.Telemetry{
		Command: "sh",
		Args:    []string{"-c", "exec sleep 30"},
	}, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := tel.Wait(ctx); err != nil {
		t.Fatalf("Wait after cancel = %v", err)
	}
}

func TestNewLogsFileAndConsole(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "log.txt")
	logs, err := NewLogs(LogOptions{
		Console: &console,
		File:    path,
		Level:   "info",
		Journal: "off",
	})
	if err != nil {
		t.Fatalf("NewLogs: %v", err)
	}
	logs.Logger.Info("trampoline initialised", "tasks", 3)
	logs.Logger.Debug("hidden")
	logs.SetLevel(slog.LevelDebug)
	logs.Logger.Debug("visible")
	if err := logs.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := logs.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	file := string(data)
	if !strings.Contains(file, "trampoline initialised") || !strings.Contains(file, "tasks=3") {
		t.Fatalf("file log = %q", file)
	}
	if strings.Contains(file, "hidden") || !strings.Contains(file, "visible") {
		t.Fatalf("level filtering broken: %q", file)
	}
	if !isSystemdService() && !strings.Contains(console.String(), "trampoline initialised") {
		t.Fatalf("console log = %q", console.String())
	}
}

func TestNewLogsRejectsBadLevel(t *testing.T) {
	if _, err := NewLogs(LogOptions{Level: "chatty"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestToJournalKey(t *testing.T) {
	if got := toJournalKey("run.id-2"); got != "RUN_ID_2" {
		t.Fatalf("toJournalKey = %q", got)
	}
}
