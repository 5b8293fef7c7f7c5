// Package config loads trampoline.toml, the controller's settings file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the settings file looked up from the working directory upwards.
const FileName = "trampoline.toml"

// Config is the decoded settings file.
type Config struct {
	Robot     Robot     `toml:"robot"`
	Scheduler Scheduler `toml:"scheduler"`
	Log       Log       `toml:"log"`
	Trace     Trace     `toml:"trace"`
	Telemetry Telemetry `toml:"telemetry"`
}

// Robot describes the machine and the behaviours to start.
type Robot struct {
	Colour    string   `toml:"colour"`
	Game      string   `toml:"game"`
	Behaviors []string `toml:"behaviors"`
}

// Scheduler holds the control loop settings.
type Scheduler struct {
	SyncInterval  Duration `toml:"sync_interval"`
	Pacing        string   `toml:"pacing"`
	IdleQuantum   Duration `toml:"idle_quantum"`
	SnapshotEvery Duration `toml:"snapshot_every"`
	StateFile     string   `toml:"state_file"`
}

// Log holds host logging settings.
type Log struct {
	File    string `toml:"file"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Journal string `toml:"journal"`
}

// Trace holds diagnostic tracing settings.
type Trace struct {
	Level     string   `toml:"level"`
	Mode      string   `toml:"mode"`
	Format    string   `toml:"format"`
	Output    string   `toml:"output"`
	RingSize  int      `toml:"ring_size"`
	Heartbeat Duration `toml:"heartbeat"`
}

// Telemetry describes the radio telemetry daemon started outside
// competition mode.
type Telemetry struct {
	Enabled bool     `toml:"enabled"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Log     string   `toml:"log"`
}

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the settings used when no file exists.
func Default() Config {
	return Config{
		Robot: Robot{
			Behaviors: []string{"watchdog", "blink", "switches"},
		},
		Scheduler: Scheduler{
			SyncInterval:  Duration{5 * time.Second},
			Pacing:        "spin",
			IdleQuantum:   Duration{10 * time.Millisecond},
			SnapshotEvery: Duration{250 * time.Millisecond},
			StateFile:     "trampoline.state",
		},
		Log: Log{
			File:    "log.txt",
			Level:   "debug",
			Format:  "text",
			Journal: "auto",
		},
		Trace: Trace{
			Level:    "off",
			Mode:     "ring",
			Format:   "auto",
			RingSize: 4096,
		},
		Telemetry: Telemetry{
			Enabled: true,
			Command: "./xbd",
			Args:    []string{"-s", "/dev/ttyS0"},
			Log:     "xbd-log.txt",
		},
	}
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load decodes path on top of Default and validates the result. Keys the
// decoder does not know are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads the file at explicit if set, otherwise the nearest
// trampoline.toml above dir, otherwise Default. path is empty when no file
// was used.
func Resolve(explicit, dir string) (cfg Config, path string, err error) {
	if explicit != "" {
		cfg, err = Load(explicit)
		return cfg, explicit, err
	}
	found, ok, err := Find(dir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		return Default(), "", nil
	}
	cfg, err = Load(found)
	return cfg, found, err
}

var (
	pacings    = []string{"spin", "sleep"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
	journals   = []string{"auto", "on", "off"}
	traceModes = []string{"stream", "ring", "both"}
	traceLvls  = []string{"off", "error", "info", "detail", "debug"}
	traceFmts  = []string{"auto", "text", "ndjson", "msgpack"}
)

// Validate checks enumerated values and ranges.
func (c Config) Validate() error {
	var errs []error
	check := func(section, key, value string, allowed []string) {
		if !slices.Contains(allowed, strings.ToLower(value)) {
			errs = append(errs, fmt.Errorf("[%s].%s: invalid value %q (expected: %s)",
				section, key, value, strings.Join(allowed, "|")))
		}
	}
	check("scheduler", "pacing", c.Scheduler.Pacing, pacings)
	check("log", "level", c.Log.Level, logLevels)
	check("log", "format", c.Log.Format, logFormats)
	check("log", "journal", c.Log.Journal, journals)
	check("trace", "level", c.Trace.Level, traceLvls)
	check("trace", "mode", c.Trace.Mode, traceModes)
	check("trace", "format", c.Trace.Format, traceFmts)

	if c.Scheduler.SyncInterval.Duration <= 0 {
		errs = append(errs, errors.New("[scheduler].sync_interval must be positive"))
	}
	if c.Scheduler.IdleQuantum.Duration < 0 {
		errs = append(errs, errors.New("[scheduler].idle_quantum must not be negative"))
	}
	if c.Trace.RingSize < 0 {
		errs = append(errs, errors.New("[trace].ring_size must not be negative"))
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Command) == "" {
		errs = append(errs, errors.New("[telemetry].command is required when telemetry is enabled"))
	}
	for i, name := range c.Robot.Behaviors {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("[robot].behaviors[%d] is empty", i))
		}
	}
	return errors.Join(errs...)
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes cfg to path, refusing to overwrite an existing file unless
// force is set.
func WriteFile(path string, cfg Config, force bool) error {
	data, err := Encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
