package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"trampoline/internal/config"
	"trampoline/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "trampoline",
	Short: "Cooperative task scheduler for robot controllers",
	Long: `trampoline boots the robot controller and runs its behaviours as
cooperatively scheduled tasks on a single control loop.`,
	SilenceUsage:      true,
	PersistentPreRunE: applyColor,
}

// main registers subcommands and persistent flags, then executes the root
// command under a context cancelled by SIGINT or SIGTERM. Any error exits
// with status 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)

	// global flags
	rootCmd.PersistentFlags().String("config", "", "path to trampoline.toml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show boot stage timings")

	rootCmd.PersistentFlags().String("trace", "", "trace output file (- for stderr; extension picks the format)")
	rootCmd.PersistentFlags().String("trace-level", "", "trace level (off|error|info|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "", "trace storage (stream|ring|both)")
	rootCmd.PersistentFlags().String("trace-format", "", "trace format (auto|text|ndjson|msgpack)")
	rootCmd.PersistentFlags().Int("trace-ring-size", 0, "events kept in the crash ring buffer")
	rootCmd.PersistentFlags().Duration("trace-heartbeat", 0, "heartbeat interval (0 disables)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func applyColor(cmd *cobra.Command, _ []string) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

// loadConfig resolves the settings file. dir is the directory relative paths
// in the file refer to.
func loadConfig(cmd *cobra.Command) (cfg config.Config, path, dir string, err error) {
	explicit, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return cfg, "", "", err
	}
	wd, err := os.Getwd()
	if err != nil {
		return cfg, "", "", err
	}
	cfg, path, err = config.Resolve(explicit, wd)
	if err != nil {
		return cfg, "", "", err
	}
	dir = wd
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return cfg, "", "", err
		}
		dir = filepath.Dir(abs)
	}
	return cfg, path, dir, nil
}

func resolvePath(dir, path string) string {
	if path == "" || path == "-" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
