package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"trampoline/internal/statefile"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <state-file>",
	Short: "Show the task set recorded in a state file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	state, err := statefile.Read(args[0])
	if err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(state.Snapshot)
	case "pretty":
		renderStatePretty(cmd.OutOrStdout(), state)
		return nil
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
}

func renderStatePretty(out io.Writer, state statefile.File) {
	snap := state.Snapshot
	bold := color.New(color.Bold)
	fmt.Fprintf(out, "%s %s\n", bold.Sprint("run"), snap.RunID)
	fmt.Fprintf(out, "round %d at clock %dms", snap.Round, snap.ClockMs)
	if !snap.Time.IsZero() {
		fmt.Fprintf(out, " (%s)", snap.Time.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, ", %d tasks\n\n", len(snap.Tasks))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "STATE", "DEPTH", "WAITS", "RESUMES")
	for _, ts := range snap.Tasks {
		label := color.YellowString("waiting")
		if ts.Pending {
			label = color.GreenString("ready")
		}
		t.Row(
			strconv.FormatUint(uint64(ts.ID), 10),
			ts.Name,
			label,
			strconv.Itoa(ts.Depth),
			strconv.Itoa(ts.Waits),
			strconv.FormatUint(ts.Resumes, 10),
		)
	}
	fmt.Fprintln(out, t.Render())
}
