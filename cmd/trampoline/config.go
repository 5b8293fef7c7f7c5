package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trampoline/internal/behaviors"
	"trampoline/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration trampoline run would use, as TOML. Values missing
from trampoline.toml are filled in from the defaults.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().Bool("path", false, "only print the path of the config file in use")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	onlyPath, err := cmd.Flags().GetBool("path")
	if err != nil {
		return fmt.Errorf("failed to get path flag: %w", err)
	}
	cfg, path, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if onlyPath {
		if path == "" {
			return fmt.Errorf("no %s found", config.FileName)
		}
		fmt.Fprintln(out, path)
		return nil
	}
	if err := behaviors.Validate(cfg.Robot.Behaviors); err != nil {
		return fmt.Errorf("[robot].behaviors: %w", err)
	}

	data, err := config.Encode(cfg)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(out, "# no %s found, showing defaults\n", config.FileName)
	} else {
		fmt.Fprintf(out, "# %s\n", path)
	}
	_, err = out.Write(data)
	return err
}
