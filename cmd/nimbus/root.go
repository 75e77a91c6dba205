package main

import (
	"os"

	"github.com/ShayCichocki/nimbus/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nimbus",
	Short: "Autonomous project lifecycle orchestrator",
	Long: `nimbus drives small software projects through planning, implementation,
testing and review on its own.

Each iteration it asks a decision oracle (Claude, when configured) for the
next action, executes it against the project workspace, tracks progress and
periodically snapshots what it has learned. When the oracle is unavailable a
deterministic scoring policy picks the action instead.

With no arguments, runs the loop (same as 'nimbus run').`,
	SilenceUsage: true,
	RunE:         runLoop,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config merged with .nimbus.yaml)")
	addRunFlags(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the file named by --config, or the layered default
// configuration when the flag is unset.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
