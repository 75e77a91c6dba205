package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nimbus/internal/orchestrator"
)

var (
	stopPause  bool
	stopResume bool
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop, pause or resume a running loop",
	Long: `Signal a running loop through the state directory.

The loop finishes its current iteration, writes a final snapshot and exits.
With --pause the loop waits before its next iteration until --resume.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopPause, "pause", false, "Pause instead of stopping")
	stopCmd.Flags().BoolVar(&stopResume, "resume", false, "Resume a paused loop")
	stopCmd.MarkFlagsMutuallyExclusive("pause", "resume")
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir := cfg.Workspace.StateDir
	out := cmd.OutOrStdout()

	switch {
	case stopResume:
		if err := orchestrator.ClearSignal(dir, orchestrator.SignalPause); err != nil {
			return err
		}
		printStatus(out, "✓", "Resume signal sent", color.FgGreen)
	case stopPause:
		if err := orchestrator.SendSignal(dir, orchestrator.SignalPause); err != nil {
			return err
		}
		printStatus(out, "✓", "Pause signal sent", color.FgGreen)
	default:
		if err := orchestrator.SendSignal(dir, orchestrator.SignalStop); err != nil {
			return err
		}
		printStatus(out, "✓", "Stop signal sent", color.FgGreen)
	}
	return nil
}
