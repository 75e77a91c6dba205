package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	osexec "os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nimbus/internal/config"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
)

var (
	initForce   bool
	initBackend string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a nimbus workspace",
	Long: `Initialize a directory for use with nimbus.

This command sets up everything needed to run the loop:
  - Checks for the project interpreter and an API key
  - Creates the projects and state directories
  - Writes .nimbus.yaml with the default settings
  - Writes the stage policy to the state directory for editing

The directory argument is optional and defaults to the current directory.

Examples:
  nimbus init                  # Initialize current directory
  nimbus init ./lab            # Initialize specific directory
  nimbus init --backend file   # Snapshot to JSON instead of SQLite
  nimbus init --force          # Overwrite existing configuration`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing configuration")
	initCmd.Flags().StringVar(&initBackend, "backend", config.BackendSQLite, "Persistence backend (sqlite or file)")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initializing nimbus in %s...\n\n", absPath)

	cfgPath := filepath.Join(absPath, config.ProjectConfigName)
	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		fmt.Fprintln(out, "Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	cfg := config.Default()
	cfg.Persistence.Backend = initBackend
	if err := cfg.Validate(); err != nil {
		return err
	}

	checkPrerequisites(out, cfg)

	for _, dir := range []string{cfg.Workspace.ProjectsDir, cfg.Workspace.StateDir} {
		if err := os.MkdirAll(filepath.Join(absPath, dir), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		printStatus(out, "✓", fmt.Sprintf("Created %s/", dir), color.FgGreen)
	}

	if err := config.SaveTo(cfg, cfgPath); err != nil {
		return fmt.Errorf("writing %s: %w", config.ProjectConfigName, err)
	}
	printStatus(out, "✓", "Wrote "+config.ProjectConfigName, color.FgGreen)

	policyPath := filepath.Join(absPath, cfg.PolicyPath())
	written, err := writePolicy(policyPath, initForce)
	if err != nil {
		return err
	}
	if written {
		printStatus(out, "✓", "Wrote "+cfg.PolicyPath(), color.FgGreen)
	} else {
		printStatus(out, "•", cfg.PolicyPath()+" exists, kept", color.FgBlue)
	}

	fmt.Fprintln(out, "\nRun 'nimbus run' to start the loop.")
	return nil
}

func checkPrerequisites(w io.Writer, cfg *config.Config) {
	if _, err := osexec.LookPath(cfg.Workspace.Interpreter); err != nil {
		printStatus(w, "⚠", cfg.Workspace.Interpreter+" not found (run_code and run_unit_tests will fail)", color.FgYellow)
	} else {
		printStatus(w, "✓", cfg.Workspace.Interpreter+" found", color.FgGreen)
	}
	if _, err := osexec.LookPath("git"); err != nil {
		printStatus(w, "•", "git not found (repositories are handled in-process)", color.FgBlue)
	}

	switch config.GetAPIKeySource(cfg) {
	case config.KeySourceNone:
		printStatus(w, "⚠", "ANTHROPIC_API_KEY not set (the scoring policy will be used)", color.FgYellow)
	default:
		printStatus(w, "✓", "Decision oracle credentials found", color.FgGreen)
	}
}

// writePolicy writes the default stage policy unless a file exists and
// force is false.
func writePolicy(path string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	data, err := policy.Default().Marshal()
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("writing policy: %w", err)
	}
	return true, nil
}
