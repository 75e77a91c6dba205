package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nimbus/internal/config"
	"github.com/ShayCichocki/nimbus/internal/logging"
	"github.com/ShayCichocki/nimbus/internal/orchestrator"
	"github.com/ShayCichocki/nimbus/internal/state"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

var (
	runMaxIterations int
	runInterval      time.Duration
	runNoOracle      bool
	runQuiet         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration loop",
	Long: `Run the orchestration loop until interrupted.

The loop resumes from the last snapshot, then repeatedly selects and executes
an action. Ctrl+C, SIGTERM or 'nimbus stop' end the loop after the current
iteration; a final snapshot is always written.

Examples:
  nimbus run                        # Run until stopped
  nimbus run --max-iterations 20    # Run twenty iterations
  nimbus run --no-oracle            # Use the scoring policy only
  nimbus run --interval 0           # Do not pause between iterations`,
	Args: cobra.NoArgs,
	RunE: runLoop,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Stop after this many iterations (0 = unlimited)")
	cmd.Flags().DurationVar(&runInterval, "interval", time.Second, "Pause between iterations")
	cmd.Flags().BoolVar(&runNoOracle, "no-oracle", false, "Disable the decision oracle and use the scoring policy only")
	cmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print lifecycle events")
}

// applyRunFlags overrides config values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("max-iterations") {
		cfg.Loop.MaxIterations = runMaxIterations
	}
	if cmd.Flags().Changed("interval") {
		cfg.Loop.Interval = runInterval
	}
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyRunFlags(cmd, cfg)

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger, appOptions{noOracle: runNoOracle})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if a.decider != nil {
		printStatus(out, "✓", fmt.Sprintf("Decision oracle: %s", cfg.Oracle.Model), color.FgGreen)
	} else {
		printStatus(out, "⚠", "Decision oracle disabled, using scoring policy", color.FgYellow)
	}
	printStatus(out, "•", fmt.Sprintf("Persistence: %s (%s)", cfg.Persistence.Backend, cfg.Workspace.StateDir), color.FgCyan)

	session := a.startSession(ctx, uuid.NewString(), time.Now())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printEvents(out, a.orch.Events(), runQuiet)
	}()

	runErr := a.orch.Run(ctx)
	wg.Wait()

	status := state.SessionCompleted
	switch {
	case runErr != nil:
		status = state.SessionFailed
	case ctx.Err() != nil:
		status = state.SessionCanceled
	}
	a.finishSession(context.WithoutCancel(ctx), session, status, time.Now())

	printSummary(out, a)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("loop failed", zap.Error(runErr))
		return runErr
	}
	return nil
}

// printEvents renders orchestrator events until the channel closes.
func printEvents(w io.Writer, events <-chan orchestrator.Event, quiet bool) {
	for ev := range events {
		switch ev.Type {
		case orchestrator.EventActionDispatched:
			if quiet {
				continue
			}
			c := color.FgGreen
			if ev.Status != models.StatusSuccess {
				c = color.FgRed
			}
			printStatus(w, "→", fmt.Sprintf("%-28s %s", ev.Action, ev.Status), c)
		case orchestrator.EventProjectStarted:
			printStatus(w, "★", fmt.Sprintf("Project %s started at %s", ev.Project, ev.Stage), color.FgCyan)
		case orchestrator.EventStageAdvanced:
			printStatus(w, "↑", fmt.Sprintf("Project %s advanced to %s", ev.Project, ev.Stage), color.FgCyan)
		case orchestrator.EventProjectCompleted:
			printStatus(w, "✓", fmt.Sprintf("Project %s completed", ev.Project), color.FgGreen)
		case orchestrator.EventProjectExited:
			printStatus(w, "←", fmt.Sprintf("Project %s exited", ev.Project), color.FgYellow)
		case orchestrator.EventOracleFallback:
			if !quiet {
				printStatus(w, "⚠", "Oracle fallback: "+ev.Message, color.FgYellow)
			}
		case orchestrator.EventWarning:
			printStatus(w, "⚠", ev.Message, color.FgYellow)
		case orchestrator.EventSnapshotSaved:
			if !quiet {
				printStatus(w, "•", "Snapshot saved", color.FgBlue)
			}
		}
	}
}

func printSummary(w io.Writer, a *app) {
	fmt.Fprintf(w, "\nIterations: %d\n", a.orch.Iterations())
	if dropped := a.orch.DroppedEvents(); dropped > 0 {
		fmt.Fprintf(w, "Dropped events: %d\n", dropped)
	}
	if a.decider == nil {
		return
	}
	tracker := a.decider.Tracker()
	in, out := tracker.Total()
	fmt.Fprintf(w, "Oracle calls: %d (tokens in %d, out %d, ~$%.4f)\n", tracker.Calls(), in, out, tracker.Cost())
}

// printStatus prints a status line with a colored symbol.
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}
