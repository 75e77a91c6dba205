package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nimbus/internal/config"
	"github.com/ShayCichocki/nimbus/internal/persist"
	"github.com/ShayCichocki/nimbus/internal/state"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

var statusRecent int

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(18)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show loop state and project progress",
	Long: `Display what the loop has done so far.

Shows:
  - The latest run session
  - The last snapshot and its memory size
  - Progress per project (stage, completed stages, counters)
  - The most recent dispatched actions

With the file backend only the snapshot is available.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusRecent, "recent", "n", 10, "Number of recent actions to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if cfg.Persistence.Backend == config.BackendFile {
		snap, err := persist.NewFileStore(cfg.SnapshotPath()).LoadSnapshot(ctx)
		if err != nil {
			return err
		}
		displaySnapshot(out, snap)
		return nil
	}

	dbPath := state.DBPath(cfg.Workspace.StateDir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No state found. Run 'nimbus run' to start.")
		return nil
	}
	db, err := state.OpenWithDriver(cfg.Persistence.Driver, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	return displayDB(ctx, out, db, statusRecent)
}

func displayDB(ctx context.Context, w io.Writer, db *state.DB, recent int) error {
	session, err := db.LatestSession(ctx)
	if err != nil {
		return err
	}
	displaySession(w, session)

	snap, err := db.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	displaySnapshot(w, snap)

	records, err := db.ListProgress(ctx)
	if err != nil {
		return err
	}
	displayProgress(w, records)

	actions, err := db.RecentActions(ctx, recent)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, headerStyle.Render("Recent actions"))
	if len(actions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  none"))
	}
	for _, rec := range actions {
		st := okStyle
		if rec.Result.Status != models.StatusSuccess {
			st = failStyle
		}
		fmt.Fprintf(w, "  %s %-28s %s\n",
			mutedStyle.Render(fmt.Sprintf("#%-4d", rec.Seq)),
			rec.Name,
			st.Render(string(rec.Result.Status)))
	}
	return nil
}

func displaySession(w io.Writer, s *state.Session) {
	fmt.Fprintln(w, headerStyle.Render("Session"))
	if s == nil {
		fmt.Fprintln(w, mutedStyle.Render("  no sessions yet"))
		fmt.Fprintln(w)
		return
	}
	row(w, "ID", s.ID)
	row(w, "Status", string(s.Status))
	row(w, "Started", s.StartedAt.Local().Format(time.DateTime))
	if s.EndedAt != nil {
		row(w, "Duration", s.EndedAt.Sub(s.StartedAt).Round(time.Second).String())
	}
	row(w, "Iterations", fmt.Sprint(s.Iterations))
	fmt.Fprintln(w)
}

func displaySnapshot(w io.Writer, snap *models.Snapshot) {
	fmt.Fprintln(w, headerStyle.Render("Snapshot"))
	if snap == nil {
		fmt.Fprintln(w, mutedStyle.Render("  no snapshot yet"))
		fmt.Fprintln(w)
		return
	}
	row(w, "Saved", snap.SavedAt().Local().Format(time.DateTime))
	row(w, "Memory keys", fmt.Sprint(len(snap.LongTermMemory)))
	row(w, "Experiences", fmt.Sprint(len(snap.RecentExperiences)))
	fmt.Fprintln(w)
}

func displayProgress(w io.Writer, records []models.ProgressRecord) {
	fmt.Fprintln(w, headerStyle.Render("Projects"))
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  none"))
	}
	for _, rec := range records {
		done := make([]string, 0, len(rec.StagesCompleted))
		for _, s := range rec.StagesCompleted {
			done = append(done, string(s))
		}
		status := string(rec.CurrentStage)
		if len(rec.StagesCompleted) == len(models.AllStages()) {
			status = okStyle.Render("completed")
		}
		fmt.Fprintf(w, "  %s  %s\n", lipgloss.NewStyle().Bold(true).Render(rec.Project), status)
		fmt.Fprintf(w, "    %s\n", mutedStyle.Render(fmt.Sprintf(
			"actions %d  errors %d  tests %d  commits %d  done [%s]",
			rec.Counters.TotalActions, rec.Counters.Errors,
			rec.Counters.TestsWritten, rec.Counters.CommitsMade,
			strings.Join(done, ", "))))
	}
	fmt.Fprintln(w)
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s%s\n", labelStyle.Render(label), value)
}
