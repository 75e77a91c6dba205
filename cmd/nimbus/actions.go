package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the action catalog and stage policy",
	Long: `List every action the loop can select, grouped by category, followed by
the stage requirements and preferred actions from the active policy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		pol, err := policy.Load(cfg.PolicyPath())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()

		var category models.Category
		for _, desc := range action.DefaultCatalog().All() {
			if desc.Category != category {
				category = desc.Category
				fmt.Fprintf(w, "\n%s\n", headerStyle.Render(string(category)))
			}
			fmt.Fprintf(w, "  %-28s %s\n", desc.Name, mutedStyle.Render(desc.Description))
		}

		fmt.Fprintf(w, "\n%s\n", headerStyle.Render("stages"))
		fmt.Fprintf(w, "  %-16s %s\n", policy.IdleKey, strings.Join(pol.Preferred[policy.IdleKey], ", "))
		for _, stage := range models.AllStages() {
			fmt.Fprintf(w, "  %-16s %s\n", stage, strings.Join(pol.Preferred[string(stage)], ", "))
			fmt.Fprintf(w, "  %-16s %s\n", "", mutedStyle.Render("requires: "+strings.Join(pol.Requirements[stage], ", ")))
		}
		return nil
	},
}
