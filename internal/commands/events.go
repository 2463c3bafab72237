package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/refresher/internal/actions"
	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/output"
)

func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the diagnostics of the latest run",
	}
	cmd.AddCommand(newEventsListCmd())
	return cmd
}

func newEventsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the events of a run (default: the latest run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("run-id")
			limit, _ := cmd.Flags().GetInt("limit")
			step, _ := cmd.Flags().GetString("step")

			return withDB(func(db *DB) error {
				resolved, events, err := actions.RunEvents(db, runID, limit)
				if err != nil {
					return err
				}
				filtered := make([]models.Event, 0, len(events))
				for _, e := range events {
					if step == "" || e.Step == step {
						filtered = append(filtered, e)
					}
				}
				type resp struct {
					RunID  string         `json:"run_id"`
					Count  int            `json:"count"`
					Events []models.Event `json:"events"`
				}
				return output.PrintSuccess(resp{RunID: resolved, Count: len(filtered), Events: filtered})
			})
		},
	}
	cmd.Flags().String("run-id", "", "Run to inspect (default: latest)")
	cmd.Flags().String("step", "", "Only events of this step (e.g. attempt.finish)")
	cmd.Flags().Int("limit", 500, "Maximum events to return")
	return cmd
}
