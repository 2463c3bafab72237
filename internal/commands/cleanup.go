package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dotcommander/refresher/internal/actions"
	"github.com/dotcommander/refresher/internal/app"
	"github.com/dotcommander/refresher/internal/output"
)

func NewCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove duplicate or unwanted connections from a workbook",
		Long: "Scans every connection, plans the removals, then deletes from the highest\n" +
			"position down. Without rule flags the configured duplicate_suffixes are used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workbook, err := requireString(cmd, "workbook")
			if err != nil {
				return err
			}
			pred, err := actions.BuildPredicate(predicateOptions(cmd))
			if err != nil {
				return cmdErr(err)
			}
			return withDB(func(db *DB) error {
				res, err := actions.CleanupRun(db, workbook, pred, slog.Default())
				if err != nil {
					return err
				}
				return output.PrintSuccess(res)
			})
		},
	}
	cmd.Flags().String("workbook", "", "Workbook name (required)")
	addPredicateFlags(cmd)
	return cmd
}

func addPredicateFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("suffix", nil, "Remove connections whose name ends with this suffix (repeatable)")
	cmd.Flags().Bool("duplicates", false, "Remove every repeat of a name already seen")
	cmd.Flags().String("pattern", "", "Remove connections whose name matches this regular expression")
}

// predicateOptions reads the rule flags, falling back to configured suffixes.
func predicateOptions(cmd *cobra.Command) actions.PredicateOptions {
	suffixes, _ := cmd.Flags().GetStringSlice("suffix")
	duplicates, _ := cmd.Flags().GetBool("duplicates")
	pattern, _ := cmd.Flags().GetString("pattern")

	opts := actions.PredicateOptions{Suffixes: suffixes, Duplicates: duplicates, Pattern: pattern}
	if opts.Empty() {
		opts.Suffixes = app.DuplicateSuffixes()
	}
	return opts
}
