package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/refresher/internal/actions"
	"github.com/dotcommander/refresher/internal/app"
	"github.com/dotcommander/refresher/internal/output"
	"github.com/dotcommander/refresher/internal/refresh"
)

func NewRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh a workbook's connections, retrying each with backoff",
		Long: "Each connection gets its own retry session. Attempts run one at a time on a\n" +
			"single dispatch loop; a failed attempt is retried after the backoff until\n" +
			"max attempts is reached. Interrupting cancels the sessions still open.",
		RunE: func(cmd *cobra.Command, args []string) error {
			workbook, err := requireString(cmd, "workbook")
			if err != nil {
				return err
			}

			settings, err := retrySettings(cmd)
			if err != nil {
				return cmdErr(err)
			}
			runner, err := refresh.NewRunner(settings.RefreshCommand, settings.RefreshTimeout)
			if err != nil {
				return cmdErr(err)
			}

			opts := actions.RefreshOptions{
				Workbook: workbook,
				Retry:    settings,
				Runner:   runner,
				Logger:   slog.Default(),
			}
			opts.Connections, _ = cmd.Flags().GetStringSlice("connection")

			if withCleanup, _ := cmd.Flags().GetBool("cleanup"); withCleanup {
				pred, err := actions.BuildPredicate(predicateOptions(cmd))
				if err != nil {
					return cmdErr(err)
				}
				opts.Cleanup = pred
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withDB(func(db *DB) error {
				res, err := actions.Refresh(ctx, db, opts)
				if err != nil {
					return err
				}
				return output.PrintSuccess(res)
			})
		},
	}
	cmd.Flags().String("workbook", "", "Workbook name (required)")
	cmd.Flags().StringSlice("connection", nil, "Refresh only this connection (repeatable)")
	cmd.Flags().Int("max-attempts", 0, "Attempts per connection (default: settings max_attempts)")
	cmd.Flags().Duration("backoff", 0, "Delay before a retry (default: settings backoff)")
	cmd.Flags().String("backoff-strategy", "", "Backoff strategy: constant|exponential")
	cmd.Flags().String("command", "", "Refresh command (default: settings refresh_command)")
	cmd.Flags().Duration("timeout", 0, "Per-attempt command timeout (default: settings refresh_timeout)")
	cmd.Flags().Bool("cleanup", false, "Run cleanup before refreshing")
	addPredicateFlags(cmd)
	return cmd
}

// retrySettings overlays command flags on the effective settings.
func retrySettings(cmd *cobra.Command) (app.RetrySettings, error) {
	s := app.EffectiveRetrySettings()

	if cmd.Flags().Changed("max-attempts") {
		n, _ := cmd.Flags().GetInt("max-attempts")
		if n < 1 {
			return s, errors.New("--max-attempts must be at least 1")
		}
		s.MaxAttempts = n
	}
	if cmd.Flags().Changed("backoff") {
		d, _ := cmd.Flags().GetDuration("backoff")
		if d < 0 {
			return s, errors.New("--backoff must not be negative")
		}
		s.Backoff = d
		if s.BackoffMax < d {
			s.BackoffMax = d
		}
	}
	if cmd.Flags().Changed("backoff-strategy") {
		strategy, _ := cmd.Flags().GetString("backoff-strategy")
		switch strategy {
		case app.StrategyConstant, app.StrategyExponential:
			s.Strategy = strategy
		default:
			return s, errors.New("--backoff-strategy must be constant or exponential")
		}
	}
	if cmd.Flags().Changed("command") {
		s.RefreshCommand, _ = cmd.Flags().GetString("command")
	}
	if cmd.Flags().Changed("timeout") {
		d, _ := cmd.Flags().GetDuration("timeout")
		if d <= 0 {
			return s, errors.New("--timeout must be positive")
		}
		s.RefreshTimeout = d
	}
	return s, nil
}
