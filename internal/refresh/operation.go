package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/retry"
	"github.com/dotcommander/refresher/internal/store"
)

// Key is the retry session key for a connection.
func Key(workbook, name string) string {
	return workbook + "/" + name
}

type opConfig struct {
	rec diag.Recorder
	now func() time.Time
}

// OperationOption configures Operation.
type OperationOption func(*opConfig)

// WithRecorder reports validation and command outcomes to rec.
func WithRecorder(rec diag.Recorder) OperationOption {
	return func(c *opConfig) { c.rec = rec }
}

// WithNow sets the clock used to stamp successful refreshes.
func WithNow(now func() time.Time) OperationOption {
	return func(c *opConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// Operation returns the retryable refresh of one connection. Each attempt
// re-reads the catalog: a connection removed since scheduling ends the
// session without further retries.
func Operation(db *sql.DB, runner *Runner, workbook, name string, opts ...OperationOption) retry.Operation {
	cfg := opConfig{rec: diag.Nop, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	rec := diag.Safe(cfg.rec)

	return func(ctx context.Context, a retry.Attempt) error {
		extra := map[string]any{"key": a.Key, "workbook": workbook, "connection": name, "attempt": a.Number}

		conn, err := store.GetConnection(db, workbook, name)
		if errors.Is(err, store.ErrConnectionNotFound) {
			rec.Record(diag.LevelWarn, models.StepRefreshValidate, "connection no longer in catalog", extra)
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}

		if runner.Enabled() {
			out, err := runner.Run(ctx, workbook, name)
			if err != nil {
				extra["error"] = err.Error()
				rec.Record(diag.LevelWarn, models.StepRefreshCommand, "refresh command failed", extra)
				if recErr := store.RecordRefreshFailure(db, conn.ID, err.Error()); recErr != nil {
					return errors.Join(err, fmt.Errorf("record failure: %w", recErr))
				}
				return err
			}
			extra["output"] = out
			rec.Record(diag.LevelDetail, models.StepRefreshCommand, "refresh command succeeded", extra)
		}
		return store.MarkRefreshed(db, conn.ID, cfg.now())
	}
}
