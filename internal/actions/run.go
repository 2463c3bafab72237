package actions

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/metrics"
	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/store"
)

// run is the bookkeeping shared by one cleanup or refresh invocation: a fresh
// run id, a recorder fanning out to the events table and the log, and
// counters scoped to this run.
type run struct {
	id      string
	rec     diag.Recorder
	metrics *metrics.Metrics
	started time.Time
}

// startRun drops events of earlier runs and records run.started.
func startRun(db *sql.DB, logger *slog.Logger, extra diag.Recorder, kind string) (*run, error) {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	if _, err := store.PruneEventsOutsideRun(db, id); err != nil {
		return nil, fmt.Errorf("prune previous runs: %w", err)
	}

	recs := diag.Multi{
		store.NewEventRecorder(db, id, logger),
		diag.NewSlogRecorder(logger.With("run_id", id)),
	}
	if extra != nil {
		recs = append(recs, extra)
	}

	r := &run{id: id, rec: recs, metrics: metrics.New(), started: time.Now()}
	r.rec.Record(diag.LevelInfo, models.StepRunStarted, kind+" run started", map[string]any{"kind": kind})
	return r, nil
}

// finish records run.finished with the run's counters and returns them.
func (r *run) finish(extra map[string]any) map[string]float64 {
	summary, err := r.metrics.Summary()
	if err != nil {
		summary = nil
	}
	if extra == nil {
		extra = map[string]any{}
	}
	extra["duration_ms"] = time.Since(r.started).Milliseconds()
	for k, v := range summary {
		extra[k] = v
	}
	r.rec.Record(diag.LevelInfo, models.StepRunFinished, "run finished", extra)
	return summary
}

// RunEvents returns the events of runID, or of the latest run when runID is empty.
func RunEvents(db *sql.DB, runID string, limit int) (string, []models.Event, error) {
	if runID == "" {
		latest, err := store.LatestRunID(db)
		if err != nil {
			return "", nil, err
		}
		if latest == "" {
			return "", nil, nil
		}
		runID = latest
	}
	events, err := store.ListEvents(db, runID, limit)
	if err != nil {
		return "", nil, err
	}
	return runID, events, nil
}
