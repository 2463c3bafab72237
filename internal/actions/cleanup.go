package actions

import (
	"database/sql"
	"errors"
	"log/slog"

	"github.com/dotcommander/refresher/internal/cleanup"
	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/metrics"
	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/store"
)

// CleanupResult is the outcome of a standalone cleanup run.
type CleanupResult struct {
	RunID    string             `json:"run_id"`
	Workbook string             `json:"workbook"`
	Report   models.Report      `json:"report"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// Cleanup removes the workbook's connections matched by predicate.
func Cleanup(db *sql.DB, workbook string, predicate cleanup.Predicate, rec diag.Recorder, m *metrics.Metrics) (models.Report, error) {
	if workbook == "" {
		return models.Report{}, errors.New("workbook is required")
	}
	if predicate == nil {
		return models.Report{}, ErrNoCleanupPolicy
	}
	provider := store.NewConnectionProvider(db, workbook)
	return cleanup.CleanupResources(provider, predicate,
		cleanup.WithRecorder(rec),
		cleanup.WithMetrics(m),
	)
}

// CleanupRun runs Cleanup as its own recorded run.
func CleanupRun(db *sql.DB, workbook string, predicate cleanup.Predicate, logger *slog.Logger) (*CleanupResult, error) {
	r, err := startRun(db, logger, nil, "cleanup")
	if err != nil {
		return nil, err
	}
	report, err := Cleanup(db, workbook, predicate, r.rec, r.metrics)
	summary := r.finish(map[string]any{"workbook": workbook, "removed": report.Removed, "failed": report.Failed})
	if err != nil {
		return nil, err
	}
	return &CleanupResult{RunID: r.id, Workbook: workbook, Report: report, Metrics: summary}, nil
}
