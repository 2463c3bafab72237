package store

import (
	"database/sql"
	"log/slog"

	"github.com/dotcommander/refresher/internal/diag"
)

// EventRecorder persists diagnostics records as events of one run.
// Write failures are logged and dropped; recording never fails the caller.
type EventRecorder struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger
}

var _ diag.Recorder = (*EventRecorder)(nil)

// NewEventRecorder returns a recorder writing to runID. A nil logger uses slog.Default().
func NewEventRecorder(db *sql.DB, runID string, logger *slog.Logger) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRecorder{db: db, runID: runID, logger: logger}
}

// RunID returns the run the recorder writes to.
func (r *EventRecorder) RunID() string { return r.runID }

// Record inserts one event.
func (r *EventRecorder) Record(level diag.Level, step, message string, extra map[string]any) {
	if _, err := InsertEvent(r.db, r.runID, string(level), step, message, extra); err != nil {
		r.logger.Warn("failed to persist event", "run_id", r.runID, "step", step, "error", err)
	}
}
