package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dotcommander/refresher/internal/models"
)

// Event payload size constraints enforced by ValidateEventPayload.
const (
	MaxEventStepLength     = 128
	MaxEventMessageLength  = 4096
	MaxEventMetadataLength = 16384

	defaultEventListLimit = 500
)

// ValidateEventPayload enforces event payload constraints.
func ValidateEventPayload(runID, step, message string, metadata []byte) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("run id is required")
	}
	step = strings.TrimSpace(step)
	if step == "" {
		return errors.New("event step is required")
	}
	if len(step) > MaxEventStepLength {
		return fmt.Errorf("event step exceeds max length (%d)", MaxEventStepLength)
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("event message is required")
	}
	if len(message) > MaxEventMessageLength {
		return fmt.Errorf("event message exceeds max length (%d)", MaxEventMessageLength)
	}
	if len(metadata) > MaxEventMetadataLength {
		return fmt.Errorf("event metadata exceeds max length (%d)", MaxEventMetadataLength)
	}
	return nil
}

// InsertEvent appends one diagnostics event for runID.
//
//nolint:revive // argument-limit: every event column is caller supplied
func InsertEvent(db *sql.DB, runID, level, step, message string, extra map[string]any) (int64, error) {
	var metadata []byte
	if len(extra) > 0 {
		b, err := json.Marshal(extra)
		if err != nil {
			return 0, fmt.Errorf("failed to encode event metadata: %w", err)
		}
		metadata = b
	}
	if err := ValidateEventPayload(runID, step, message, metadata); err != nil {
		return 0, err
	}

	var meta any
	if metadata != nil {
		meta = string(metadata)
	}

	var id int64
	err := Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `
			INSERT INTO events (run_id, level, step, message, extra) VALUES (?, ?, ?, ?, ?)
		`, runID, level, step, message, meta)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// ListEvents returns runID's events oldest first. limit <= 0 uses the default.
func ListEvents(db *sql.DB, runID string, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = defaultEventListLimit
	}
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, run_id, level, step, message, extra, created_at
		FROM events
		WHERE run_id = ?
		ORDER BY id
		LIMIT ?
	`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Event
	for rows.Next() {
		var (
			e     models.Event
			extra sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Level, &e.Step, &e.Message, &extra, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &e.Extra); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of event %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneEventsOutsideRun deletes every event not belonging to runID.
// Only the current run's history is kept.
func PruneEventsOutsideRun(db *sql.DB, runID string) (int64, error) {
	var n int64
	err := Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `DELETE FROM events WHERE run_id <> ?`, runID)
		if err != nil {
			return fmt.Errorf("failed to prune events: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// LatestRunID returns the run id of the newest event, or "" when there are none.
func LatestRunID(db *sql.DB) (string, error) {
	var runID string
	err := db.QueryRowContext(context.Background(),
		`SELECT run_id FROM events ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read latest run id: %w", err)
	}
	return runID, nil
}
