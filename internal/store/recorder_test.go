package store

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/refresher/internal/diag"
)

func TestEventRecorder_PersistsRecords(t *testing.T) {
	db := setupTestDB(t)
	rec := NewEventRecorder(db, "run-7", nil)

	rec.Record(diag.LevelInfo, "session.state", "idle", map[string]any{"key": "Sales.xlsx/Orders"})
	rec.Record(diag.LevelDetail, "attempt.start", "attempt 1 of 3", nil)

	events, err := ListEvents(db, "run-7", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "info", events[0].Level)
	require.Equal(t, "Sales.xlsx/Orders", events[0].Extra["key"])
	require.Equal(t, "detail", events[1].Level)
}

func TestEventRecorder_SwallowsWriteErrors(t *testing.T) {
	db := setupTestDB(t)
	var buf bytes.Buffer
	rec := NewEventRecorder(db, "run-7", slog.New(slog.NewTextHandler(&buf, nil)))

	require.NotPanics(t, func() {
		rec.Record(diag.LevelInfo, "", "empty step is rejected", nil)
	})
	require.Contains(t, buf.String(), "failed to persist event")

	events, err := ListEvents(db, "run-7", 0)
	require.NoError(t, err)
	require.Empty(t, events)
}
