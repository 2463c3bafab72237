package actions

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/metrics"
	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/store"
)

func TestCleanup_RemovesMatchedConnections(t *testing.T) {
	db := setupTestDB(t)
	seedConnections(t, db, "Sales.xlsx", "A", "B", "A (2)", "C", "B (2)")

	pred, err := BuildPredicate(PredicateOptions{Suffixes: []string{" (2)"}})
	require.NoError(t, err)

	rec := diag.NewMemoryRecorder(0)
	m := metrics.New()
	report, err := Cleanup(db, "Sales.xlsx", pred, rec, m)
	require.NoError(t, err)
	require.Equal(t, 2, report.Removed)
	require.Equal(t, 3, report.FinalCount)
	require.Equal(t, []string{"A", "B", "C"}, connNames(t, db, "Sales.xlsx"))
	require.Contains(t, rec.Steps(), models.StepCleanupDone)

	removed, err := m.Summary()
	require.NoError(t, err)
	require.InDelta(t, 2, removed["refresher_deletions_total{outcome=removed}"], 0)
}

func TestCleanup_Validation(t *testing.T) {
	db := setupTestDB(t)
	_, err := Cleanup(db, "", func(models.ResourceHandle) bool { return true }, nil, nil)
	require.Error(t, err)
	_, err = Cleanup(db, "Sales.xlsx", nil, nil, nil)
	require.ErrorIs(t, err, ErrNoCleanupPolicy)
}

func TestCleanupRun_PersistsOnlyCurrentRunEvents(t *testing.T) {
	db := setupTestDB(t)
	seedConnections(t, db, "Sales.xlsx", "A", "A")

	pred, err := BuildPredicate(PredicateOptions{Duplicates: true})
	require.NoError(t, err)

	first, err := CleanupRun(db, "Sales.xlsx", pred, nil)
	require.NoError(t, err)
	require.Equal(t, 1, first.Report.Removed)

	pred, err = BuildPredicate(PredicateOptions{Duplicates: true})
	require.NoError(t, err)
	second, err := CleanupRun(db, "Sales.xlsx", pred, nil)
	require.NoError(t, err)
	require.Zero(t, second.Report.Removed)
	require.NotEqual(t, first.RunID, second.RunID)

	old, err := store.ListEvents(db, first.RunID, 0)
	require.NoError(t, err)
	require.Empty(t, old)

	runID, events, err := RunEvents(db, "", 0)
	require.NoError(t, err)
	require.Equal(t, second.RunID, runID)
	require.NotEmpty(t, events)
	require.Equal(t, models.StepRunStarted, events[0].Step)
	require.Equal(t, models.StepRunFinished, events[len(events)-1].Step)
}

func TestCleanup_MetricsCountFailures(t *testing.T) {
	m := metrics.New()
	m.ObserveDeletion(string(models.OutcomeDeleteFailed))
	require.Equal(t, 1, testutil.CollectAndCount(m.Registry(), "refresher_deletions_total"))
}
