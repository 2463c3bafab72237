package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/refresher/internal/cleanup"
	"github.com/dotcommander/refresher/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDBWithPath(filepath.Join(t.TempDir(), "refresher.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitDB(t *testing.T) {
	testDBPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := InitDBWithPath(testDBPath)
	require.NoError(t, err)
	defer db.Close()

	_, statErr := os.Stat(testDBPath)
	require.NoError(t, statErr, "database file was not created")

	for _, table := range []string{"connections", "events"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s was not created", table)
	}

	version, err := SchemaVersion(db)
	require.NoError(t, err)
	require.Equal(t, int64(2), version)
}

func TestInitDB_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refresher.db")

	db, err := InitDBWithPath(path)
	require.NoError(t, err)
	_, err = AddConnection(db, "Sales.xlsx", "Orders", "")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDBWithPath(path)
	require.NoError(t, err)
	defer db.Close()

	n, err := CountConnections(db, "Sales.xlsx")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestNormalizeSQLiteDSN(t *testing.T) {
	require.Equal(t, "file:/tmp/x.db?mode=rwc", normalizeSQLiteDSN("/tmp/x.db"))
	require.Equal(t, "file::memory:?cache=shared", normalizeSQLiteDSN(":memory:"))
	require.Equal(t, "file:custom.db?mode=ro", normalizeSQLiteDSN("file:custom.db?mode=ro"))
}

func TestInitDB_CatalogPragmas(t *testing.T) {
	t.Setenv(EnvBusyTimeout, "")
	db := setupTestDB(t)

	require.Equal(t, 1, db.Stats().MaxOpenConnections)

	p, err := ReadPragmas(db)
	require.NoError(t, err)
	require.Equal(t, Pragmas{
		JournalMode:   "wal",
		BusyTimeoutMS: 5000,
		ForeignKeys:   true,
		Synchronous:   "NORMAL",
	}, p)
}

func TestInitDB_BusyTimeoutFromEnv(t *testing.T) {
	cases := map[string]int{
		"":        5000,
		"250":     250,
		" 900 ":   900,
		"0":       5000,
		"-10":     5000,
		"soon":    5000,
		"3600000": 60000,
	}
	for env, want := range cases {
		t.Setenv(EnvBusyTimeout, env)
		require.Equal(t, want, busyTimeoutMS(), "env %q", env)
	}

	t.Setenv(EnvBusyTimeout, "1500")
	db := setupTestDB(t)
	p, err := ReadPragmas(db)
	require.NoError(t, err)
	require.Equal(t, 1500, p.BusyTimeoutMS)
}

// Cleanup deletes inside provider transactions while the event recorder
// writes through the same single-connection handle.
func TestInitDB_ProviderAndRecorderShareOneConnection(t *testing.T) {
	db := setupTestDB(t)
	for _, name := range []string{"Orders", "Orders_copy", "Customers", "Customers_copy"} {
		_, err := AddConnection(db, "Sales.xlsx", name, "")
		require.NoError(t, err)
	}

	rec := NewEventRecorder(db, "run-1", nil)
	report, err := cleanup.CleanupResources(
		NewConnectionProvider(db, "Sales.xlsx"),
		cleanup.SuffixPredicate("_copy"),
		cleanup.WithRecorder(rec),
	)
	require.NoError(t, err)
	require.Equal(t, 2, report.Removed)
	require.Equal(t, 2, report.FinalCount)

	events, err := ListEvents(db, "run-1", 0)
	require.NoError(t, err)
	var deletes int
	for _, e := range events {
		if e.Step == models.StepCleanupDelete {
			deletes++
		}
	}
	require.Equal(t, 2, deletes)
}

func TestInitDB_InMemoryCatalogOutlivesStatements(t *testing.T) {
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	defer db.Close()

	workbook := t.Name() + ".xlsx"
	_, err = AddConnection(db, workbook, "Orders", "")
	require.NoError(t, err)
	_, err = InsertEvent(db, "mem-run", "info", models.StepRunStarted, "started", nil)
	require.NoError(t, err)

	n, err := CountConnections(db, workbook)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestSchemaVersion_ClosedHandleFails(t *testing.T) {
	db, err := InitDBWithPath(filepath.Join(t.TempDir(), "refresher.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = SchemaVersion(db)
	require.ErrorContains(t, err, "read schema version")
}
