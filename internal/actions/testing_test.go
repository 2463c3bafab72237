package actions

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/refresher/internal/store"
)

// setupTestDB creates a test DB closed automatically via t.Cleanup.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDBPath := t.TempDir() + "/test.db"
	db, err := store.InitDBWithPath(testDBPath)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedConnections(t *testing.T, db *sql.DB, workbook string, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := ConnAdd(db, workbook, name, "")
		require.NoError(t, err)
	}
}

func connNames(t *testing.T, db *sql.DB, workbook string) []string {
	t.Helper()
	conns, err := ConnList(db, workbook)
	require.NoError(t, err)
	var out []string
	for _, c := range conns {
		out = append(out, c.Name)
	}
	return out
}
