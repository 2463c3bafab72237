package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddConnection_ListsInInsertionOrder(t *testing.T) {
	db := setupTestDB(t)

	for _, name := range []string{"Orders", "Customers", "Orders"} {
		_, err := AddConnection(db, "Sales.xlsx", name, "odbc:sales")
		require.NoError(t, err)
	}
	_, err := AddConnection(db, "Other.xlsx", "Budget", "")
	require.NoError(t, err)

	conns, err := ListConnections(db, "Sales.xlsx")
	require.NoError(t, err)
	require.Len(t, conns, 3)
	require.Equal(t, "Orders", conns[0].Name)
	require.Equal(t, "Customers", conns[1].Name)
	require.Equal(t, "Orders", conns[2].Name)
	require.Equal(t, "odbc:sales", conns[0].Source)
	require.Nil(t, conns[0].LastRefreshedAt)
	require.False(t, conns[0].CreatedAt.IsZero())

	n, err := CountConnections(db, "Other.xlsx")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAddConnection_RequiresWorkbookAndName(t *testing.T) {
	db := setupTestDB(t)

	_, err := AddConnection(db, " ", "Orders", "")
	require.Error(t, err)
	_, err = AddConnection(db, "Sales.xlsx", "", "")
	require.Error(t, err)
}

func TestGetConnection_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := GetConnection(db, "Sales.xlsx", "Missing")
	require.ErrorIs(t, err, ErrConnectionNotFound)

	var nf *ConnectionNotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "CONNECTION_NOT_FOUND", nf.ErrorCode())
	require.Equal(t, "Missing", nf.Context()["name"])
}

func TestMarkRefreshedAndRecordFailure(t *testing.T) {
	db := setupTestDB(t)

	c, err := AddConnection(db, "Sales.xlsx", "Orders", "")
	require.NoError(t, err)

	require.NoError(t, RecordRefreshFailure(db, c.ID, "timeout"))
	require.NoError(t, RecordRefreshFailure(db, c.ID, "still timing out"))

	got, err := GetConnection(db, "Sales.xlsx", "Orders")
	require.NoError(t, err)
	require.Equal(t, 2, got.RefreshFailures)
	require.Equal(t, "still timing out", got.LastError)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, MarkRefreshed(db, c.ID, at))

	got, err = GetConnection(db, "Sales.xlsx", "Orders")
	require.NoError(t, err)
	require.Equal(t, 0, got.RefreshFailures)
	require.Empty(t, got.LastError)
	require.NotNil(t, got.LastRefreshedAt)
	require.True(t, at.Equal(*got.LastRefreshedAt))
}

func TestMarkRefreshed_UnknownID(t *testing.T) {
	db := setupTestDB(t)

	err := MarkRefreshed(db, 999, time.Now())
	require.ErrorIs(t, err, ErrConnectionNotFound)
	err = RecordRefreshFailure(db, 999, "x")
	require.ErrorIs(t, err, ErrConnectionNotFound)
}
