package store

import (
	"database/sql"
	"time"

	"github.com/dotcommander/refresher/internal/models"
)

// scanNullString converts sql.NullString to string (empty if NULL)
func scanNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// scanNullTime converts sql.NullTime to *time.Time (nil if NULL)
func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

const connectionColumns = `id, workbook, name, source, refresh_failures, last_refreshed_at, last_error, created_at`

// connectionRowScanner encapsulates the common connection row scanning logic.
type connectionRowScanner struct {
	conn          models.Connection
	lastRefreshed sql.NullTime
	lastError     sql.NullString
}

func (s *connectionRowScanner) scan(row interface {
	Scan(dest ...any) error
}) error {
	return row.Scan(
		&s.conn.ID,
		&s.conn.Workbook,
		&s.conn.Name,
		&s.conn.Source,
		&s.conn.RefreshFailures,
		&s.lastRefreshed,
		&s.lastError,
		&s.conn.CreatedAt,
	)
}

func (s *connectionRowScanner) get() models.Connection {
	s.conn.LastRefreshedAt = scanNullTime(s.lastRefreshed)
	s.conn.LastError = scanNullString(s.lastError)
	return s.conn
}
