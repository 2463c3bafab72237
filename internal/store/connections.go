package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotcommander/refresher/internal/models"
)

// AddConnection registers a connection against a workbook. Names need not be
// unique; duplicates are what cleanup exists to remove.
func AddConnection(db *sql.DB, workbook, name, source string) (*models.Connection, error) {
	workbook = strings.TrimSpace(workbook)
	if workbook == "" {
		return nil, errors.New("workbook is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("connection name is required")
	}

	var id int64
	err := Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), `
			INSERT INTO connections (workbook, name, source) VALUES (?, ?, ?)
		`, workbook, name, source)
		if err != nil {
			return fmt.Errorf("failed to insert connection: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, err
	}
	return getConnectionByID(db, id)
}

// ListConnections returns a workbook's connections in position order.
func ListConnections(db *sql.DB, workbook string) ([]models.Connection, error) {
	rows, err := db.QueryContext(context.Background(),
		`SELECT `+connectionColumns+` FROM connections WHERE workbook = ? ORDER BY id`, workbook)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Connection
	for rows.Next() {
		var s connectionRowScanner
		if err := s.scan(rows); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		out = append(out, s.get())
	}
	return out, rows.Err()
}

// GetConnection returns the first connection named name in workbook.
func GetConnection(db *sql.DB, workbook, name string) (*models.Connection, error) {
	row := db.QueryRowContext(context.Background(),
		`SELECT `+connectionColumns+` FROM connections WHERE workbook = ? AND name = ? ORDER BY id LIMIT 1`,
		workbook, name)
	var s connectionRowScanner
	if err := s.scan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ConnectionNotFoundError{Workbook: workbook, Name: name}
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	c := s.get()
	return &c, nil
}

func getConnectionByID(db *sql.DB, id int64) (*models.Connection, error) {
	row := db.QueryRowContext(context.Background(),
		`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	var s connectionRowScanner
	if err := s.scan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ConnectionNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	c := s.get()
	return &c, nil
}

// CountConnections returns how many connections a workbook holds.
func CountConnections(db *sql.DB, workbook string) (int, error) {
	var n int
	err := db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM connections WHERE workbook = ?`, workbook).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return n, nil
}

// MarkRefreshed stamps a successful refresh and clears the failure streak.
func MarkRefreshed(db *sql.DB, id int64, at time.Time) error {
	return updateConnection(db, id, `
		UPDATE connections
		SET last_refreshed_at = ?, last_error = NULL, refresh_failures = 0
		WHERE id = ?
	`, at.UTC(), id)
}

// RecordRefreshFailure bumps the failure streak and keeps the last error text.
func RecordRefreshFailure(db *sql.DB, id int64, msg string) error {
	return updateConnection(db, id, `
		UPDATE connections
		SET refresh_failures = refresh_failures + 1, last_error = ?
		WHERE id = ?
	`, msg, id)
}

func updateConnection(db *sql.DB, id int64, query string, args ...any) error {
	return Transact(db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(context.Background(), query, args...)
		if err != nil {
			return fmt.Errorf("failed to update connection: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return &ConnectionNotFoundError{ID: id}
		}
		return nil
	})
}
