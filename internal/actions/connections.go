package actions

import (
	"database/sql"
	"errors"

	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/store"
)

// ConnAdd registers a connection.
func ConnAdd(db *sql.DB, workbook, name, source string) (*models.Connection, error) {
	if workbook == "" {
		return nil, errors.New("workbook is required")
	}
	return store.AddConnection(db, workbook, name, source)
}

// ConnList lists a workbook's connections in position order.
func ConnList(db *sql.DB, workbook string) ([]models.Connection, error) {
	if workbook == "" {
		return nil, errors.New("workbook is required")
	}
	return store.ListConnections(db, workbook)
}

// Doctor runs the catalog checks.
func Doctor(db *sql.DB) ([]store.Diagnostic, error) {
	return store.RunDiagnostics(db)
}
