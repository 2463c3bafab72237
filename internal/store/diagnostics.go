package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Diagnostic represents a single catalog check finding.
type Diagnostic struct {
	Level           string `json:"level"` // "warning" or "error"
	Code            string `json:"code"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// failingThreshold is the failure streak at which a connection is reported.
const failingThreshold = 3

// RunDiagnostics performs catalog checks and returns findings.
func RunDiagnostics(db *sql.DB) ([]Diagnostic, error) {
	var diags []Diagnostic

	dupes, err := findDuplicateNames(db)
	if err != nil {
		return nil, fmt.Errorf("duplicate name check: %w", err)
	}
	diags = append(diags, dupes...)

	failing, err := findFailingConnections(db)
	if err != nil {
		return nil, fmt.Errorf("failing connection check: %w", err)
	}
	diags = append(diags, failing...)

	return diags, nil
}

// findDuplicateNames finds names registered more than once in a workbook.
func findDuplicateNames(db *sql.DB) ([]Diagnostic, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT workbook, name, COUNT(*) AS n
		FROM connections
		GROUP BY workbook, name
		HAVING COUNT(*) > 1
		ORDER BY workbook, name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var diags []Diagnostic
	for rows.Next() {
		var workbook, name string
		var n int
		if err := rows.Scan(&workbook, &name, &n); err != nil {
			return nil, err
		}
		diags = append(diags, Diagnostic{
			Level:           "warning",
			Code:            "DUPLICATE_CONNECTION",
			Message:         fmt.Sprintf("workbook %s has %d connections named %q", workbook, n, name),
			SuggestedAction: fmt.Sprintf("refresher cleanup --workbook %s --duplicates", workbook),
		})
	}
	return diags, rows.Err()
}

// findFailingConnections finds connections whose recent refreshes keep failing.
func findFailingConnections(db *sql.DB) ([]Diagnostic, error) {
	rows, err := db.QueryContext(context.Background(), `
		SELECT workbook, name, refresh_failures, COALESCE(last_error, '')
		FROM connections
		WHERE refresh_failures >= ?
		ORDER BY workbook, id
	`, failingThreshold)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var diags []Diagnostic
	for rows.Next() {
		var workbook, name, lastErr string
		var failures int
		if err := rows.Scan(&workbook, &name, &failures, &lastErr); err != nil {
			return nil, err
		}
		diags = append(diags, Diagnostic{
			Level:           "warning",
			Code:            "FAILING_CONNECTION",
			Message:         fmt.Sprintf("connection %s/%s failed %d refreshes in a row: %s", workbook, name, failures, lastErr),
			SuggestedAction: "check the connection source and refresh_command, then run refresher refresh again",
		})
	}
	return diags, rows.Err()
}
