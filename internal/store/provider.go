package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dotcommander/refresher/internal/models"
)

// ConnectionProvider exposes one workbook's connections as a 1-based
// positional collection. Position n is the n-th connection by insertion id,
// so deleting a row shifts every later position down by one.
type ConnectionProvider struct {
	db       *sql.DB
	workbook string
}

// NewConnectionProvider binds a provider to workbook.
func NewConnectionProvider(db *sql.DB, workbook string) *ConnectionProvider {
	return &ConnectionProvider{db: db, workbook: workbook}
}

// Workbook returns the bound workbook name.
func (p *ConnectionProvider) Workbook() string { return p.workbook }

// Count returns the current number of connections.
func (p *ConnectionProvider) Count() (int, error) {
	return CountConnections(p.db, p.workbook)
}

// At returns the handle currently at position.
func (p *ConnectionProvider) At(position int) (models.ResourceHandle, error) {
	name, err := p.nameAt(position)
	if err != nil {
		return models.ResourceHandle{}, err
	}
	return models.ResourceHandle{Name: name, Position: position}, nil
}

// Delete removes the connection currently at position.
func (p *ConnectionProvider) Delete(position int) error {
	return Transact(p.db, func(tx *sql.Tx) error {
		var id int64
		if position < 1 {
			return p.outOfRange(position)
		}
		err := tx.QueryRowContext(context.Background(), `
			SELECT id FROM connections WHERE workbook = ? ORDER BY id LIMIT 1 OFFSET ?
		`, p.workbook, position-1).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return p.outOfRange(position)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve position %d: %w", position, err)
		}
		if _, err := tx.ExecContext(context.Background(), `DELETE FROM connections WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete connection %d: %w", id, err)
		}
		return nil
	})
}

func (p *ConnectionProvider) nameAt(position int) (string, error) {
	if position < 1 {
		return "", p.outOfRange(position)
	}
	var name string
	err := RetryWithBackoff(func() error {
		return p.db.QueryRowContext(context.Background(), `
			SELECT name FROM connections WHERE workbook = ? ORDER BY id LIMIT 1 OFFSET ?
		`, p.workbook, position-1).Scan(&name)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", p.outOfRange(position)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read position %d: %w", position, err)
	}
	return name, nil
}

func (p *ConnectionProvider) outOfRange(position int) error {
	return fmt.Errorf("%w: workbook %q position %d", models.ErrPositionOutOfRange, p.workbook, position)
}
