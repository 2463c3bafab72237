package store

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrConnectionNotFound is the sentinel matched by ConnectionNotFoundError.
var ErrConnectionNotFound = errors.New("connection not found")

// ConnectionNotFoundError reports a lookup of a connection that is not in the catalog.
type ConnectionNotFoundError struct {
	Workbook string
	Name     string
	ID       int64
}

func (e *ConnectionNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("connection %q not found in workbook %q", e.Name, e.Workbook)
	}
	return fmt.Sprintf("connection %d not found", e.ID)
}
func (e *ConnectionNotFoundError) ErrorCode() string { return "CONNECTION_NOT_FOUND" }
func (e *ConnectionNotFoundError) Context() map[string]string {
	ctx := map[string]string{"workbook": e.Workbook, "name": e.Name}
	if e.ID != 0 {
		ctx["id"] = strconv.FormatInt(e.ID, 10)
	}
	return ctx
}
func (e *ConnectionNotFoundError) SuggestedAction() string {
	return fmt.Sprintf("refresher conn list --workbook %s", e.Workbook)
}
func (e *ConnectionNotFoundError) Is(target error) bool { return target == ErrConnectionNotFound }
