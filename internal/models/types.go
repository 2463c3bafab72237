package models

import "time"

// ResourceHandle identifies one resource instance inside a provider's current
// enumeration. Name is stable but not guaranteed unique. Position is 1-based
// and only valid until the next deletion against the same provider.
type ResourceHandle struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// ItemOutcome is the per-resource result of a scan or delete.
type ItemOutcome string

// Item outcome constants.
const (
	OutcomeRemoved      ItemOutcome = "removed"
	OutcomeNotFound     ItemOutcome = "not_found"
	OutcomeDeleteFailed ItemOutcome = "delete_failed"
	OutcomeUnreadable   ItemOutcome = "unreadable"
)

// ItemResult records what happened to one planned or scanned resource.
type ItemResult struct {
	Position    int         `json:"position"`
	PlannedName string      `json:"planned_name,omitempty"`
	CurrentName string      `json:"current_name,omitempty"`
	Outcome     ItemOutcome `json:"outcome"`
	Error       string      `json:"error,omitempty"`
}

// DeletionPlan is the read-only selection produced by a full scan.
// Entries keep the positions they held at scan time.
type DeletionPlan struct {
	Entries      []ResourceHandle `json:"entries"`
	Unreadable   []ItemResult     `json:"unreadable,omitempty"`
	ScannedCount int              `json:"scanned_count"`
}

// Len returns the number of resources selected for removal.
func (p DeletionPlan) Len() int {
	return len(p.Entries)
}

// Report summarizes an apply pass.
type Report struct {
	Removed       int          `json:"removed"`
	Failed        int          `json:"failed"`
	NotFound      int          `json:"not_found"`
	Unreadable    int          `json:"unreadable"`
	FinalCount    int          `json:"final_count"`
	ProviderEmpty bool         `json:"provider_empty,omitempty"`
	Items         []ItemResult `json:"items,omitempty"`
}

// SessionState is the lifecycle state of one retry session.
type SessionState string

// Session state constants.
const (
	SessionIdle      SessionState = "idle"
	SessionScheduled SessionState = "scheduled"
	SessionRunning   SessionState = "running"
	SessionSucceeded SessionState = "succeeded"
	SessionFailed    SessionState = "failed"
	SessionExhausted SessionState = "exhausted"
	SessionCancelled SessionState = "cancelled"
)

// IsTerminal returns true once the session can no longer change state.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionSucceeded, SessionExhausted, SessionCancelled:
		return true
	default:
		return false
	}
}

// Connection is one named data connection registered against a workbook.
type Connection struct {
	ID              int64      `json:"id"`
	Workbook        string     `json:"workbook"`
	Name            string     `json:"name"`
	Source          string     `json:"source,omitempty"`
	RefreshFailures int        `json:"refresh_failures"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Event is one diagnostics record persisted for the current run.
type Event struct {
	ID        int64          `json:"id"`
	RunID     string         `json:"run_id"`
	Level     string         `json:"level"`
	Step      string         `json:"step"`
	Message   string         `json:"message"`
	Extra     map[string]any `json:"extra,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
