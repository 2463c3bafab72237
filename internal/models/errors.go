package models

import (
	"errors"
	"fmt"
	"strconv"
)

// RecoverableError is implemented by enriched errors that carry structured
// context and remediation hints. Both the core packages and the output package
// use this interface to avoid an import cycle.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// Sentinels matched by the structured errors below via errors.Is.
var (
	ErrResourceUnreadable = errors.New("resource unreadable")
	ErrDeleteFailed       = errors.New("delete failed")
	ErrScheduleRejected   = errors.New("schedule rejected")
	ErrOperationFailed    = errors.New("operation failed")
	ErrRetryExhausted     = errors.New("retry exhausted")
	ErrDuplicateSession   = errors.New("duplicate session rejected")

	// ErrPositionOutOfRange is returned by providers when a position does not
	// address a resource in the current enumeration.
	ErrPositionOutOfRange = errors.New("position out of range")

	// ErrSessionCancelled is the terminal error of a cancelled session.
	ErrSessionCancelled = errors.New("session cancelled")
)

// ResourceUnreadableError is a per-item scan failure. Never fatal to a plan.
type ResourceUnreadableError struct {
	Position int
	Err      error
}

func (e *ResourceUnreadableError) Error() string {
	return fmt.Sprintf("resource at position %d unreadable: %v", e.Position, e.Err)
}
func (e *ResourceUnreadableError) Unwrap() error     { return e.Err }
func (e *ResourceUnreadableError) ErrorCode() string { return "RESOURCE_UNREADABLE" }
func (e *ResourceUnreadableError) Context() map[string]string {
	return map[string]string{"position": strconv.Itoa(e.Position)}
}
func (e *ResourceUnreadableError) SuggestedAction() string {
	return "re-run cleanup; the resource may have been removed by another process"
}
func (e *ResourceUnreadableError) Is(target error) bool { return target == ErrResourceUnreadable }

// DeleteFailedError is a per-item apply failure. Reported, never fatal.
type DeleteFailedError struct {
	Position int
	Name     string
	Err      error
}

func (e *DeleteFailedError) Error() string {
	return fmt.Sprintf("delete %q at position %d failed: %v", e.Name, e.Position, e.Err)
}
func (e *DeleteFailedError) Unwrap() error     { return e.Err }
func (e *DeleteFailedError) ErrorCode() string { return "DELETE_FAILED" }
func (e *DeleteFailedError) Context() map[string]string {
	return map[string]string{
		"position": strconv.Itoa(e.Position),
		"name":     e.Name,
	}
}
func (e *DeleteFailedError) SuggestedAction() string {
	return "inspect the connection and re-run cleanup"
}
func (e *DeleteFailedError) Is(target error) bool { return target == ErrDeleteFailed }

// ScheduleRejectedError means the host refused a deferred task.
// Fatal to the session that asked for it.
type ScheduleRejectedError struct {
	Reason string
}

func (e *ScheduleRejectedError) Error() string {
	return "schedule rejected: " + e.Reason
}
func (e *ScheduleRejectedError) ErrorCode() string { return "SCHEDULE_REJECTED" }
func (e *ScheduleRejectedError) Context() map[string]string {
	return map[string]string{"reason": e.Reason}
}
func (e *ScheduleRejectedError) SuggestedAction() string {
	return "start a new run; the dispatch loop has shut down"
}
func (e *ScheduleRejectedError) Is(target error) bool { return target == ErrScheduleRejected }

// OperationFailedError wraps the error an attempt reported.
type OperationFailedError struct {
	Key     string
	Attempt int
	Err     error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s: attempt %d failed: %v", e.Key, e.Attempt, e.Err)
}
func (e *OperationFailedError) Unwrap() error     { return e.Err }
func (e *OperationFailedError) ErrorCode() string { return "OPERATION_FAILED" }
func (e *OperationFailedError) Context() map[string]string {
	return map[string]string{
		"key":     e.Key,
		"attempt": strconv.Itoa(e.Attempt),
	}
}
func (e *OperationFailedError) SuggestedAction() string {
	return "check the events for this run"
}
func (e *OperationFailedError) Is(target error) bool { return target == ErrOperationFailed }

// RetryExhaustedError is the terminal error of an exhausted session.
// Cause is the last recorded error.
type RetryExhaustedError struct {
	Key      string
	Attempts int
	Cause    error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempt(s): %v", e.Key, e.Attempts, e.Cause)
}
func (e *RetryExhaustedError) Unwrap() error     { return e.Cause }
func (e *RetryExhaustedError) ErrorCode() string { return "RETRY_EXHAUSTED" }
func (e *RetryExhaustedError) Context() map[string]string {
	return map[string]string{
		"key":      e.Key,
		"attempts": strconv.Itoa(e.Attempts),
	}
}
func (e *RetryExhaustedError) SuggestedAction() string {
	return "refresher events list to see each attempt, then retry with --max-attempts"
}
func (e *RetryExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// DuplicateSessionError is returned when a key already has an active session.
type DuplicateSessionError struct {
	Key       string
	SessionID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("a retry session for %q is already active", e.Key)
}
func (e *DuplicateSessionError) ErrorCode() string { return "DUPLICATE_SESSION" }
func (e *DuplicateSessionError) Context() map[string]string {
	return map[string]string{
		"key":        e.Key,
		"session_id": e.SessionID,
	}
}
func (e *DuplicateSessionError) SuggestedAction() string {
	return "wait for the active session to finish or cancel it"
}
func (e *DuplicateSessionError) Is(target error) bool { return target == ErrDuplicateSession }
