package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dotcommander/refresher/internal/app"
	"github.com/dotcommander/refresher/internal/cleanup"
	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/refresh"
	"github.com/dotcommander/refresher/internal/retry"
	"github.com/dotcommander/refresher/internal/scheduler"
)

// RefreshOptions configures one refresh run.
type RefreshOptions struct {
	Workbook string
	// Connections limits the run to these names. Empty means every
	// connection in the workbook.
	Connections []string
	// Cleanup, when set, removes matching connections before refreshing.
	Cleanup cleanup.Predicate
	// Retry builds a fresh policy per session; backoff state is per session.
	Retry  app.RetrySettings
	Runner *refresh.Runner
	// Clock defaults to the wall clock.
	Clock    scheduler.Clock
	Logger   *slog.Logger
	Recorder diag.Recorder
}

// SessionOutcome is the terminal result of one connection's retry session.
type SessionOutcome struct {
	Key        string              `json:"key"`
	Connection string              `json:"connection"`
	SessionID  string              `json:"session_id,omitempty"`
	State      models.SessionState `json:"state"`
	Attempts   int                 `json:"attempts"`
	ElapsedMS  int64               `json:"elapsed_ms"`
	Error      string              `json:"error,omitempty"`
	ErrorCode  string              `json:"error_code,omitempty"`
}

// RefreshResult is the outcome of a refresh run.
type RefreshResult struct {
	RunID     string             `json:"run_id"`
	Workbook  string             `json:"workbook"`
	Cleanup   *models.Report     `json:"cleanup,omitempty"`
	Sessions  []SessionOutcome   `json:"sessions"`
	Succeeded int                `json:"succeeded"`
	Exhausted int                `json:"exhausted"`
	Cancelled int                `json:"cancelled"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// PolicyFromSettings maps effective settings onto a retry policy.
func PolicyFromSettings(s app.RetrySettings) retry.Policy {
	if s.Strategy == app.StrategyExponential {
		return retry.ExponentialPolicy(s.MaxAttempts, s.Backoff, s.BackoffMax)
	}
	return retry.ConstantPolicy(s.MaxAttempts, s.Backoff)
}

// Refresh optionally cleans up the workbook, then refreshes each connection
// in its own retry session. Every attempt and completion callback runs on
// one dispatch loop driven by the calling goroutine; Refresh returns once
// every session is terminal. Cancelling ctx cancels the sessions still open.
func Refresh(ctx context.Context, db *sql.DB, opts RefreshOptions) (*RefreshResult, error) {
	if opts.Workbook == "" {
		return nil, errors.New("workbook is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = scheduler.RealClock{}
	}

	r, err := startRun(db, logger, opts.Recorder, "refresh")
	if err != nil {
		return nil, err
	}
	res := &RefreshResult{RunID: r.id, Workbook: opts.Workbook, Sessions: []SessionOutcome{}}

	if opts.Cleanup != nil {
		report, err := Cleanup(db, opts.Workbook, opts.Cleanup, r.rec, r.metrics)
		if err != nil {
			r.finish(map[string]any{"workbook": opts.Workbook, "error": err.Error()})
			return nil, fmt.Errorf("pre-refresh cleanup: %w", err)
		}
		res.Cleanup = &report
	}

	names, err := refreshTargets(db, opts)
	if err != nil {
		r.finish(map[string]any{"workbook": opts.Workbook, "error": err.Error()})
		return nil, err
	}

	loop := scheduler.New(clock, scheduler.WithLogger(logger))
	coord := retry.NewCoordinator(loop, r.rec, retry.WithMetrics(r.metrics), retry.WithContext(ctx))

	type started struct {
		name    string
		session *retry.Session
	}
	var sessions []started
	for _, name := range names {
		key := refresh.Key(opts.Workbook, name)
		op := refresh.Operation(db, opts.Runner, opts.Workbook, name,
			refresh.WithRecorder(r.rec),
			refresh.WithNow(loop.Now),
		)
		s, err := coord.Start(key, op, PolicyFromSettings(opts.Retry))
		if err != nil {
			res.Sessions = append(res.Sessions, SessionOutcome{
				Key: key, Connection: name, State: models.SessionExhausted,
				Error: err.Error(), ErrorCode: errorCode(err),
			})
			continue
		}
		sessions = append(sessions, started{name: name, session: s})
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(sessions)))
	if len(sessions) == 0 {
		loop.Close()
	}
	for _, st := range sessions {
		st.session.OnComplete(func(retry.Result) {
			if remaining.Add(-1) == 0 {
				loop.Close()
			}
		})
	}

	runErr := loop.Run(ctx)
	if runErr != nil {
		for _, st := range sessions {
			st.session.Cancel()
		}
		loop.Close()
		loop.Drain()
	}

	for _, st := range sessions {
		out := outcomeOf(st.name, st.session.Result())
		res.Sessions = append(res.Sessions, out)
	}
	for _, out := range res.Sessions {
		switch out.State {
		case models.SessionSucceeded:
			res.Succeeded++
		case models.SessionCancelled:
			res.Cancelled++
		default:
			res.Exhausted++
		}
	}

	res.Metrics = r.finish(map[string]any{
		"workbook":  opts.Workbook,
		"succeeded": res.Succeeded,
		"exhausted": res.Exhausted,
		"cancelled": res.Cancelled,
	})
	if runErr != nil {
		return res, fmt.Errorf("refresh interrupted: %w", runErr)
	}
	return res, nil
}

// refreshTargets returns the unique connection names to refresh, in order.
func refreshTargets(db *sql.DB, opts RefreshOptions) ([]string, error) {
	candidates := opts.Connections
	if len(candidates) == 0 {
		conns, err := ConnList(db, opts.Workbook)
		if err != nil {
			return nil, err
		}
		for _, c := range conns {
			candidates = append(candidates, c.Name)
		}
	}

	seen := make(map[string]bool, len(candidates))
	var names []string
	for _, name := range candidates {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names, nil
}

func outcomeOf(name string, res retry.Result) SessionOutcome {
	out := SessionOutcome{
		Key:        res.Key,
		Connection: name,
		SessionID:  res.SessionID,
		State:      res.State,
		Attempts:   res.Attempts,
		ElapsedMS:  res.Elapsed.Milliseconds(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		out.ErrorCode = errorCode(res.Err)
	}
	return out
}

func errorCode(err error) string {
	var re models.RecoverableError
	if errors.As(err, &re) {
		return re.ErrorCode()
	}
	return ""
}
