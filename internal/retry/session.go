package retry

import (
	"context"
	"sync"
	"time"

	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/scheduler"
)

// Attempt describes the attempt an operation is being invoked for.
type Attempt struct {
	SessionID string
	Key       string
	Number    int
	Max       int
}

// Operation is one try of the retried work. A nil return is success; any
// error is failure. Wrap an error with backoff.Permanent to stop retrying.
type Operation func(ctx context.Context, a Attempt) error

// Result is the externally visible outcome of a session.
type Result struct {
	SessionID string              `json:"session_id"`
	Key       string              `json:"key"`
	State     models.SessionState `json:"state"`
	Attempts  int                 `json:"attempts"`
	Elapsed   time.Duration       `json:"elapsed"`
	Err       error               `json:"-"`
}

// Session is the handle for one retry cycle. All state is owned by the
// coordinator; callers observe it through the methods below.
type Session struct {
	id    string
	key   string
	op    Operation
	coord *Coordinator

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	policy    Policy
	state     models.SessionState
	attempt   int
	runs      int
	lastErr   error
	finalErr  error
	task      *scheduler.Task
	started   time.Time
	finished  time.Time
	callbacks []func(Result)
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Key returns the operation key the session was started for.
func (s *Session) Key() string { return s.key }

// State returns the current state.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the current attempt number. Start sets it to 1 before
// returning the handle.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// LastError returns the most recent attempt error, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Result returns a snapshot of the session. Err is only set once the
// session is terminal and did not succeed.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked()
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Await blocks until the session is terminal or ctx is done. It is meant for
// callers outside the dispatch loop; code running on the loop must use
// OnComplete instead or it will deadlock the loop.
func (s *Session) Await(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.Result(), nil
	case <-ctx.Done():
		return s.Result(), ctx.Err()
	}
}

// OnComplete registers cb to run on the dispatch loop once the session is
// terminal. Registering on a finished session schedules cb right away.
func (s *Session) OnComplete(cb func(Result)) {
	if cb == nil {
		return
	}
	s.mu.Lock()
	if !s.state.IsTerminal() {
		s.callbacks = append(s.callbacks, cb)
		s.mu.Unlock()
		return
	}
	res := s.resultLocked()
	s.mu.Unlock()
	s.coord.deliver(cb, res)
}

// Cancel moves a non-terminal session to Cancelled and cancels its pending
// task. A running attempt is not interrupted, but its context is cancelled
// and its outcome no longer changes the session. Reports whether this call
// cancelled the session.
func (s *Session) Cancel() bool {
	return s.coord.finish(s, models.SessionCancelled, models.ErrSessionCancelled)
}

func (s *Session) resultLocked() Result {
	end := s.finished
	if end.IsZero() {
		end = s.coord.sched.Now()
	}
	r := Result{
		SessionID: s.id,
		Key:       s.key,
		State:     s.state,
		Attempts:  s.runs,
		Elapsed:   end.Sub(s.started),
	}
	if s.state.IsTerminal() {
		r.Err = s.finalErr
	}
	return r
}

func (s *Session) snapshotLocked() map[string]any {
	return map[string]any{
		"session_id":   s.id,
		"key":          s.key,
		"attempt":      s.attempt,
		"max_attempts": s.policy.MaxAttempts,
		"state":        string(s.state),
		"elapsed_ms":   s.coord.sched.Now().Sub(s.started).Milliseconds(),
	}
}
