// Package retry drives bounded, detached retries of a fallible operation.
//
// Every attempt runs as a deferred task on a dispatch loop, never on the stack
// of the code that asked for it. Between attempts the coordinator records
// what happened, waits out the backoff, and schedules the next attempt only
// after the previous outcome is fully recorded.
//
// State machine:
//
//	Idle -> Scheduled -> Running -> Succeeded
//	                       |
//	                       +-> Failed -> Scheduled   (attempt < max)
//	                                  -> Exhausted   (attempt == max)
//	any non-terminal -> Cancelled
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/metrics"
	"github.com/dotcommander/refresher/internal/models"
	"github.com/dotcommander/refresher/internal/scheduler"
)

// Scheduler is the deferred-execution surface the coordinator needs.
// *scheduler.Loop implements it.
type Scheduler interface {
	Now() time.Time
	ScheduleAt(at time.Time, op func()) (*scheduler.Task, error)
	Cancel(t *scheduler.Task) bool
	Deliver(fn func())
}

// Coordinator owns every active retry session. At most one session per key
// is active at a time.
type Coordinator struct {
	sched   Scheduler
	rec     diag.Recorder
	metrics *metrics.Metrics
	baseCtx context.Context

	mu     sync.Mutex
	active map[string]*Session
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics counts attempts and terminal sessions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithContext sets the parent of every session context.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// NewCoordinator returns a coordinator scheduling on sched and reporting to rec.
func NewCoordinator(sched Scheduler, rec diag.Recorder, opts ...Option) *Coordinator {
	c := &Coordinator{
		sched:   sched,
		rec:     diag.Safe(rec),
		baseCtx: context.Background(),
		active:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunWithRetry starts a session for key with maxAttempts and backoff.
func (c *Coordinator) RunWithRetry(key string, op Operation, maxAttempts int, b backoff.BackOff) (*Session, error) {
	return c.Start(key, op, Policy{MaxAttempts: maxAttempts, Backoff: b})
}

// Start creates a session for key and schedules its first attempt for now.
// It fails fast with a DuplicateSessionError while another session for key is
// active. Errors after that point, including a rejected schedule, end the
// session and are reported through the returned handle.
func (c *Coordinator) Start(key string, op Operation, p Policy) (*Session, error) {
	if op == nil {
		return nil, errors.New("retry: nil operation")
	}

	c.mu.Lock()
	if existing, ok := c.active[key]; ok {
		c.mu.Unlock()
		return nil, &models.DuplicateSessionError{Key: key, SessionID: existing.id}
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	s := &Session{
		id:      uuid.NewString(),
		key:     key,
		op:      op,
		coord:   c,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		policy:  p.normalized(),
		state:   models.SessionIdle,
		started: c.sched.Now(),
	}
	c.active[key] = s
	c.mu.Unlock()

	s.mu.Lock()
	snap := s.snapshotLocked()
	s.attempt = 1
	s.mu.Unlock()
	c.rec.Record(diag.LevelInfo, models.StepSessionState, "session created", snap)

	c.schedule(s, c.sched.Now())
	return s, nil
}

// Active returns the active session for key, if any.
func (c *Coordinator) Active(key string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.active[key]
	return s, ok
}

// ActiveCount returns the number of non-terminal sessions.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// schedule asks the scheduler to run the session's current attempt at at.
// The session lock is held across ScheduleAt, which never runs the task
// synchronously, so the task cannot observe a half-updated session.
func (c *Coordinator) schedule(s *Session, at time.Time) {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return
	}
	task, err := c.sched.ScheduleAt(at, func() { c.runAttempt(s) })
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		c.finish(s, models.SessionExhausted, err)
		return
	}
	prev := s.state
	s.task = task
	s.state = models.SessionScheduled
	snap := s.snapshotLocked()
	s.mu.Unlock()

	snap["from"] = string(prev)
	snap["run_at"] = at.Format(time.RFC3339Nano)
	c.rec.Record(diag.LevelDetail, models.StepAttemptSchedule, fmt.Sprintf("attempt %d scheduled", snap["attempt"]), snap)
}

// runAttempt executes on the dispatch loop. Session state is re-checked first
// because arbitrary host work may have run since scheduling.
func (c *Coordinator) runAttempt(s *Session) {
	s.mu.Lock()
	if s.state != models.SessionScheduled {
		s.mu.Unlock()
		return
	}
	s.state = models.SessionRunning
	s.task = nil
	s.runs++
	a := Attempt{SessionID: s.id, Key: s.key, Number: s.attempt, Max: s.policy.MaxAttempts}
	ctx := s.ctx
	snap := s.snapshotLocked()
	s.mu.Unlock()

	c.rec.Record(diag.LevelDetail, models.StepAttemptStart, fmt.Sprintf("attempt %d of %d starting", a.Number, a.Max), snap)

	err := invoke(ctx, s.op, a)

	s.mu.Lock()
	cancelled := s.state != models.SessionRunning
	snap = s.snapshotLocked()
	s.mu.Unlock()
	if cancelled {
		// The session ended while the attempt was in flight; its outcome is moot.
		c.metrics.ObserveAttempt("cancelled")
		c.rec.Record(diag.LevelInfo, models.StepAttemptFinish, fmt.Sprintf("attempt %d finished after cancel", a.Number), snap)
		return
	}
	if err == nil {
		c.metrics.ObserveAttempt("success")
		c.rec.Record(diag.LevelInfo, models.StepAttemptFinish, fmt.Sprintf("attempt %d succeeded", a.Number), snap)
		c.finish(s, models.SessionSucceeded, nil)
		return
	}

	c.metrics.ObserveAttempt("failure")
	opErr := &models.OperationFailedError{Key: s.key, Attempt: a.Number, Err: err}
	snap["error"] = err.Error()
	c.rec.Record(diag.LevelWarn, models.StepAttemptFinish, fmt.Sprintf("attempt %d failed", a.Number), snap)

	s.mu.Lock()
	if s.state != models.SessionRunning {
		s.mu.Unlock()
		return
	}
	s.lastErr = opErr
	s.state = models.SessionFailed

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) || s.attempt >= s.policy.MaxAttempts {
		s.mu.Unlock()
		c.finish(s, models.SessionExhausted, opErr)
		return
	}
	delay := s.policy.Backoff.NextBackOff()
	if delay == backoff.Stop {
		s.mu.Unlock()
		c.finish(s, models.SessionExhausted, opErr)
		return
	}
	s.attempt++
	s.mu.Unlock()

	c.schedule(s, c.sched.Now().Add(delay))
}

// finish moves s to a terminal state exactly once and reports whether this
// call did it.
func (c *Coordinator) finish(s *Session, state models.SessionState, cause error) bool {
	s.mu.Lock()
	if s.state.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	prev := s.state
	s.state = state
	s.finished = c.sched.Now()
	switch state {
	case models.SessionExhausted:
		s.finalErr = &models.RetryExhaustedError{Key: s.key, Attempts: s.runs, Cause: cause}
	case models.SessionCancelled:
		s.finalErr = models.ErrSessionCancelled
	default:
		s.finalErr = nil
	}
	task := s.task
	s.task = nil
	callbacks := s.callbacks
	s.callbacks = nil
	res := s.resultLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.cancel()
	if task != nil {
		c.sched.Cancel(task)
	}

	c.mu.Lock()
	if c.active[s.key] == s {
		delete(c.active, s.key)
	}
	c.mu.Unlock()
	close(s.done)

	c.metrics.ObserveSession(string(state))
	level := diag.LevelInfo
	if state == models.SessionExhausted {
		level = diag.LevelError
	}
	snap["from"] = string(prev)
	snap["attempts"] = res.Attempts
	if res.Err != nil {
		snap["error"] = res.Err.Error()
	}
	c.rec.Record(level, models.StepSessionComplete, "session "+string(state), snap)

	for _, cb := range callbacks {
		c.deliver(cb, res)
	}
	return true
}

// deliver queues a completion callback on the dispatch loop. A closed loop
// still takes it, so the callback never runs beside other loop work.
func (c *Coordinator) deliver(cb func(Result), res Result) {
	c.sched.Deliver(func() { cb(res) })
}

func invoke(ctx context.Context, op Operation, a Attempt) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx, a)
}
