// Package scheduler runs deferred work on a single-threaded dispatch loop.
//
// Work handed to ScheduleAt never runs inside the ScheduleAt call. It is
// queued, and only executes after control has returned to the loop, so an
// operation requested from inside a host callback always starts from a clean,
// idle stack.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotcommander/refresher/internal/models"
)

const (
	taskPending int32 = iota
	taskRunning
	taskDone
	taskCancelled
)

// Task is the token for one deferred invocation. Callers only hold it to
// cancel or inspect; the loop owns everything else.
type Task struct {
	id    uint64
	at    time.Time
	op    func()
	state atomic.Int32
	timer Timer // guarded by Loop.mu
}

// ID returns the loop-unique task id.
func (t *Task) ID() uint64 { return t.id }

// At returns the requested run time.
func (t *Task) At() time.Time { return t.at }

// Cancelled reports whether the task was cancelled before it started.
func (t *Task) Cancelled() bool { return t.state.Load() == taskCancelled }

// Finished reports whether the task has run to completion.
func (t *Task) Finished() bool { return t.state.Load() == taskDone }

// Loop is a cooperative dispatch loop. Exactly one goroutine dispatches at a
// time, either inside Run or inside Drain.
type Loop struct {
	clock  Clock
	logger *slog.Logger

	dispatch sync.Mutex

	mu      sync.Mutex
	queue   []func()
	pending map[uint64]*Task
	nextID  uint64
	closed  bool
	wake    chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for recovered task panics.
func WithLogger(l *slog.Logger) Option {
	return func(loop *Loop) {
		if l != nil {
			loop.logger = l
		}
	}
}

// New returns an open loop driven by clock (RealClock when nil).
func New(clock Clock, opts ...Option) *Loop {
	if clock == nil {
		clock = RealClock{}
	}
	l := &Loop{
		clock:   clock,
		logger:  slog.Default(),
		pending: make(map[uint64]*Task),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time { return l.clock.Now() }

// ScheduleAt registers op to run once on the loop at or after at. The call
// never runs op itself, even when at is not in the future.
func (l *Loop) ScheduleAt(at time.Time, op func()) (*Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, &models.ScheduleRejectedError{Reason: "dispatch loop closed"}
	}
	if op == nil {
		return nil, &models.ScheduleRejectedError{Reason: "nil operation"}
	}

	l.nextID++
	t := &Task{id: l.nextID, at: at, op: op}
	l.pending[t.id] = t

	delay := at.Sub(l.clock.Now())
	if delay <= 0 {
		l.pushLocked(func() { l.fire(t) })
		return t, nil
	}
	t.timer = l.clock.AfterFunc(delay, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.pushLocked(func() { l.fire(t) })
	})
	return t, nil
}

// Cancel stops a pending task from firing. It has no effect on a task that
// is running or finished; nil and unknown tasks are ignored. It reports
// whether this call cancelled the task.
func (l *Loop) Cancel(t *Task) bool {
	if t == nil || !t.state.CompareAndSwap(taskPending, taskCancelled) {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(l.pending, t.id)
	l.signalLocked()
	return true
}

// Post queues host work to run on the loop after everything already queued.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return &models.ScheduleRejectedError{Reason: "dispatch loop closed"}
	}
	l.pushLocked(fn)
	return nil
}

// Deliver queues fn to run on the loop after everything already queued,
// even once the loop is closed. It carries outcomes owed for work the loop
// already accepted, such as completion callbacks; Run and Drain dispatch it
// before they return.
func (l *Loop) Deliver(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pushLocked(fn)
}

// Close stops accepting new work. Work already accepted still runs.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.signalLocked()
}

// Pending returns the number of accepted tasks that have not run or been cancelled.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Run dispatches work on the calling goroutine until the loop is closed and
// every accepted task has run, or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.dispatch.Lock()
	defer l.dispatch.Unlock()

	for {
		if fn := l.pop(); fn != nil {
			l.invoke(fn)
			continue
		}

		l.mu.Lock()
		finished := l.closed && len(l.queue) == 0 && len(l.pending) == 0
		l.mu.Unlock()
		if finished {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Drain dispatches queued work on the calling goroutine until the queue is
// empty, including work queued while draining. It returns how many items ran.
func (l *Loop) Drain() int {
	l.dispatch.Lock()
	defer l.dispatch.Unlock()

	n := 0
	for fn := l.pop(); fn != nil; fn = l.pop() {
		l.invoke(fn)
		n++
	}
	return n
}

func (l *Loop) fire(t *Task) {
	if !t.state.CompareAndSwap(taskPending, taskRunning) {
		return
	}
	defer func() {
		t.state.Store(taskDone)
		l.mu.Lock()
		delete(l.pending, t.id)
		l.signalLocked()
		l.mu.Unlock()
	}()
	t.op()
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("dispatched work panicked", "panic", p)
		}
	}()
	fn()
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) pushLocked(fn func()) {
	l.queue = append(l.queue, fn)
	l.signalLocked()
}

func (l *Loop) signalLocked() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
