// Package diag records structured diagnostics events. Recorders are
// fire-and-forget: Record never returns an error and never panics out.
package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Level is the severity of a diagnostics record.
type Level string

// Level constants. Detail is finer than Info and maps to slog debug.
const (
	LevelInfo   Level = "info"
	LevelDetail Level = "detail"
	LevelWarn   Level = "warn"
	LevelError  Level = "error"
)

// SlogLevel maps a diagnostics level onto log/slog.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelDetail:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Recorder consumes structured events.
type Recorder interface {
	Record(level Level, step, message string, extra map[string]any)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(level Level, step, message string, extra map[string]any)

// Record calls f.
func (f RecorderFunc) Record(level Level, step, message string, extra map[string]any) {
	f(level, step, message, extra)
}

// Nop discards everything.
var Nop Recorder = RecorderFunc(func(Level, string, string, map[string]any) {})

// SlogRecorder writes records through a slog.Logger.
type SlogRecorder struct {
	logger *slog.Logger
}

// NewSlogRecorder returns a recorder over logger, or slog.Default() when nil.
func NewSlogRecorder(logger *slog.Logger) *SlogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *SlogRecorder) Record(level Level, step, message string, extra map[string]any) {
	attrs := make([]any, 0, 2+2*len(extra))
	attrs = append(attrs, "step", step)
	for k, v := range extra {
		attrs = append(attrs, k, v)
	}
	r.logger.Log(context.Background(), level.SlogLevel(), message, attrs...)
}

// Entry is one record captured by MemoryRecorder.
type Entry struct {
	Level   Level          `json:"level"`
	Step    string         `json:"step"`
	Message string         `json:"message"`
	Extra   map[string]any `json:"extra,omitempty"`
	At      time.Time      `json:"at"`
}

// MemoryRecorder keeps records in memory, bounded by maxEntries (0 = unbounded).
type MemoryRecorder struct {
	mu         sync.Mutex
	maxEntries int
	entries    []Entry
}

// NewMemoryRecorder returns an empty in-memory recorder.
func NewMemoryRecorder(maxEntries int) *MemoryRecorder {
	return &MemoryRecorder{maxEntries: maxEntries}
}

// Record implements Recorder.
func (r *MemoryRecorder) Record(level Level, step, message string, extra map[string]any) {
	e := Entry{Level: level, Step: step, Message: message, Extra: copyExtra(extra), At: time.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if r.maxEntries > 0 && len(r.entries) > r.maxEntries {
		r.entries = r.entries[len(r.entries)-r.maxEntries:]
	}
}

// Entries returns a copy of the captured records, oldest first.
func (r *MemoryRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Steps returns the step of every captured record, oldest first.
func (r *MemoryRecorder) Steps() []string {
	entries := r.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Step
	}
	return out
}

// Multi fans a record out to every recorder in order.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(level Level, step, message string, extra map[string]any) {
	for _, r := range m {
		if r != nil {
			Safe(r).Record(level, step, message, extra)
		}
	}
}

type safeRecorder struct {
	inner Recorder
}

// Safe wraps r so a panicking sink cannot escape into the caller.
// A nil recorder becomes Nop.
func Safe(r Recorder) Recorder {
	switch r := r.(type) {
	case nil:
		return Nop
	case safeRecorder:
		return r
	default:
		return safeRecorder{inner: r}
	}
}

// Record implements Recorder.
func (s safeRecorder) Record(level Level, step, message string, extra map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			slog.Default().Error("diagnostics recorder panicked", "step", step, "panic", p)
		}
	}()
	s.inner.Record(level, step, message, extra)
}

func copyExtra(extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		out[k] = v
	}
	return out
}
