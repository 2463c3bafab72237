// Package cleanup removes a subset of resources from a live, 1-based,
// index-addressed collection without index-shift corruption.
//
// Removal is split into two phases that never interleave: PlanDeletions scans
// the provider read-only and records scan-time positions; ApplyDeletions
// deletes those positions from highest to lowest, so every position still to
// be used stays valid after each delete.
package cleanup

import (
	"github.com/dotcommander/refresher/internal/diag"
	"github.com/dotcommander/refresher/internal/metrics"
	"github.com/dotcommander/refresher/internal/models"
)

// ResourceProvider exposes an ordered, 1-indexed collection of named resources.
// Deleting position k shifts every position greater than k down by one.
// Positions are only valid against the enumeration in effect when obtained.
type ResourceProvider interface {
	Count() (int, error)
	At(position int) (models.ResourceHandle, error)
	Delete(position int) error
}

// Predicate selects resources for removal. It is application policy.
type Predicate func(models.ResourceHandle) bool

type options struct {
	recorder diag.Recorder
	metrics  *metrics.Metrics
}

// Option configures a plan or apply pass.
type Option func(*options)

// WithRecorder sends per-item diagnostics to r.
func WithRecorder(r diag.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithMetrics counts deletion outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	o := options{recorder: diag.Nop}
	for _, opt := range opts {
		opt(&o)
	}
	o.recorder = diag.Safe(o.recorder)
	return o
}
