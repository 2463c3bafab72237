// Package metrics holds the prometheus counters for one refresher process.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the counters exported by the core.
type Metrics struct {
	registry  *prometheus.Registry
	attempts  *prometheus.CounterVec
	sessions  *prometheus.CounterVec
	deletions *prometheus.CounterVec
}

// New registers the counters on a fresh private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refresher_attempts_total",
			Help: "Operation attempts run by the retry coordinator, by outcome.",
		}, []string{"outcome"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refresher_sessions_total",
			Help: "Retry sessions that reached a terminal state, by state.",
		}, []string{"state"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refresher_deletions_total",
			Help: "Planned resource deletions, by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(m.attempts, m.sessions, m.deletions)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAttempt counts one finished attempt ("success", "failure", or
// "cancelled" when its session ended while it ran).
func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// ObserveSession counts one session reaching a terminal state.
func (m *Metrics) ObserveSession(state string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(state).Inc()
}

// ObserveDeletion counts one planned deletion by item outcome.
func (m *Metrics) ObserveDeletion(outcome string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(outcome).Inc()
}

// Summary flattens every gathered counter into "name{label=value}" keys,
// suitable for JSON output.
func (m *Metrics) Summary() (map[string]float64, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			pairs := make([]string, 0, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				pairs = append(pairs, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(pairs)

			key := mf.GetName()
			if len(pairs) > 0 {
				key += "{" + strings.Join(pairs, ",") + "}"
			}
			out[key] = metric.GetCounter().GetValue()
		}
	}
	return out, nil
}
