// ABOUTME: Prometheus instruments for the coordination core.
// ABOUTME: Counts message exchanges, capacity signals, rollovers, and autosaves.

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used by the core. A nil
// *Metrics is valid and records nothing, so library consumers can opt out.
type Metrics struct {
	MessagesSent    prometheus.Counter
	MessagesFailed  prometheus.Counter
	CapacitySignals prometheus.Counter
	Rollovers       prometheus.Counter
	Autosaves       *prometheus.CounterVec
	Coalesced       prometheus.Counter
}

// NewMetrics registers the core's instruments on the given registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "User turns successfully exchanged with the inference gateway.",
		}),
		MessagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_failed_total",
			Help:      "Message exchanges that surfaced a transcript error entry.",
		}),
		CapacitySignals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_signals_total",
			Help:      "Capacity-reached signals received from the inference gateway.",
		}),
		Rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_rollovers_total",
			Help:      "Successful session rollovers.",
		}),
		Autosaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaves_total",
			Help:      "Draft autosave executions by outcome.",
		}, []string{"outcome"}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaves_coalesced_total",
			Help:      "Draft edits coalesced away before their write executed.",
		}),
	}
	reg.MustRegister(m.MessagesSent, m.MessagesFailed, m.CapacitySignals, m.Rollovers, m.Autosaves, m.Coalesced)
	return m
}

// IncSent records a successful exchange.
func (m *Metrics) IncSent() {
	if m != nil {
		m.MessagesSent.Inc()
	}
}

// IncFailed records a failed exchange.
func (m *Metrics) IncFailed() {
	if m != nil {
		m.MessagesFailed.Inc()
	}
}

// IncCapacity records a capacity signal.
func (m *Metrics) IncCapacity() {
	if m != nil {
		m.CapacitySignals.Inc()
	}
}

// IncRollover records a successful session rollover.
func (m *Metrics) IncRollover() {
	if m != nil {
		m.Rollovers.Inc()
	}
}

// IncAutosave records an executed autosave by outcome ("saved"/"error").
func (m *Metrics) IncAutosave(outcome string) {
	if m != nil {
		m.Autosaves.WithLabelValues(outcome).Inc()
	}
}

// IncCoalesced records an edit whose write was superseded before running.
func (m *Metrics) IncCoalesced() {
	if m != nil {
		m.Coalesced.Inc()
	}
}
