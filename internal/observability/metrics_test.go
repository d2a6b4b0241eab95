// ABOUTME: Tests for the core's Prometheus instruments.
// ABOUTME: Verifies registration, counting, and nil-receiver safety.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counting(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("solace", reg)

	m.IncSent()
	m.IncSent()
	m.IncFailed()
	m.IncCapacity()
	m.IncRollover()
	m.IncAutosave("saved")
	m.IncAutosave("error")
	m.IncCoalesced()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesFailed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CapacitySignals))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Rollovers))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Autosaves.WithLabelValues("saved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Autosaves.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Coalesced))
}

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	// Must not panic
	m.IncSent()
	m.IncFailed()
	m.IncCapacity()
	m.IncRollover()
	m.IncAutosave("saved")
	m.IncCoalesced()
}
