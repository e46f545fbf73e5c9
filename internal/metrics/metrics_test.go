package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewDispatchMetrics(registry)
	require.NoError(t, err)

	m.ItemDispatched()
	m.ItemDispatched()
	m.CallStarted(0.2)
	m.CallStarted(0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InFlight))

	m.CallFinished(OutcomeDone, 3)
	m.CallFinished(OutcomeError, 1)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Dispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues(OutcomeDone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues(OutcomeError)))

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "annotator_analysis_duration_seconds")
	assert.Contains(t, names, "annotator_gate_wait_seconds")
}

func TestDispatchMetricsRegisterTwice(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewDispatchMetrics(registry)
	require.NoError(t, err)

	_, err = NewDispatchMetrics(registry)
	assert.Error(t, err)
}

func TestNilDispatchMetrics(t *testing.T) {
	var m *DispatchMetrics
	assert.NotPanics(t, func() {
		m.ItemDispatched()
		m.CallStarted(1)
		m.CallFinished(OutcomeAbandoned, 1)
	})
}
