// Package metrics provides the Prometheus collectors of the annotation service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Item outcomes recorded by the dispatcher.
const (
	OutcomeDone      = "done"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"

	// OutcomeWriteFailed counts items whose result could not be stored. They
	// stay processing until stuck-item recovery picks them up.
	OutcomeWriteFailed = "write_failed"
)

// DispatchMetrics contains the metrics of the analysis dispatcher. A nil
// *DispatchMetrics is valid and records nothing.
type DispatchMetrics struct {
	InFlight         prometheus.Gauge
	Dispatched       prometheus.Counter
	Outcomes         *prometheus.CounterVec
	GateWait         prometheus.Histogram
	AnalysisDuration prometheus.Histogram
}

// NewDispatchMetrics creates the dispatcher metrics and registers them on
// registry.
func NewDispatchMetrics(registry prometheus.Registerer) (*DispatchMetrics, error) {
	m := &DispatchMetrics{
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "annotator_analysis_in_flight",
			Help: "Number of analysis calls currently holding a gate permit.",
		}),
		Dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "annotator_items_dispatched_total",
			Help: "Total number of items accepted by the dispatcher.",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "annotator_item_outcomes_total",
			Help: "Total number of dispatched items by final outcome.",
		}, []string{"outcome"}),
		GateWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotator_gate_wait_seconds",
			Help:    "Time items spent waiting for a gate permit.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "annotator_analysis_duration_seconds",
			Help:    "Duration of audio fetch plus analysis call.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register dispatch metrics: %w", err)
	}
	return m, nil
}

// ItemDispatched counts an accepted item.
func (m *DispatchMetrics) ItemDispatched() {
	if m == nil {
		return
	}
	m.Dispatched.Inc()
}

// CallStarted marks a permit as taken after waiting waitSeconds for it.
func (m *DispatchMetrics) CallStarted(waitSeconds float64) {
	if m == nil {
		return
	}
	m.GateWait.Observe(waitSeconds)
	m.InFlight.Inc()
}

// CallFinished releases the in-flight slot and records the outcome.
func (m *DispatchMetrics) CallFinished(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Outcomes.WithLabelValues(outcome).Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// Describe implements prometheus.Collector.
func (m *DispatchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.InFlight.Describe(ch)
	m.Dispatched.Describe(ch)
	m.Outcomes.Describe(ch)
	m.GateWait.Describe(ch)
	m.AnalysisDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *DispatchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.InFlight.Collect(ch)
	m.Dispatched.Collect(ch)
	m.Outcomes.Collect(ch)
	m.GateWait.Collect(ch)
	m.AnalysisDuration.Collect(ch)
}
