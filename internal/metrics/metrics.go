package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Evaluations counts completed evaluations by decision
	Evaluations *prometheus.CounterVec
	// EvaluationFailures counts evaluations that returned an error, by reason
	EvaluationFailures *prometheus.CounterVec
	// AnchorFailures counts anchoring attempts replaced by the sentinel token
	AnchorFailures *prometheus.CounterVec

	EvaluationDuration prometheus.Histogram
	AnchorDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scip_evaluations_total",
				Help: "Total number of recorded evaluations by decision",
			},
			[]string{"decision"},
		),
		EvaluationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scip_evaluation_failures_total",
				Help: "Total number of failed evaluations by reason",
			},
			[]string{"reason"},
		),
		AnchorFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scip_anchor_failures_total",
				Help: "Total number of anchoring failures by kind",
			},
			[]string{"kind"},
		),
		EvaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scip_evaluation_duration_seconds",
				Help:    "Time spent evaluating a submission end to end",
				Buckets: prometheus.DefBuckets,
			},
		),
		AnchorDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scip_anchor_duration_seconds",
				Help:    "Time spent anchoring a fingerprint, including retries",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.Evaluations, m.EvaluationFailures, m.AnchorFailures, m.EvaluationDuration, m.AnchorDuration)
	return m
}

func (m *Metrics) ObserveEvaluation(decision string, d time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(decision).Inc()
	m.EvaluationDuration.Observe(d.Seconds())
}

func (m *Metrics) EvaluationFailed(reason string) {
	if m == nil {
		return
	}
	m.EvaluationFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveAnchor(d time.Duration) {
	if m == nil {
		return
	}
	m.AnchorDuration.Observe(d.Seconds())
}

func (m *Metrics) AnchorFailed(kind string) {
	if m == nil {
		return
	}
	m.AnchorFailures.WithLabelValues(kind).Inc()
}
