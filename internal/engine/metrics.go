package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the engine's recompute behavior. A nil *Metrics is
// valid and records nothing, which keeps tests quiet.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RecomputePasses prometheus.Counter
	FormulaEvals    prometheus.Counter
	ChangesetSize   prometheus.Histogram
	EvalErrors      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Name:      "requests_total",
			Help:      "Client requests processed, by operation.",
		}, []string{"op"}),
		RecomputePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Name:      "recompute_passes_total",
			Help:      "Query groups that triggered a recompute pass.",
		}),
		FormulaEvals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Name:      "formula_evaluations_total",
			Help:      "Individual formula evaluations across all passes.",
		}),
		ChangesetSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hearth",
			Name:      "changeset_size",
			Help:      "Paths touched per committed query group.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		EvalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Name:      "formula_errors_total",
			Help:      "Evaluations that produced the error sentinel.",
		}),
	}
	reg.MustRegister(m.RequestsTotal, m.RecomputePasses, m.FormulaEvals, m.ChangesetSize, m.EvalErrors)
	return m
}

func (m *Metrics) countRequest(op string) {
	if m != nil {
		m.RequestsTotal.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) countPass() {
	if m != nil {
		m.RecomputePasses.Inc()
	}
}

func (m *Metrics) countEval(isErr bool) {
	if m == nil {
		return
	}
	m.FormulaEvals.Inc()
	if isErr {
		m.EvalErrors.Inc()
	}
}

func (m *Metrics) observeChangeset(n int) {
	if m != nil {
		m.ChangesetSize.Observe(float64(n))
	}
}
