package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeReady            = "ready"
	OutcomeInsufficientData = "insufficient_data"
)

// ReviewMetrics exposes engine health signals on the Prometheus registry.
type ReviewMetrics struct {
	assignmentsGenerated *prometheus.CounterVec
	submissions          *prometheus.CounterVec
	reportsBuilt         *prometheus.CounterVec
	aiFallbacks          *prometheus.CounterVec
	lockWait             prometheus.Histogram
}

func NewReviewMetrics(reg prometheus.Registerer) (*ReviewMetrics, error) {
	m := &ReviewMetrics{
		assignmentsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus360_assignments_generated_total",
			Help: "Assignments produced by matrix generation, by relationship.",
		}, []string{"relationship"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus360_review_submissions_total",
			Help: "Review submissions, by outcome.",
		}, []string{"outcome"}),
		reportsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus360_reports_built_total",
			Help: "Aggregated reports, by outcome.",
		}, []string{"outcome"}),
		aiFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nexus360_ai_fallbacks_total",
			Help: "AI collaborator calls answered with a fallback, by operation.",
		}, []string{"operation"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nexus360_tenant_lock_wait_seconds",
			Help:    "Time spent waiting for the tenant write lock.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	collectors := []prometheus.Collector{
		m.assignmentsGenerated,
		m.submissions,
		m.reportsBuilt,
		m.aiFallbacks,
		m.lockWait,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *ReviewMetrics) AssignmentsGenerated(relationship string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.assignmentsGenerated.WithLabelValues(relationship).Add(float64(n))
}

func (m *ReviewMetrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *ReviewMetrics) ReportBuilt(outcome string) {
	if m == nil {
		return
	}
	m.reportsBuilt.WithLabelValues(outcome).Inc()
}

func (m *ReviewMetrics) AIFallback(operation string) {
	if m == nil {
		return
	}
	m.aiFallbacks.WithLabelValues(operation).Inc()
}

func (m *ReviewMetrics) ObserveLockWait(seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.Observe(seconds)
}
