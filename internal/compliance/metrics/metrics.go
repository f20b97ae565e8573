// Package metrics provides observability for the compliance module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the compliance validation instruments. All methods are
// nil-receiver safe so tests can run services without metrics wired.
type Metrics struct {
	// Validation outcomes by role and result
	ValidationOutcome *prometheus.CounterVec

	// Violations by category
	ViolationCategory *prometheus.CounterVec

	// Full validation latency including cache and ledger round trips
	ValidateLatency prometheus.Histogram
}

// New creates a Metrics instance with all compliance metrics registered.
func New() *Metrics {
	return &Metrics{
		ValidationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaintrace_validations_total",
			Help: "Total validation attempts by role and result",
		}, []string{"role", "result"}), // result: "approved", "rejected"

		ViolationCategory: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaintrace_violations_total",
			Help: "Total violations by category",
		}, []string{"category"}),

		ValidateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chaintrace_validate_duration_seconds",
			Help:    "Duration of full action validation including audit submission",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementOutcome records one validation outcome.
func (m *Metrics) IncrementOutcome(role, result string) {
	if m != nil {
		m.ValidationOutcome.WithLabelValues(role, result).Inc()
	}
}

// IncrementViolation records one violation by category.
func (m *Metrics) IncrementViolation(category string) {
	if m != nil {
		m.ViolationCategory.WithLabelValues(category).Inc()
	}
}

// ObserveValidateLatency records the total validation duration.
func (m *Metrics) ObserveValidateLatency(d time.Duration) {
	if m != nil {
		m.ValidateLatency.Observe(d.Seconds())
	}
}
