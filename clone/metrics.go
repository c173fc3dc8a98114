package clone

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	// cloned counts entities written by successful clones.
	// Labels: entity (document, page, page_content, writing_block, assignment, submission)
	cloned *prometheus.CounterVec

	// operations counts DeepClone calls.
	// Labels: mode (new, replace), status (success, error)
	operations *prometheus.CounterVec

	// duration measures DeepClone latency including the commit.
	duration prometheus.Histogram
}

// newMetrics registers the clone metrics on reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		cloned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grove",
			Subsystem: "clone",
			Name:      "entities_total",
			Help:      "Entities written by committed clones",
		}, []string{"entity"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grove",
			Subsystem: "clone",
			Name:      "operations_total",
			Help:      "Deep clone calls by mode and outcome",
		}, []string{"mode", "status"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "grove",
			Subsystem: "clone",
			Name:      "duration_seconds",
			Help:      "Deep clone latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
