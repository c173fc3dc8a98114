package cascade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	// operations counts executor calls.
	// Labels: op (soft_delete, soft_delete_many, restore, hard_delete, purge), status (success, error)
	operations *prometheus.CounterVec

	// documents counts documents whose deletion state changed.
	// Labels: op
	documents *prometheus.CounterVec

	// removed counts owned entities physically removed.
	removed prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grove",
			Subsystem: "cascade",
			Name:      "operations_total",
			Help:      "Cascade executor calls by operation and outcome",
		}, []string{"op", "status"}),
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grove",
			Subsystem: "cascade",
			Name:      "documents_total",
			Help:      "Documents deleted, restored or removed",
		}, []string{"op"}),
		removed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "grove",
			Subsystem: "cascade",
			Name:      "owned_entities_removed_total",
			Help:      "Pages, page contents and writing blocks physically removed",
		}),
	}
}

func (m *metrics) observe(op string, documents int, err error) {
	if err != nil {
		m.operations.WithLabelValues(op, "error").Inc()
		return
	}
	m.operations.WithLabelValues(op, "success").Inc()
	m.documents.WithLabelValues(op).Add(float64(documents))
}
