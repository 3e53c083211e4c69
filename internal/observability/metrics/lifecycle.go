package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

// LifecycleMetrics counts engine and anchoring outcomes. It satisfies
// ports.LifecycleObserver.
type LifecycleMetrics struct {
	submitted      *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	issued         *prometheus.CounterVec
	anchorTotal    *prometheus.CounterVec
	anchorDuration prometheus.Histogram
}

func NewLifecycleMetrics(reg prometheus.Registerer, service string) *LifecycleMetrics {
	constLabels := prometheus.Labels{"service": service}
	m := &LifecycleMetrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "lifecycle",
			Name:        "requests_submitted_total",
			Help:        "Requests submitted by document type.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "lifecycle",
			Name:        "transitions_total",
			Help:        "Attempted status transitions by edge and result.",
			ConstLabels: constLabels,
		}, []string{"from", "to", "result"}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "lifecycle",
			Name:        "documents_issued_total",
			Help:        "Documents issued by type and source.",
			ConstLabels: constLabels,
		}, []string{"type", "source"}),
		anchorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "ledger",
			Name:        "anchor_total",
			Help:        "Ledger anchoring attempts by status.",
			ConstLabels: constLabels,
		}, []string{"status"}),
		anchorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "ledger",
			Name:        "anchor_duration_seconds",
			Help:        "Ledger anchoring duration in seconds.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(m.submitted, m.transitions, m.issued, m.anchorTotal, m.anchorDuration)
	return m
}

func (m *LifecycleMetrics) RequestSubmitted(documentType string) {
	m.submitted.WithLabelValues(documentType).Inc()
}

func (m *LifecycleMetrics) Transitioned(from, to domain.RequestStatus, err error) {
	m.transitions.WithLabelValues(string(from), string(to), resultLabel(err)).Inc()
}

func (m *LifecycleMetrics) DocumentIssued(documentType, source string) {
	m.issued.WithLabelValues(documentType, source).Inc()
}

func (m *LifecycleMetrics) AnchorFinished(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.anchorTotal.WithLabelValues(status).Inc()
	m.anchorDuration.Observe(duration.Seconds())
}

// resultLabel is "ok" or the error kind, e.g. "forbidden".
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.KindName(err)
}
