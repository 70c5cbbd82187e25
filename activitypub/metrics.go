package activitypub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks federation traffic. A nil *Metrics records nothing.
type Metrics struct {
	Deliveries      *prometheus.CounterVec
	DeliveryLatency prometheus.Histogram
	InboxActivities *prometheus.CounterVec
	SignatureChecks *prometheus.CounterVec
	Resolutions     *prometheus.CounterVec
	RetryQueued     prometheus.Counter
}

// NewMetrics creates and registers the federation metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	return &Metrics{
		Deliveries: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "quill_deliveries_total",
			Help: "Outbound activity deliveries by result",
		}, []string{"result"}),
		DeliveryLatency: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "quill_delivery_duration_seconds",
			Help:    "Time spent delivering one activity to one inbox",
			Buckets: prometheus.DefBuckets,
		}),
		InboxActivities: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "quill_inbox_activities_total",
			Help: "Inbound activities by type and result",
		}, []string{"type", "result"}),
		SignatureChecks: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "quill_signature_checks_total",
			Help: "HTTP signature checks by validity",
		}, []string{"validity"}),
		Resolutions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "quill_resolutions_total",
			Help: "Remote object resolutions by source",
		}, []string{"source"}),
		RetryQueued: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "quill_delivery_retries_queued_total",
			Help: "Failed deliveries handed to the retry queue",
		}),
	}
}

func (m *Metrics) delivery(result string, seconds float64) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result).Inc()
	m.DeliveryLatency.Observe(seconds)
}

func (m *Metrics) inbox(kind Kind, result string) {
	if m == nil {
		return
	}
	m.InboxActivities.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) signature(v SignatureValidity) {
	if m == nil {
		return
	}
	m.SignatureChecks.WithLabelValues(v.String()).Inc()
}

func (m *Metrics) resolution(source string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(source).Inc()
}

func (m *Metrics) retryQueued() {
	if m == nil {
		return
	}
	m.RetryQueued.Inc()
}
