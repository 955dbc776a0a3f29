package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records callback traffic from the payment gateway and the
// shipping aggregator. Signature failures get their own counter so a key
// rotation mistake is visible immediately.
type WebhookMetrics struct {
	received          *prometheus.CounterVec
	signatureFailures *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	refundOutcomes    *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_received_total",
		Help: "Webhook callbacks received, by provider and event type.",
	}, []string{"provider", "event_type"})
	signatureFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_signature_failures_total",
		Help: "Webhook callbacks rejected for an invalid signature.",
	}, []string{"provider"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_handle_duration_seconds",
		Help:    "Time spent processing a webhook callback.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	refundOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_outcomes_total",
		Help: "Refund lifecycle outcomes observed via gateway webhooks.",
	}, []string{"outcome"})
	reg.MustRegister(received, signatureFailures, duration, refundOutcomes)
	return &WebhookMetrics{
		received:          received,
		signatureFailures: signatureFailures,
		duration:          duration,
		refundOutcomes:    refundOutcomes,
	}
}

// IncReceived counts one callback for the provider/event pair.
func (m *WebhookMetrics) IncReceived(provider, eventType string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType)).Inc()
}

// IncSignatureFailure counts a callback dropped for a bad signature.
func (m *WebhookMetrics) IncSignatureFailure(provider string) {
	if m == nil || m.signatureFailures == nil {
		return
	}
	m.signatureFailures.WithLabelValues(normalizeLabel(provider)).Inc()
}

// ObserveDuration records how long one callback took to process.
func (m *WebhookMetrics) ObserveDuration(provider string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(provider)).Observe(d.Seconds())
}

// IncRefundOutcome counts a refund settling as processed or failed.
func (m *WebhookMetrics) IncRefundOutcome(outcome string) {
	if m == nil || m.refundOutcomes == nil {
		return
	}
	m.refundOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
