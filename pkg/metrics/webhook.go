package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook outcomes.
const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeFailed    = "failed"
	WebhookOutcomeRejected  = "rejected"
)

// WebhookMetrics counts payment notifications by provider and outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counter on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "webhook_events_total",
		Help:      "Payment webhook deliveries by provider and outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Observe increments the counter for one delivery.
func (m *WebhookMetrics) Observe(provider, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
