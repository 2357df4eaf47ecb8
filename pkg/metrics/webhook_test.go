package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookMetricsCountsByProviderAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.Observe("flutterwave", WebhookOutcomeProcessed)
	m.Observe("flutterwave", WebhookOutcomeProcessed)
	m.Observe("monnify", WebhookOutcomeDuplicate)

	events := series(t, reg, "kolo_webhook_events_total")
	require.Contains(t, events, "processed/flutterwave")
	require.Contains(t, events, "duplicate/monnify")
	assert.Equal(t, float64(2), events["processed/flutterwave"].GetCounter().GetValue())
	assert.Equal(t, float64(1), events["duplicate/monnify"].GetCounter().GetValue())
}

func TestWebhookMetricsNilSafe(t *testing.T) {
	var m *WebhookMetrics
	m.Observe("flutterwave", WebhookOutcomeFailed)
	NewWebhookMetrics(nil).Observe("", "")
}
