package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.Observe("refund_executed", OutboxOutcomePublished)
	m.Observe("refund_executed", OutboxOutcomePublished)
	m.Observe("", OutboxOutcomeRetry)

	published := series(t, reg, "kolo_outbox_publish_total")
	require.Contains(t, published, "refund_executed/published")
	require.Contains(t, published, "unknown/retry")
	assert.Equal(t, float64(2), published["refund_executed/published"].GetCounter().GetValue())
	assert.Equal(t, float64(1), published["unknown/retry"].GetCounter().GetValue())

	var nilMetrics *OutboxMetrics
	nilMetrics.Observe("x", OutboxOutcomeRetry)
}
