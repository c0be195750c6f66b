package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPaymentMetricsCounters(t *testing.T) {
	m := NewPaymentMetrics(prometheus.NewRegistry())

	m.IncLinkCreated("second")
	m.IncLinkCreated("second")
	m.IncSettlement("PaymentSucceeded", "applied")
	m.IncReminderSent("OVERDUE")
	m.IncRefundRequested()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.linksCreated.WithLabelValues("second")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("PaymentSucceeded", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reminders.WithLabelValues("OVERDUE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refunds))
}

func TestPaymentMetricsNilSafe(t *testing.T) {
	var m *PaymentMetrics
	m.IncLinkCreated("primary")
	m.IncSettlement("a", "b")
	m.IncReminderSent("UPCOMING")
	m.IncRefundRequested()
	NewPaymentMetrics(nil).IncRefundRequested()
}
