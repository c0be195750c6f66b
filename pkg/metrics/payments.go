package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts payment workflow outcomes.
type PaymentMetrics struct {
	linksCreated *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	reminders    *prometheus.CounterVec
	refunds      prometheus.Counter
}

// NewPaymentMetrics registers payment counters on reg. A nil registerer yields
// a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	linksCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "links_created_total",
		Help:      "Gateway payment links and checkout sessions created.",
	}, []string{"kind"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "settlement_events_total",
		Help:      "Settlement events consumed, by kind and outcome.",
	}, []string{"kind", "outcome"})
	reminders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "reminders_sent_total",
		Help:      "Payment reminder emails sent.",
	}, []string{"type"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "refunds_requested_total",
		Help:      "Refunds requested from the gateway.",
	})
	reg.MustRegister(linksCreated, settlements, reminders, refunds)
	return &PaymentMetrics{
		linksCreated: linksCreated,
		settlements:  settlements,
		reminders:    reminders,
		refunds:      refunds,
	}
}

func (p *PaymentMetrics) IncLinkCreated(kind string) {
	if p == nil || p.linksCreated == nil {
		return
	}
	p.linksCreated.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (p *PaymentMetrics) IncSettlement(kind, outcome string) {
	if p == nil || p.settlements == nil {
		return
	}
	p.settlements.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) IncReminderSent(reminderType string) {
	if p == nil || p.reminders == nil {
		return
	}
	p.reminders.WithLabelValues(normalizeLabel(reminderType)).Inc()
}

func (p *PaymentMetrics) IncRefundRequested() {
	if p == nil || p.refunds == nil {
		return
	}
	p.refunds.Inc()
}
