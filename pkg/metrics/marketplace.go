package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the marketplace collectors.
const (
	OutcomeApplied  = "applied"
	OutcomeReplay   = "replay"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// OrderTransitionMetrics counts order status writes by edge and outcome.
type OrderTransitionMetrics struct {
	transitions *prometheus.CounterVec
}

// NewOrderTransitionMetrics registers the order transition counter.
func NewOrderTransitionMetrics(reg prometheus.Registerer) *OrderTransitionMetrics {
	if reg == nil {
		return &OrderTransitionMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by source status, target status and outcome.",
	}, []string{"from", "to", "outcome"})
	reg.MustRegister(transitions)
	return &OrderTransitionMetrics{transitions: transitions}
}

// Observe records one transition attempt.
func (m *OrderTransitionMetrics) Observe(from, to, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(outcome)).Inc()
}

// PaymentCallbackMetrics tracks provider callbacks and provider round-trip latency.
type PaymentCallbackMetrics struct {
	callbacks *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewPaymentCallbackMetrics registers the payment callback collectors.
func NewPaymentCallbackMetrics(reg prometheus.Registerer) *PaymentCallbackMetrics {
	if reg == nil {
		return &PaymentCallbackMetrics{}
	}
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_callbacks_total",
		Help:      "Payment provider callbacks by phase and outcome.",
	}, []string{"phase", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "payment_provider_request_seconds",
		Help:      "Latency of outbound payment provider calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"provider", "phase"})
	reg.MustRegister(callbacks, latency)
	return &PaymentCallbackMetrics{callbacks: callbacks, latency: latency}
}

// IncCallback counts a callback outcome for the approve or complete phase.
func (m *PaymentCallbackMetrics) IncCallback(phase, outcome string) {
	if m == nil || m.callbacks == nil {
		return
	}
	m.callbacks.WithLabelValues(normalizeLabel(phase), normalizeLabel(outcome)).Inc()
}

// ObserveProvider records how long the provider took to answer.
func (m *PaymentCallbackMetrics) ObserveProvider(provider, phase string, duration time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.WithLabelValues(normalizeLabel(provider), normalizeLabel(phase)).Observe(duration.Seconds())
}

// Outbox relay outcomes.
const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxParked    = "parked"
)

// OutboxMetrics counts relay outcomes per event type.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox rows handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

func (m *OutboxMetrics) Inc(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
