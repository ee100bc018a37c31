package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records counters for return transitions and pickup bookings.
type EngineMetrics struct {
	transitions    *prometheus.CounterVec
	bookings       *prometheus.CounterVec
	partnerLatency *prometheus.HistogramVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "return_transitions_total",
		Help: "Return status transitions by target status and outcome.",
	}, []string{"to", "outcome"})
	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pickup_bookings_total",
		Help: "Pickup booking attempts by partner and outcome.",
	}, []string{"partner", "outcome"})
	partnerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shipping_partner_request_seconds",
		Help:    "Latency of shipping partner HTTP calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"partner", "operation"})
	reg.MustRegister(transitions, bookings, partnerLatency)
	return &EngineMetrics{
		transitions:    transitions,
		bookings:       bookings,
		partnerLatency: partnerLatency,
	}
}

// IncTransition counts one transition attempt outcome.
func (m *EngineMetrics) IncTransition(to, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to), normalizeLabel(outcome)).Inc()
}

// IncBooking counts one booking attempt outcome.
func (m *EngineMetrics) IncBooking(partner, outcome string) {
	if m == nil || m.bookings == nil {
		return
	}
	m.bookings.WithLabelValues(normalizeLabel(partner), normalizeLabel(outcome)).Inc()
}

// ObservePartnerLatency records the duration of one partner call.
func (m *EngineMetrics) ObservePartnerLatency(partner, operation string, duration time.Duration) {
	if m == nil || m.partnerLatency == nil {
		return
	}
	m.partnerLatency.WithLabelValues(normalizeLabel(partner), normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
