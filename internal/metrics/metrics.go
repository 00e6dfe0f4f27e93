// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rapidride"

// Metrics groups the service's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	transitions       *prometheus.CounterVec
	relayConns        prometheus.Gauge
	relayPublished    *prometheus.CounterVec
	relayDropped      prometheus.Counter
	scheduledReleased prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ride_transitions_total",
			Help:      "Ride lifecycle transitions by name and result.",
		}, []string{"transition", "result"}),
		relayConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_connections",
			Help:      "Authenticated relay connections.",
		}),
		relayPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_published_total",
			Help:      "Events published to ride rooms by event name.",
		}, []string{"event"}),
		relayDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_deliveries_dropped_total",
			Help:      "Deliveries skipped because the connection buffer was full.",
		}),
		scheduledReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_rides_released_total",
			Help:      "Scheduled rides moved to searching.",
		}),
	}
	reg.MustRegister(m.transitions, m.relayConns, m.relayPublished, m.relayDropped, m.scheduledReleased)
	return m
}

// Transition counts a lifecycle transition attempt.
func (m *Metrics) Transition(name, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name, result).Inc()
}

// RelayConnected adjusts the live connection gauge.
func (m *Metrics) RelayConnected(delta int) {
	if m == nil {
		return
	}
	m.relayConns.Add(float64(delta))
}

// EventPublished counts an event published to a room.
func (m *Metrics) EventPublished(event string) {
	if m == nil {
		return
	}
	m.relayPublished.WithLabelValues(event).Inc()
}

// DeliveryDropped counts a skipped delivery.
func (m *Metrics) DeliveryDropped() {
	if m == nil {
		return
	}
	m.relayDropped.Inc()
}

// ScheduledReleased counts released scheduled rides.
func (m *Metrics) ScheduledReleased(n int) {
	if m == nil {
		return
	}
	m.scheduledReleased.Add(float64(n))
}
