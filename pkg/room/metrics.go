package room

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the relay's Prometheus metrics. A nil *Metrics is valid
// and records nothing, so tests can run without a registry.
type Metrics struct {
	roomsActive       prometheus.Gauge
	connectionsActive prometheus.Gauge
	messagesReceived  *prometheus.CounterVec
	broadcastsSent    prometheus.Counter
	broadcastDropped  prometheus.Counter
	decodeErrors      prometheus.Counter
	authFailures      prometheus.Counter
}

// MetricsConfig configures metric registration.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "codesync").
	Namespace string

	// Registry is the Prometheus registerer to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// NewMetrics registers and returns the relay metrics.
func NewMetrics(config MetricsConfig) *Metrics {
	if config.Namespace == "" {
		config.Namespace = "codesync"
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "rooms_active",
			Help:      "Number of rooms currently held by the registry",
		}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "connections_active",
			Help:      "Number of live member connections across all rooms",
		}),
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages by kind",
		}, []string{"kind"}),
		broadcastsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "broadcasts_sent_total",
			Help:      "Messages delivered to room peers",
		}),
		broadcastDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "broadcasts_dropped_total",
			Help:      "Deliveries skipped because a peer queue was closed or full",
		}),
		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "decode_errors_total",
			Help:      "Malformed frames dropped at the connection boundary",
		}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "auth_failures_total",
			Help:      "Upgrade requests rejected for missing or invalid credentials",
		}),
	}
}

// RoomCreated records a new room in the registry.
func (m *Metrics) RoomCreated() {
	if m != nil {
		m.roomsActive.Inc()
	}
}

// ConnJoined records a connection joining a room.
func (m *Metrics) ConnJoined() {
	if m != nil {
		m.connectionsActive.Inc()
	}
}

// ConnLeft records a connection leaving a room.
func (m *Metrics) ConnLeft() {
	if m != nil {
		m.connectionsActive.Dec()
	}
}

// MessageReceived records an inbound message of the given kind.
func (m *Metrics) MessageReceived(kind string) {
	if m != nil {
		m.messagesReceived.WithLabelValues(kind).Inc()
	}
}

// BroadcastSent records one successful peer delivery.
func (m *Metrics) BroadcastSent() {
	if m != nil {
		m.broadcastsSent.Inc()
	}
}

// BroadcastDropped records one skipped peer delivery.
func (m *Metrics) BroadcastDropped() {
	if m != nil {
		m.broadcastDropped.Inc()
	}
}

// DecodeError records a malformed frame.
func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

// AuthFailure records a rejected upgrade.
func (m *Metrics) AuthFailure() {
	if m != nil {
		m.authFailures.Inc()
	}
}
