// Package metrics holds the Prometheus collectors for the client connection
// and the server. Every method is safe on a nil receiver, so instrumented code
// does not need to check whether metrics were configured.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wsrpc"

// Request outcomes.
const (
	OutcomeResult    = "result"
	OutcomeRemote    = "remote_error"
	OutcomeCancelled = "cancelled"
	OutcomeSendError = "send_error"
	OutcomeTimeout   = "timeout"
)

// Metrics are the client-side collectors.
type Metrics struct {
	Pending              prometheus.Gauge
	Requests             *prometheus.CounterVec   // outcome
	Notifications        prometheus.Counter
	DroppedNotifications prometheus.Counter
	ControlFrames        *prometheus.CounterVec   // frame type
	CallDuration         *prometheus.HistogramVec // method, outcome
}

// New creates the client collectors and registers them on reg.
// A nil reg skips registration (useful in tests).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "pending_requests",
			Help:      "Requests waiting for a reply.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Completed requests by outcome.",
		}, []string{"outcome"}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "notifications_total",
			Help:      "Notifications handed to the consumer queue.",
		}),
		DroppedNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the consumer queue was full.",
		}),
		ControlFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "control_frames_total",
			Help:      "Non-text frames received, by type.",
		}, []string{"type"}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "call_duration_seconds",
			Help:      "Call latency as seen by the caller.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Pending,
			m.Requests,
			m.Notifications,
			m.DroppedNotifications,
			m.ControlFrames,
			m.CallDuration,
		)
	}
	return m
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}

func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification() {
	if m == nil {
		return
	}
	m.Notifications.Inc()
}

func (m *Metrics) DroppedNotification() {
	if m == nil {
		return
	}
	m.DroppedNotifications.Inc()
}

func (m *Metrics) ControlFrame(frameType string) {
	if m == nil {
		return
	}
	m.ControlFrames.WithLabelValues(frameType).Inc()
}

func (m *Metrics) ObserveCall(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallDuration.WithLabelValues(method, outcome).Observe(d.Seconds())
}

// ServerMetrics are the server-side collectors.
type ServerMetrics struct {
	Connections prometheus.Gauge
	Handled     *prometheus.CounterVec // method, code
	Published   prometheus.Counter
}

// NewServer creates the server collectors and registers them on reg.
func NewServer(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		Handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Handled requests by method and error code (0 = success).",
		}, []string{"method", "code"}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "published_total",
			Help:      "Notifications written to peers.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Connections, m.Handled, m.Published)
	}
	return m
}

func (m *ServerMetrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *ServerMetrics) ConnClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *ServerMetrics) Handle(method, code string) {
	if m == nil {
		return
	}
	m.Handled.WithLabelValues(method, code).Inc()
}

func (m *ServerMetrics) Publish(n int) {
	if m == nil {
		return
	}
	m.Published.Add(float64(n))
}
