// Package metrics defines the Prometheus collectors exported by the sync core.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "chatsync"

// Metrics groups the collectors and the registry they are registered with.
type Metrics struct {
	Registry *prometheus.Registry

	framesReceived    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	reconnectAttempts prometheus.Counter
	openConnections   prometheus.Gauge
	ledgerTransitions *prometheus.CounterVec
	outboundFrames    *prometheus.CounterVec
}

// New creates collectors registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames classified by event kind.",
		}, []string{"kind"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped before dispatch, by reason.",
		}, []string{"reason"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts.",
		}),
		openConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_connections",
			Help:      "Push connections currently open.",
		}),
		ledgerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_transitions_total",
			Help:      "Optimistic entry transitions by resulting status.",
		}, []string{"status"}),
		outboundFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_frames_total",
			Help:      "Outbound send attempts by result.",
		}, []string{"result"}),
	}
	m.Registry.MustRegister(
		m.framesReceived,
		m.framesDropped,
		m.reconnectAttempts,
		m.openConnections,
		m.ledgerTransitions,
		m.outboundFrames,
	)
	return m
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.openConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.openConnections.Dec()
}

func (m *Metrics) LedgerTransition(status string) {
	if m == nil {
		return
	}
	m.ledgerTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) OutboundFrame(result string) {
	if m == nil {
		return
	}
	m.outboundFrames.WithLabelValues(result).Inc()
}
