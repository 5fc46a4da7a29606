package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensorrelay"

// Inbound frame outcomes used as the "outcome" label of FramesReceived.
const (
	OutcomeUpdate    = "update"
	OutcomeHeartbeat = "heartbeat"
	OutcomeMalformed = "malformed"
	OutcomeIgnored   = "ignored"
	OutcomeLimited   = "rate_limited"
)

// Outbound message kinds used as the "kind" label of the send counters.
const (
	KindBroadcast = "broadcast"
	KindReplay    = "replay"
	KindHeartbeat = "heartbeat"
)

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RelayMetrics holds the relay engine's Prometheus series.
type RelayMetrics struct {
	Connections    prometheus.Gauge
	Sensors        prometheus.Gauge
	FramesReceived *prometheus.CounterVec
	MessagesSent   *prometheus.CounterVec
	SendsDropped   *prometheus.CounterVec
	Swept          prometheus.Counter
}

// NewRelayMetrics creates and registers relay metrics on reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Number of connections currently tracked by the registry.",
		}),
		Sensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sensors",
			Help:      "Number of sensor ids held in the last-value cache.",
		}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "frames_received_total",
			Help:      "Inbound frames by outcome.",
		}, []string{"outcome"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_sent_total",
			Help:      "Outbound messages accepted by a connection, by kind.",
		}, []string{"kind"}),
		SendsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sends_dropped_total",
			Help:      "Outbound messages dropped because the connection was closed or its buffer was full, by kind.",
		}, []string{"kind"}),
		Swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections_swept_total",
			Help:      "Connections removed by the liveness sweep.",
		}),
	}

	reg.MustRegister(m.Connections, m.Sensors, m.FramesReceived, m.MessagesSent, m.SendsDropped, m.Swept)
	return m
}

// Sent records the outcome of one send attempt of the given kind.
func (m *RelayMetrics) Sent(kind string, ok bool) {
	if ok {
		m.MessagesSent.WithLabelValues(kind).Inc()
		return
	}
	m.SendsDropped.WithLabelValues(kind).Inc()
}
