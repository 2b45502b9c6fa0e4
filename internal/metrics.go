package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the relay's operational counters on its own registry so
// tests can create servers without colliding on the global one.
type Metrics struct {
	registry      *prometheus.Registry
	activeConns   prometheus.Gauge
	joinsTotal    prometheus.Counter
	relayedTotal  prometheus.Counter
	droppedTotal  prometheus.Counter
	rejectedTotal prometheus.Counter
	signupsTotal  prometheus.Counter
	loginsTotal   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.activeConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_active_connections",
		Help: "Number of live websocket sessions.",
	})
	m.joinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_room_joins_total",
		Help: "Total join_room operations accepted.",
	})
	m.relayedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_messages_relayed_total",
		Help: "Total envelopes rebroadcast to a room.",
	})
	m.droppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_messages_dropped_total",
		Help: "Envelopes skipped for individual sessions with full send buffers.",
	})
	m.rejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_envelopes_rejected_total",
		Help: "Envelopes rejected by validation before rebroadcast.",
	})
	m.signupsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_signups_total",
		Help: "Total successful account signups.",
	})
	m.loginsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_logins_total",
		Help: "Total successful logins.",
	})
	m.registry.MustRegister(
		m.activeConns,
		m.joinsTotal,
		m.relayedTotal,
		m.droppedTotal,
		m.rejectedTotal,
		m.signupsTotal,
		m.loginsTotal,
	)
	return m
}

func (m *Metrics) IncConn()     { m.activeConns.Inc() }
func (m *Metrics) DecConn()     { m.activeConns.Dec() }
func (m *Metrics) IncJoin()     { m.joinsTotal.Inc() }
func (m *Metrics) IncRelayed()  { m.relayedTotal.Inc() }
func (m *Metrics) IncDropped()  { m.droppedTotal.Inc() }
func (m *Metrics) IncRejected() { m.rejectedTotal.Inc() }
func (m *Metrics) IncSignup()   { m.signupsTotal.Inc() }
func (m *Metrics) IncLogin()    { m.loginsTotal.Inc() }

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
