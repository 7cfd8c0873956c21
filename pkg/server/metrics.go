package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus instruments for the server. Each server gets
// its own registry so multiple instances (tests) don't collide.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter
	messagesReceived     *prometheus.CounterVec
	messagesSent         *prometheus.CounterVec
	messagesPushed       prometheus.Counter
	pushFanout           prometheus.Histogram
	authFailures         prometheus.Counter
}

// NewMetrics creates and registers all server metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "retro_active_sessions",
			Help: "Number of currently connected sessions",
		}),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "retro_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		sessionsDisconnected: factory.NewCounter(prometheus.CounterOpts{
			Name: "retro_sessions_disconnected_total",
			Help: "Total number of sessions disconnected",
		}),
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retro_messages_received_total",
			Help: "Total number of protocol frames received, by type",
		}, []string{"type"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "retro_messages_sent_total",
			Help: "Total number of protocol frames sent, by type",
		}, []string{"type"}),
		messagesPushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "retro_messages_pushed_total",
			Help: "Total number of NEW_MESSAGE pushes delivered",
		}),
		pushFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "retro_push_fanout_recipients",
			Help:    "Number of online recipients per message push",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "retro_auth_failures_total",
			Help: "Total number of failed registration or login attempts",
		}),
	}
}

// Handler returns an HTTP handler serving this registry's metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

func (m *Metrics) RecordMessageReceived(msgType string) {
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordMessageSent(msgType string) {
	m.messagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordMessagePushed(recipients int) {
	m.messagesPushed.Inc()
	m.pushFanout.Observe(float64(recipients))
}

func (m *Metrics) RecordAuthFailure() {
	m.authFailures.Inc()
}
