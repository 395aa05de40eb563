// ABOUTME: Prometheus collectors for room fan-out, transcript persistence and sessions
// ABOUTME: Satisfies the hub and conversation recorder interfaces and serves /metrics

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hercules"

// Metrics holds the gateway's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Fan-out
	BroadcastsTotal *prometheus.CounterVec
	DeliveriesTotal *prometheus.CounterVec
	LiveRooms       prometheus.Gauge
	LiveConnections prometheus.Gauge

	// Persistence
	PersistTotal *prometheus.CounterVec

	// Sessions
	SessionsTotal   *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	SessionsActive  prometheus.Gauge
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BroadcastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcasts_total",
				Help:      "Room broadcasts by payload kind.",
			},
			[]string{"kind"},
		),
		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Per-connection send attempts by result.",
			},
			[]string{"result"},
		),
		LiveRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_rooms",
			Help:      "Rooms with at least one live connection.",
		}),
		LiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Live WebSocket connections across all rooms.",
		}),
		PersistTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcript_writes_total",
				Help:      "Transcript message writes by result.",
			},
			[]string{"result"},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Finished agent sessions by terminal state.",
			},
			[]string{"state"},
		),
		SessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Wall time of agent sessions.",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"state"},
		),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Agent sessions currently running.",
		}),
	}
}

// ObserveBroadcast records one broadcast and the outcome of each send.
func (m *Metrics) ObserveBroadcast(kind string, delivered, failed int) {
	m.BroadcastsTotal.WithLabelValues(kind).Inc()
	m.DeliveriesTotal.WithLabelValues("ok").Add(float64(delivered))
	m.DeliveriesTotal.WithLabelValues("failed").Add(float64(failed))
}

// ObserveLiveConnections sets the registry size gauges.
func (m *Metrics) ObserveLiveConnections(rooms, conns int) {
	m.LiveRooms.Set(float64(rooms))
	m.LiveConnections.Set(float64(conns))
}

// ObservePersist records a transcript write.
func (m *Metrics) ObservePersist(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.PersistTotal.WithLabelValues(result).Inc()
}

// ObserveSession records a finished session.
func (m *Metrics) ObserveSession(state string, d time.Duration) {
	m.SessionsTotal.WithLabelValues(state).Inc()
	m.SessionDuration.WithLabelValues(state).Observe(d.Seconds())
}

// SessionStarted and SessionEnded bracket a running session.
func (m *Metrics) SessionStarted() { m.SessionsActive.Inc() }

func (m *Metrics) SessionEnded() { m.SessionsActive.Dec() }

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
