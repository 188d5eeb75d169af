package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collector's counters. Per-event failures never stop
// the pipeline, they only show up here.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived prometheus.Counter
	DecodeErrors     prometheus.Counter
	DroppedEvents    prometheus.Counter
	Reconnects       prometheus.Counter
	StoredEvents     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh2graph",
			Subsystem: "listener",
			Name:      "messages_received_total",
			Help:      "Total number of broker payloads received",
		}),

		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh2graph",
			Subsystem: "listener",
			Name:      "decode_errors_total",
			Help:      "Total number of undecodable payloads skipped",
		}),

		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh2graph",
			Subsystem: "listener",
			Name:      "dropped_events_total",
			Help:      "Total number of decoded events lost after store retries were exhausted",
		}),

		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesh2graph",
			Subsystem: "mqtt",
			Name:      "reconnects_total",
			Help:      "Total number of broker reconnect attempts",
		}),

		StoredEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mesh2graph",
			Subsystem: "store",
			Name:      "events_total",
			Help:      "Total number of events written to the store",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.MessagesReceived,
		m.DecodeErrors,
		m.DroppedEvents,
		m.Reconnects,
		m.StoredEvents,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
