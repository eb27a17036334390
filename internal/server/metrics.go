package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	clients       prometheus.Gauge
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	droppedEvents prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtcsession",
			Subsystem: "server",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Websocket requests by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rtcsession",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Websocket request handling time by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtcsession",
			Subsystem: "server",
			Name:      "dropped_events_total",
			Help:      "Events dropped because a client send buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.clients, m.requests, m.duration, m.droppedEvents)
	}
	return m
}

func (m *metrics) observe(method string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = toRPCError(err).Code
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}
