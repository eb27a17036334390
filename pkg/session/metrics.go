package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "rtcsession"

type metrics struct {
	peers          prometheus.Gauge
	tracks         *prometheus.GaugeVec
	sources        *prometheus.GaugeVec
	bridgeWait     *prometheus.HistogramVec
	bridgeTimeouts *prometheus.CounterVec
	lateCompletion *prometheus.CounterVec
	nativeFailures *prometheus.CounterVec
	droppedEvents  *prometheus.CounterVec
	bufferedICE    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "peer_connections",
			Help:      "Live peer connections.",
		}),
		tracks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tracks",
			Help:      "Registered tracks by kind and origin.",
		}, []string{"kind", "origin"}),
		sources: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sources",
			Help:      "Shared capture sources by kind.",
		}, []string{"kind"}),
		bridgeWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "bridge_wait_seconds",
			Help:      "Time spent waiting for asynchronous engine operations.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"request"}),
		bridgeTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bridge_timeouts_total",
			Help:      "Engine operations that exceeded the bridge timeout.",
		}, []string{"request"}),
		lateCompletion: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bridge_late_completions_total",
			Help:      "Engine completions delivered after the caller timed out.",
		}, []string{"request"}),
		nativeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "native_failures_total",
			Help:      "Engine operations that reported an error.",
		}, []string{"request"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_events_total",
			Help:      "Engine events dropped without reaching a sink.",
		}, []string{"event"}),
		bufferedICE: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "buffered_ice_candidates_total",
			Help:      "ICE candidates buffered until a remote description was applied.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.peers, m.tracks, m.sources, m.bridgeWait, m.bridgeTimeouts,
			m.lateCompletion, m.nativeFailures, m.droppedEvents, m.bufferedICE,
		)
	}
	return m
}

func (m *metrics) trackAdded(kind MediaKind, origin TrackOrigin) {
	m.tracks.WithLabelValues(kind.String(), originLabel(origin)).Inc()
}

func (m *metrics) trackRemoved(kind MediaKind, origin TrackOrigin) {
	m.tracks.WithLabelValues(kind.String(), originLabel(origin)).Dec()
}

func originLabel(o TrackOrigin) string {
	if o.IsLocal() {
		return "local"
	}
	return "remote"
}
