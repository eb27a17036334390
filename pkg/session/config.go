package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBridgeTimeout bounds every wait on an asynchronous engine
	// operation.
	DefaultBridgeTimeout = 5 * time.Second

	// DefaultWorkerPoolSize is the number of goroutines handling deferred
	// engine callbacks.
	DefaultWorkerPoolSize = 4
)

type options struct {
	bridgeTimeout time.Duration
	workers       int
	log           *logrus.Entry
	registerer    prometheus.Registerer
}

// Option configures a Registry.
type Option func(*options)

// WithBridgeTimeout sets how long blocking operations wait for the engine.
func WithBridgeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.bridgeTimeout = d
		}
	}
}

// WithWorkerPoolSize sets the number of callback workers.
func WithWorkerPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the log entry used by the registry.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics registers the registry's collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

func defaultOptions() options {
	return options{
		bridgeTimeout: DefaultBridgeTimeout,
		workers:       DefaultWorkerPoolSize,
		log:           logrus.StandardLogger().WithField("component", "session"),
	}
}
