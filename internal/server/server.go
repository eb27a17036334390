// Package server exposes a session registry to a host runtime over HTTP.
//
// Routes:
//
//	GET /ws       websocket carrying JSON requests, responses and events
//	GET /devices  capture devices and displays
//	GET /metrics  Prometheus metrics
//	GET /healthz  liveness probe
//
// A websocket request is {"id", "method", "params"} and is answered with
// {"id", "result"} or {"id", "error": {"code", "message"}}. Peer and track
// events are pushed as {"event", "peer", "data"}.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
	"github.com/thesyncim/rtcsession/pkg/session"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	log        *logrus.Entry
	peerConfig engine.Configuration
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	origins    func(r *http.Request) bool
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the server's log entry.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithPeerConfiguration sets the configuration new peer connections start
// from. Request parameters override it.
func WithPeerConfiguration(cfg engine.Configuration) Option {
	return func(o *options) { o.peerConfig = cfg }
}

// WithMetrics registers the server metrics on reg and serves g on
// /metrics.
func WithMetrics(reg prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = g
	}
}

// WithCheckOrigin sets the websocket origin check. All origins are
// accepted by default.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(o *options) { o.origins = fn }
}

// Server serves one registry.
type Server struct {
	reg        *session.Registry
	log        *logrus.Entry
	peerConfig engine.Configuration
	metrics    *metrics
	upgrader   websocket.Upgrader
	router     *gin.Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the router. The registry stays owned by the caller.
func New(reg *session.Registry, opts ...Option) *Server {
	o := options{
		log:      logrus.StandardLogger().WithField("component", "server"),
		gatherer: prometheus.DefaultGatherer,
		origins:  func(*http.Request) bool { return true },
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		reg:        reg,
		log:        o.log,
		peerConfig: o.peerConfig,
		metrics:    newMetrics(o.registerer),
		upgrader:   websocket.Upgrader{CheckOrigin: o.origins},
		ctx:        ctx,
		cancel:     cancel,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog)

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	router.GET("/devices", s.handleDevices)
	router.GET("/ws", s.handleWebsocket)
	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on addr until ctx is cancelled, then shuts down gracefully
// and disconnects the websocket clients.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// Close disconnects every websocket client and waits for their resources
// to be released.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.WithFields(logrus.Fields{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start),
	}).Debug("http request")
}

func (s *Server) devices() (devicesResult, error) {
	devices, err := s.reg.EnumerateDevices()
	if err != nil {
		return devicesResult{}, err
	}
	displays, err := s.reg.EnumerateDisplays()
	if err != nil {
		return devicesResult{}, err
	}
	return toDevicesResult(devices, displays), nil
}

func (s *Server) handleDevices(c *gin.Context) {
	res, err := s.devices()
	if err != nil {
		s.log.WithError(err).Warn("enumerate devices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": toRPCError(err)})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleWebsocket(c *gin.Context) {
	if s.ctx.Err() != nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade")
		return
	}

	cl := newClient(s, conn)
	s.wg.Add(1)
	defer s.wg.Done()

	// Server shutdown closes the connection, which ends the read loop.
	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()

	cl.run(s.ctx)
}
