// Command rtcsessiond serves a session registry over HTTP and websockets.
//
// Configuration comes from an optional YAML file and the environment:
//
//	rtcsessiond -config rtcsession.yml
//	RTCSESSION_ENGINE=shim LIBWEBRTC_SHIM_PATH=/opt/lib/libwebrtc_shim.so rtcsessiond
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/internal/config"
	"github.com/thesyncim/rtcsession/internal/server"
	"github.com/thesyncim/rtcsession/pkg/engine"
	"github.com/thesyncim/rtcsession/pkg/pionengine"
	"github.com/thesyncim/rtcsession/pkg/session"
	"github.com/thesyncim/rtcsession/pkg/shimengine"
)

var configPath = flag.String("config", "", "YAML configuration file")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), "\nEnvironment:")
		fmt.Fprintln(flag.CommandLine.Output(), config.Usage())
	}
	flag.Parse()

	if err := run(); err != nil {
		logrus.WithError(err).Fatal("rtcsessiond failed")
	}
}

func run() error {
	cfg, err := config.New(*configPath)
	if err != nil {
		return err
	}

	logger := logrus.StandardLogger()
	logger.SetLevel(cfg.LogLevel())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logger.WithField("component", "rtcsessiond")

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg := session.New(eng,
		session.WithLogger(logger.WithField("component", "session")),
		session.WithBridgeTimeout(cfg.BridgeTimeout),
		session.WithWorkerPoolSize(cfg.Workers),
		session.WithMetrics(promReg),
	)
	defer func() {
		if err := reg.Close(); err != nil {
			log.WithError(err).Warn("close registry")
		}
		if err := eng.Close(); err != nil {
			log.WithError(err).Warn("close engine")
		}
	}()

	srv := server.New(reg,
		server.WithLogger(logger.WithField("component", "server")),
		server.WithPeerConfiguration(cfg.PeerConfiguration()),
		server.WithMetrics(promReg, promReg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"engine":  cfg.Engine,
		"listen":  cfg.Listen,
		"workers": cfg.Workers,
	}).Info("starting")
	return srv.Run(ctx, cfg.Listen)
}

func newEngine(cfg *config.Config, logger *logrus.Logger) (engine.Engine, error) {
	switch cfg.Engine {
	case config.EngineShim:
		opts := []shimengine.Option{shimengine.WithLogger(logger.WithField("component", "shimengine"))}
		if cfg.Path != "" {
			opts = append(opts, shimengine.WithLibraryPath(cfg.Path))
		}
		return shimengine.New(opts...)
	default:
		log := logger.WithField("component", "pionengine")
		return pionengine.New(
			pionengine.WithLogger(log),
			pionengine.WithCaptureHandler(func(src engine.Source) {
				log.WithField("device", src.DeviceID()).Info("virtual capture source opened")
			}),
		)
	}
}
