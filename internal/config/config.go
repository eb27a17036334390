// Package config loads the daemon configuration.
package config

import (
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/rtcsession/pkg/engine"
)

// Engine names accepted by RTCSESSION_ENGINE.
const (
	EnginePion = "pion"
	EngineShim = "shim"
)

type (
	// Config is the daemon configuration.
	Config struct {
		HTTP    `yaml:"http"`
		Session `yaml:"session"`
		Log     `yaml:"log"`
		Shim    `yaml:"shim"`
	}

	// HTTP configures the host surface listener.
	HTTP struct {
		Listen string `yaml:"listen" env:"RTCSESSION_LISTEN" env-default:":8080"`
	}

	// Session configures the registry and its engine.
	Session struct {
		Engine        string        `yaml:"engine" env:"RTCSESSION_ENGINE" env-default:"pion"`
		BridgeTimeout time.Duration `yaml:"bridge_timeout" env:"RTCSESSION_BRIDGE_TIMEOUT" env-default:"5s"`
		Workers       int           `yaml:"workers" env:"RTCSESSION_WORKERS" env-default:"4"`
		ICEServers    []string      `yaml:"ice_servers" env:"RTCSESSION_ICE_SERVERS" env-separator:","`
	}

	// Log configures logrus.
	Log struct {
		Level string `yaml:"level" env:"RTCSESSION_LOG_LEVEL" env-default:"info"`
	}

	// Shim locates the libwebrtc shim for the shim engine.
	Shim struct {
		Path string `yaml:"path" env:"LIBWEBRTC_SHIM_PATH"`
	}
)

// New reads path, when not empty, then applies the environment on top.
func New(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errors.Wrap(err, "read environment")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	switch c.Engine {
	case EnginePion, EngineShim:
	default:
		return errors.Errorf("unknown engine %q", c.Engine)
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.BridgeTimeout <= 0 {
		return errors.Errorf("bridge timeout must be positive, got %s", c.BridgeTimeout)
	}
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// LogLevel returns the parsed log level.
func (c *Config) LogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// PeerConfiguration is the configuration given to every new peer
// connection. Each entry of ICEServers is one server URL.
func (c *Config) PeerConfiguration() engine.Configuration {
	var cfg engine.Configuration
	for _, u := range c.ICEServers {
		if u = strings.TrimSpace(u); u != "" {
			cfg.ICEServers = append(cfg.ICEServers, engine.ICEServer{URLs: []string{u}})
		}
	}
	return cfg
}

// Usage describes the environment variables.
func Usage() string {
	text, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return text
}
