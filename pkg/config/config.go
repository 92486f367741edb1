// Package config loads the engine configuration from YAML, filling anything
// left out from the struct's default tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/radio"
	"github.com/srg/blecentral/internal/radio/goble"
	"github.com/srg/blecentral/internal/radio/hci"
	"github.com/srg/blecentral/internal/registry"
	"gopkg.in/yaml.v3"
)

// Radio backends
const (
	BackendGoBLE = "goble"
	BackendHCI   = "hci"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds application configuration
type Config struct {
	LogLevel        string          `yaml:"log_level" default:"info"`
	Backend         string          `yaml:"backend" default:"goble"`
	RSSIDelay       time.Duration   `yaml:"rssi_delay" default:"1s"`
	EventBuffer     int             `yaml:"event_buffer" default:"256"`
	AllowDuplicates bool            `yaml:"allow_duplicates" default:"true"`
	ConnectTimeout  time.Duration   `yaml:"connect_timeout" default:"30s"`
	Filter          registry.Filter `yaml:"filter"`
	MQTT            MQTT            `yaml:"mqtt"`
}

// MQTT configures the event bridge.
type MQTT struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker" default:"tcp://localhost:1883"`
	ClientID    string `yaml:"client_id" default:"blecentral"`
	TopicPrefix string `yaml:"topic_prefix" default:"blecentral"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping values the document does not set.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Backend {
	case BackendGoBLE, BackendHCI:
	default:
		return fmt.Errorf("%w: backend must be %q or %q, got %q", ErrInvalidConfig, BackendGoBLE, BackendHCI, c.Backend)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("%w: event_buffer must be positive, got %d", ErrInvalidConfig, c.EventBuffer)
	}
	if c.RSSIDelay < 0 {
		return fmt.Errorf("%w: rssi_delay must not be negative", ErrInvalidConfig)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect_timeout must be positive", ErrInvalidConfig)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", ErrInvalidConfig)
	}
	return nil
}

// ParseLogLevel accepts debug, info, warn and error.
func ParseLogLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := ParseLogLevel(c.LogLevel)

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	if err != nil {
		logger.WithError(err).Warn("Falling back to info level")
	}
	return logger
}

// RadioFactory returns the factory of the configured backend.
func (c *Config) RadioFactory() radio.Factory {
	if c.Backend == BackendHCI {
		return hci.NewFactory(c.ConnectTimeout)
	}
	return goble.NewFactory(c.ConnectTimeout)
}

// CentralOptions maps the engine section onto central.Options.
func (c *Config) CentralOptions() central.Options {
	return central.Options{
		RSSIDelay:       c.RSSIDelay,
		EventBuffer:     c.EventBuffer,
		AllowDuplicates: c.AllowDuplicates,
		Filter:          c.Filter,
	}
}
