package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendGoBLE, cfg.Backend)
	assert.Equal(t, time.Second, cfg.RSSIDelay)
	assert.Equal(t, 256, cfg.EventBuffer)
	assert.True(t, cfg.AllowDuplicates)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "blecentral", cfg.MQTT.TopicPrefix)
	assert.NoError(t, cfg.Validate(), "defaults MUST validate")
}

func TestParse_OverridesKeepDefaults(t *testing.T) {
	// GOAL: YAML values override defaults while unset keys keep their defaults
	//
	// TEST SCENARIO: document sets backend, rssi_delay, allow_duplicates and mqtt.enabled → the rest stays default

	cfg := DefaultConfig()
	err := Parse([]byte(`
backend: hci
rssi_delay: 250ms
allow_duplicates: false
filter:
  services: ["180f"]
mqtt:
  enabled: true
  topic_prefix: home/ble
`), cfg)
	require.NoError(t, err)

	assert.Equal(t, BackendHCI, cfg.Backend)
	assert.Equal(t, 250*time.Millisecond, cfg.RSSIDelay)
	assert.False(t, cfg.AllowDuplicates, "explicit false MUST override the default")
	assert.Equal(t, []string{"180f"}, cfg.Filter.Services)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "home/ble", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker, "unset keys MUST keep defaults")
	assert.Equal(t, 256, cfg.EventBuffer)

	opts := cfg.CentralOptions()
	assert.Equal(t, 250*time.Millisecond, opts.RSSIDelay)
	assert.False(t, opts.AllowDuplicates)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nevent_buffer: 32\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 32, cfg.EventBuffer)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg, "empty path MUST yield defaults")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("event_buffer: [1, 2"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "bluez" }, "backend must be"},
		{"zero buffer", func(c *Config) { c.EventBuffer = 0 }, "event_buffer must be positive"},
		{"negative rssi delay", func(c *Config) { c.RSSIDelay = -time.Second }, "rssi_delay"},
		{"zero connect timeout", func(c *Config) { c.ConnectTimeout = 0 }, "connect_timeout"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "" }, "mqtt.broker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		level    string
		expected logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"WARN", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"bogus", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}

			logger := cfg.NewLogger()

			assert.Equal(t, tt.expected, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestRadioFactory(t *testing.T) {
	cfg := DefaultConfig()
	assert.NotNil(t, cfg.RadioFactory())

	cfg.Backend = BackendHCI
	assert.NotNil(t, cfg.RadioFactory())
}
