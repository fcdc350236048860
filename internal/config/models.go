package config

import (
	"fmt"
	"time"

	"github.com/muurk/pettracer/internal/api"
	"github.com/muurk/pettracer/internal/channel"
	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/publish"
	"github.com/muurk/pettracer/internal/session"
)

// CurrentVersion is the only config file version this build understands.
const CurrentVersion = 1

// Config represents the entire user configuration file.
// The access token is deliberately absent: it is never written to disk.
type Config struct {
	Version int           `yaml:"version"`
	Channel ChannelConfig `yaml:"channel"`
	Devices DevicesConfig `yaml:"devices"`
	API     APIConfig     `yaml:"api"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`
}

// ChannelConfig tunes the live connection.
type ChannelConfig struct {
	Scheme           string        `yaml:"scheme"`
	Host             string        `yaml:"host"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
	HistoryLimit     int           `yaml:"history_limit"`
	CaptureDir       string        `yaml:"capture_dir,omitempty"` // empty disables capture
}

// DevicesConfig lists the tracked device ids.
type DevicesConfig struct {
	IDs []int `yaml:"ids"`
}

// APIConfig controls the local query API.
type APIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Listen         string   `yaml:"listen"`
	Advertise      bool     `yaml:"advertise"`                 // announce over mDNS
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"` // CORS; empty sends no CORS headers
}

// MQTTConfig controls the MQTT sink. An empty broker disables it.
// Passwords are never stored; they come from PETTRACER_MQTT_PASSWORD.
type MQTTConfig struct {
	Broker      string `yaml:"broker,omitempty"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username,omitempty"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
	Retain      bool   `yaml:"retain"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Channel: ChannelConfig{
			Scheme:           session.DefaultScheme,
			Host:             session.DefaultHost,
			HandshakeTimeout: session.DefaultHandshakeTimeout,
			HeartbeatTimeout: channel.DefaultHeartbeatTimeout,
			InitialBackoff:   channel.DefaultInitialBackoff,
			MaxBackoff:       channel.DefaultMaxBackoff,
			HistoryLimit:     devicestate.DefaultHistoryLimit,
		},
		Devices: DevicesConfig{IDs: []int{}},
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8780",
		},
		MQTT: MQTTConfig{
			ClientID:    publish.DefaultClientID,
			TopicPrefix: publish.DefaultTopicPrefix,
			QoS:         1,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// applyDefaults fills zero values left by a partial file.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Channel.Scheme == "" {
		c.Channel.Scheme = d.Channel.Scheme
	}
	if c.Channel.Host == "" {
		c.Channel.Host = d.Channel.Host
	}
	if c.Channel.HandshakeTimeout <= 0 {
		c.Channel.HandshakeTimeout = d.Channel.HandshakeTimeout
	}
	if c.Channel.HeartbeatTimeout <= 0 {
		c.Channel.HeartbeatTimeout = d.Channel.HeartbeatTimeout
	}
	if c.Channel.InitialBackoff <= 0 {
		c.Channel.InitialBackoff = d.Channel.InitialBackoff
	}
	if c.Channel.MaxBackoff <= 0 {
		c.Channel.MaxBackoff = d.Channel.MaxBackoff
	}
	if c.Channel.HistoryLimit <= 0 {
		c.Channel.HistoryLimit = d.Channel.HistoryLimit
	}
	if c.Devices.IDs == nil {
		c.Devices.IDs = []int{}
	}
	if c.API.Listen == "" {
		c.API.Listen = d.API.Listen
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
}

// Validate reports settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Channel.Scheme != "ws" && c.Channel.Scheme != "wss" {
		return fmt.Errorf("channel.scheme must be ws or wss, got %q", c.Channel.Scheme)
	}
	if c.Channel.MaxBackoff < c.Channel.InitialBackoff {
		return fmt.Errorf("channel.max_backoff (%s) is below channel.initial_backoff (%s)",
			c.Channel.MaxBackoff, c.Channel.InitialBackoff)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	for _, id := range c.Devices.IDs {
		if id <= 0 {
			return fmt.Errorf("devices.ids contains invalid id %d", id)
		}
	}
	return nil
}

// ChannelSettings converts the channel section for channel.NewSupervisor.
// Dialer and recorder are left for the caller to attach.
func (c *Config) ChannelSettings() channel.Config {
	return channel.Config{
		Endpoint: session.Endpoint{
			Scheme: c.Channel.Scheme,
			Host:   c.Channel.Host,
		},
		HandshakeTimeout: c.Channel.HandshakeTimeout,
		HeartbeatTimeout: c.Channel.HeartbeatTimeout,
		InitialBackoff:   c.Channel.InitialBackoff,
		MaxBackoff:       c.Channel.MaxBackoff,
	}
}

// LoggingOptions converts the logging section.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// PublishSettings converts the mqtt section. password is supplied by the caller.
func (c *Config) PublishSettings(password string) publish.Config {
	return publish.Config{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    password,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         c.MQTT.QoS,
		Retain:      c.MQTT.Retain,
	}
}

// APIOptions converts the api section.
func (c *Config) APIOptions(debug bool) api.Options {
	return api.Options{
		AllowedOrigins: c.API.AllowedOrigins,
		Debug:          debug,
	}
}
