package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout is linux-specific")
	}
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	dir, err := GetConfigDir()
	require.NoError(t, err)
	if dir != filepath.Join(base, "pettracer") {
		t.Errorf("GetConfigDir() = %v, want %v", dir, filepath.Join(base, "pettracer"))
	}

	path, err := GetConfigPath()
	require.NoError(t, err)
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", path)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Version != 1 {
		t.Errorf("Default().Version = %v, want 1", cfg.Version)
	}
	if cfg.Channel.Host != "pt.pettracer.com" {
		t.Errorf("Default().Channel.Host = %v, want pt.pettracer.com", cfg.Channel.Host)
	}
	if cfg.Channel.InitialBackoff != 5*time.Second || cfg.Channel.MaxBackoff != 300*time.Second {
		t.Errorf("Default() backoff = %v..%v, want 5s..5m0s", cfg.Channel.InitialBackoff, cfg.Channel.MaxBackoff)
	}
	if cfg.Channel.HistoryLimit != 10 {
		t.Errorf("Default().Channel.HistoryLimit = %v, want 10", cfg.Channel.HistoryLimit)
	}
	if cfg.Devices.IDs == nil {
		t.Error("Default().Devices.IDs should not be nil")
	}
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileMissing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParsePartialFile(t *testing.T) {
	data := []byte(`
channel:
  heartbeat_timeout: 30s
devices:
  ids: [3, 1, 2]
mqtt:
  broker: tcp://localhost:1883
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, 30*time.Second, cfg.Channel.HeartbeatTimeout)
	assert.Equal(t, 5*time.Second, cfg.Channel.InitialBackoff)
	assert.Equal(t, "wss", cfg.Channel.Scheme)
	assert.Equal(t, []int{3, 1, 2}, cfg.Devices.IDs)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "pettracer", cfg.MQTT.TopicPrefix)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad yaml", "channel: [", "failed to parse"},
		{"future version", "version: 2", "unsupported config version"},
		{"bad scheme", "channel:\n  scheme: http", "channel.scheme"},
		{"backoff inverted", "channel:\n  initial_backoff: 10m\n  max_backoff: 1m", "max_backoff"},
		{"bad qos", "mqtt:\n  qos: 3", "mqtt.qos"},
		{"bad id", "devices:\n  ids: [1, -4]", "invalid id -4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatalf("Parse(%q) error = nil, want %q", tt.data, tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse(%q) error = %v, want it to contain %q", tt.data, err, tt.want)
			}
		})
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Devices.IDs = []int{12, 34}
	cfg.Channel.CaptureDir = "/var/tmp/captures"
	cfg.MQTT.Broker = "tcp://broker:1883"
	cfg.MQTT.Username = "tracker"
	require.NoError(t, cfg.SaveFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# PetTracer live channel configuration")
	assert.Contains(t, string(data), "heartbeat_timeout: 45s")
	assert.NotContains(t, strings.ToLower(string(data)), "token:")
	assert.NotContains(t, strings.ToLower(string(data)), "password")

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, CreateDefaultConfig(path, false))
	err := CreateDefaultConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.NoError(t, CreateDefaultConfig(path, true))
}

func TestLoadUsesXDGLocation(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout is linux-specific")
	}
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	cfg := Default()
	cfg.Devices.IDs = []int{77}
	require.NoError(t, cfg.Save())

	loaded, err := Reload()
	require.NoError(t, err)
	assert.Equal(t, []int{77}, loaded.Devices.IDs)

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, loaded, again)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Channel.Scheme = "ws"
	cfg.Channel.Host = "127.0.0.1:9000"
	cfg.Logging.Level = "debug"
	cfg.Logging.File = "/tmp/pettracer.log"
	cfg.MQTT.Broker = "tcp://broker:1883"
	cfg.API.AllowedOrigins = []string{"http://localhost:3000"}

	ch := cfg.ChannelSettings()
	assert.Equal(t, "ws", ch.Endpoint.Scheme)
	assert.Equal(t, "127.0.0.1:9000", ch.Endpoint.Host)
	assert.Equal(t, cfg.Channel.HeartbeatTimeout, ch.HeartbeatTimeout)
	assert.Nil(t, ch.Dialer)

	lo := cfg.LoggingOptions()
	assert.Equal(t, "debug", lo.Level)
	assert.Equal(t, "/tmp/pettracer.log", lo.File)
	assert.Equal(t, 10, lo.MaxSizeMB)

	pub := cfg.PublishSettings("secret")
	assert.Equal(t, "tcp://broker:1883", pub.Broker)
	assert.Equal(t, "secret", pub.Password)
	assert.Equal(t, byte(1), pub.QoS)

	opts := cfg.APIOptions(true)
	assert.True(t, opts.Debug)
	assert.Equal(t, []string{"http://localhost:3000"}, opts.AllowedOrigins)
}
