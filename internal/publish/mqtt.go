package publish

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/session"
	"github.com/muurk/pettracer/internal/tracker"
	"go.uber.org/zap"
)

const (
	DefaultTopicPrefix = "pettracer"
	DefaultClientID    = "pettracer-live"
	DefaultTimeout     = 10 * time.Second

	// StatusOffline is published on Close and as last will.
	StatusOffline = "offline"

	disconnectQuiesceMs = 250
)

// Config configures the MQTT publisher.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Retain      bool
	Timeout     time.Duration
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Publisher sends snapshots and state changes to MQTT.
type Publisher struct {
	cfg    Config
	client client
}

// NewPublisher builds a publisher for cfg.Broker. Call Connect before use.
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker is required")
	}
	cfg = withDefaults(cfg)

	p := &Publisher{cfg: cfg}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(cfg.Timeout).
		SetWriteTimeout(cfg.Timeout).
		SetWill(p.StatusTopic(), StatusOffline, 1, true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logging.Warn("MQTT connection lost", zap.Error(err))
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logging.Info("MQTT connected", zap.String("broker", cfg.Broker))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	p.client = mqtt.NewClient(opts)
	return p, nil
}

func newPublisherWithClient(cfg Config, c client) *Publisher {
	return &Publisher{cfg: withDefaults(cfg), client: c}
}

func withDefaults(cfg Config) Config {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	return cfg
}

// Connect connects to the broker.
func (p *Publisher) Connect() error {
	return p.wait(p.client.Connect(), "connect")
}

// StatusTopic returns the retained connection-state topic.
func (p *Publisher) StatusTopic() string {
	return p.cfg.TopicPrefix + "/status"
}

// DeviceTopic returns the snapshot topic of one device.
func (p *Publisher) DeviceTopic(deviceID int) string {
	return p.cfg.TopicPrefix + "/" + strconv.Itoa(deviceID) + "/state"
}

// PublishDevice sends one snapshot.
func (p *Publisher) PublishDevice(deviceID int, snapshot *devicestate.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot %d: %w", deviceID, err)
	}
	topic := p.DeviceTopic(deviceID)
	return p.wait(p.client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload), "publish "+topic)
}

// PublishState sends the connection state, retained.
func (p *Publisher) PublishState(state session.State) error {
	return p.publishStatus(state.String())
}

func (p *Publisher) publishStatus(status string) error {
	topic := p.StatusTopic()
	return p.wait(p.client.Publish(topic, 1, true, status), "publish "+topic)
}

// Attach registers listeners on c. Publish failures are logged. The
// returned function removes the listeners.
func (p *Publisher) Attach(c *tracker.Client) (detach func()) {
	removeDevice := c.OnDeviceUpdated(func(id int, s *devicestate.Snapshot) {
		if err := p.PublishDevice(id, s); err != nil {
			logging.Warn("MQTT device publish failed", zap.Int("device_id", id), zap.Error(err))
		}
	})
	removeState := c.OnConnectionStateChanged(func(state session.State) {
		if err := p.PublishState(state); err != nil {
			logging.Warn("MQTT state publish failed", zap.Stringer("state", state), zap.Error(err))
		}
	})
	return func() {
		removeDevice()
		removeState()
	}
}

// Close publishes the offline status and disconnects.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		if err := p.publishStatus(StatusOffline); err != nil {
			logging.Debug("Failed to publish offline status", zap.Error(err))
		}
	}
	p.client.Disconnect(disconnectQuiesceMs)
}

func (p *Publisher) wait(t mqtt.Token, op string) error {
	if !t.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("mqtt %s: timed out after %s", op, p.cfg.Timeout)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", op, err)
	}
	return nil
}
