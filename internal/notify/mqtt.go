package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
	mqttQuiesceMs      = 250
)

// MQTT topic suffixes below the configured prefix.
const (
	TopicEscalation   = "escalation"
	TopicAcknowledged = "acknowledged"
	TopicRisk         = "risk"
	TopicTest         = "test"
)

// MQTTMessage is the JSON body published on every topic.
type MQTTMessage struct {
	Event      string                `json:"event"`
	SessionID  string                `json:"session_id,omitempty"`
	Cause      string                `json:"cause,omitempty"`
	Assessment *types.RiskAssessment `json:"assessment,omitempty"`
	Message    string                `json:"message,omitempty"`
	Timestamp  string                `json:"timestamp"`
}

// MQTTPublisher keeps one broker connection for escalation and risk telemetry.
// It reconnects when the broker settings change.
type MQTTPublisher struct {
	mu        sync.Mutex
	client    mqtt.Client
	cfg       types.MQTTConfig
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTPublisher returns a publisher without a connection.
func NewMQTTPublisher() *MQTTPublisher {
	return &MQTTPublisher{}
}

// Topic returns the full topic for a suffix.
func Topic(prefix, suffix string) string {
	if prefix == "" {
		prefix = "drowsiguard"
	}
	return prefix + "/" + suffix
}

// ensureClient returns a connected client for cfg, replacing the current one
// when the broker settings changed.
func (p *MQTTPublisher) ensureClient(cfg types.MQTTConfig) (mqtt.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.cfg == cfg {
		return p.client, nil
	}
	if p.client != nil {
		p.client.Disconnect(mqttQuiesceMs)
		p.client = nil
		p.connected = false
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		p.setConnected(true)
		slog.Info("mqtt connection established", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		// ConnectRetry keeps trying in the background; publishing fails until it succeeds.
		p.client, p.cfg = client, cfg
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, util.WrapError("connect to mqtt broker", err)
	}

	p.client, p.cfg, p.connected = client, cfg, true
	return client, nil
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// Connected reports whether the broker connection is up.
func (p *MQTTPublisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// publish sends msg on prefix/suffix with the configured QoS.
func (p *MQTTPublisher) publish(cfg types.MQTTConfig, suffix string, msg *MQTTMessage) error {
	if cfg.Broker == "" {
		return nil
	}

	client, err := p.ensureClient(cfg)
	if err != nil {
		p.countError()
		return err
	}
	if !client.IsConnectionOpen() {
		p.countError()
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		p.countError()
		return util.WrapError("marshal mqtt message", err)
	}

	topic := Topic(cfg.Topic, suffix)
	token := client.Publish(topic, cfg.QoS, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		p.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return util.WrapError("publish to mqtt", err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	slog.Debug("mqtt message published", "topic", topic, "size", len(payload))
	return nil
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// PublishEscalation publishes an escalation event.
func (p *MQTTPublisher) PublishEscalation(cfg types.MQTTConfig, esc *types.Escalation) error {
	a := esc.Assessment
	return p.publish(cfg, TopicEscalation, &MQTTMessage{
		Event:      "driver_escalation",
		SessionID:  esc.SessionID,
		Cause:      string(esc.Cause),
		Assessment: &a,
		Timestamp:  esc.Timestamp.UTC().Format(time.RFC3339),
	})
}

// PublishAcknowledged publishes that the driver acknowledged the alert.
func (p *MQTTPublisher) PublishAcknowledged(cfg types.MQTTConfig, sessionID string) error {
	return p.publish(cfg, TopicAcknowledged, &MQTTMessage{
		Event:     "driver_acknowledged",
		SessionID: sessionID,
		Timestamp: timestampUTC(),
	})
}

// PublishRisk publishes a risk level change.
func (p *MQTTPublisher) PublishRisk(cfg types.MQTTConfig, sessionID string, a types.RiskAssessment) error {
	return p.publish(cfg, TopicRisk, &MQTTMessage{
		Event:      "risk_changed",
		SessionID:  sessionID,
		Assessment: &a,
		Timestamp:  timestampUTC(),
	})
}

// SendTestMQTT publishes a test message to verify the broker settings.
func (p *MQTTPublisher) SendTestMQTT(cfg types.MQTTConfig) error {
	if cfg.Broker == "" {
		return fmt.Errorf("mqtt broker not configured")
	}
	return p.publish(cfg, TopicTest, &MQTTMessage{
		Event:     "test",
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// Stats returns the number of published messages and failures.
func (p *MQTTPublisher) Stats() (published, failed uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.errors
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(mqttQuiesceMs)
		p.client = nil
	}
	p.connected = false
}
