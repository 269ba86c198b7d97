package sender

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"morsekey/keyer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotConnected is returned by MQTT.Send while the broker link is down.
var ErrNotConnected = errors.New("mqtt: not connected")

// MQTTOptions configures the MQTT sender.
type MQTTOptions struct {
	Broker   string
	Port     int
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retained bool
	Station  string
}

// publisher is the part of mqtt.Client the sender needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
}

// MQTT publishes each confirmed message as a JSON Payload on one topic.
//
// The paho client keeps retrying the initial connect and reconnects after a
// drop on its own; a Send while the link is down fails and the message is
// reported as failed rather than queued for later delivery.
type MQTT struct {
	opts   MQTTOptions
	client mqtt.Client
	pub    publisher
	now    func() time.Time
}

// NewMQTT creates an unconnected MQTT sender.
func NewMQTT(opts MQTTOptions) *MQTT {
	return &MQTT{opts: opts, now: time.Now}
}

// Purpose: Establish the broker connection.
// Key aspects: Auto-reconnect and connect-retry enabled with a 1-minute cap.
// When ctx ends before the first connect completes the error is returned but
// the client stays installed and keeps retrying in the background.
// Upstream: main startup.
// Downstream: paho Connect.
func (m *MQTT) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", m.opts.Broker, m.opts.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("%s-%d", m.opts.ClientID, m.now().Unix()))
	if m.opts.Username != "" {
		opts.SetUsername(m.opts.Username)
		opts.SetPassword(m.opts.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected to %s, publishing on %s", brokerURL, m.opts.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v (will reconnect)", err)
	})

	client := mqtt.NewClient(opts)
	m.client = client
	m.pub = client
	log.Printf("MQTT: connecting to %s...", brokerURL)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", brokerURL, err)
	}
	return nil
}

func (m *MQTT) Send(ctx context.Context, text string) (keyer.Receipt, error) {
	if strings.TrimSpace(text) == "" {
		return keyer.Receipt{}, ErrEmptyText
	}
	if m.pub == nil || !m.pub.IsConnectionOpen() {
		return keyer.Receipt{}, ErrNotConnected
	}
	p := newPayload(m.opts.Station, text, m.now())
	body, err := json.Marshal(p)
	if err != nil {
		return keyer.Receipt{}, fmt.Errorf("mqtt: encode payload: %w", err)
	}
	if err := waitToken(ctx, m.pub.Publish(m.opts.Topic, m.opts.QoS, m.opts.Retained, body)); err != nil {
		return keyer.Receipt{}, fmt.Errorf("mqtt: publish to %s: %w", m.opts.Topic, err)
	}
	return keyer.Receipt{ID: p.ID, Destination: "mqtt:" + m.opts.Topic, SentAt: p.SentAt}, nil
}

// Close disconnects from the broker, allowing 250ms for in-flight work. It
// also stops a connect that is still retrying.
func (m *MQTT) Close() {
	if m.client != nil {
		m.client.Disconnect(250)
	}
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
