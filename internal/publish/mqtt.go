package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/frostdev-ops/meterdash/internal/config"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"github.com/sirupsen/logrus"
)

const mqttPublishTimeout = 5 * time.Second

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTReadingMirror republishes each live reading to an MQTT topic as the
// flat JSON row.
type MQTTReadingMirror struct {
	client mqttPublisher
	topic  string
	qos    byte
	logger *logrus.Logger
}

// NewMQTTReadingMirror connects to cfg.Broker. The client reconnects on its
// own after the first successful connection.
func NewMQTTReadingMirror(cfg config.MQTTConfig, logger *logrus.Logger) (*MQTTReadingMirror, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker must not be empty")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			logger.WithField("broker", cfg.Broker).Info("MQTT connected")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to mqtt broker %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", cfg.Broker, err)
	}

	return newMQTTReadingMirror(client, cfg, logger), nil
}

func newMQTTReadingMirror(client mqttPublisher, cfg config.MQTTConfig, logger *logrus.Logger) *MQTTReadingMirror {
	return &MQTTReadingMirror{
		client: client,
		topic:  cfg.Topic,
		qos:    cfg.QoS,
		logger: logger,
	}
}

// Name identifies the mirror in logs and metrics.
func (m *MQTTReadingMirror) Name() string { return "mqtt" }

// PublishReading sends r and waits for the broker acknowledgement or ctx.
func (m *MQTTReadingMirror) PublishReading(ctx context.Context, r meter.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)

	timeout := mqttPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timed out publishing reading to %s", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish reading to %s: %w", m.topic, err)
	}
	return nil
}

// Connected reports whether the client currently holds a broker session.
func (m *MQTTReadingMirror) Connected() bool {
	return m.client.IsConnected()
}

// Close disconnects after letting in-flight work finish.
func (m *MQTTReadingMirror) Close() error {
	m.client.Disconnect(250)
	return nil
}
