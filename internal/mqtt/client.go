// Package mqtt connects the pipeline to an MQTT broker: cameras publish detections,
// and alerts and ledger changes are published back out.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"face-attendance/config"
	"face-attendance/internal/logger"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	qosAtLeastOnce = 1
)

// broker is the part of the paho client the pipeline uses
type broker interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

// Client owns the broker connection
type Client struct {
	cfg       config.MQTTConfig
	client    paho.Client
	broker    broker
	connected atomic.Bool
	log       *logger.Logger
}

func NewClient(cfg config.MQTTConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{cfg: cfg, log: log.Named("mqtt")}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Connect establishes the connection. paho reconnects on its own afterwards.
func (c *Client) Connect(ctx context.Context) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL(c.cfg.Broker))
	opts.SetClientID(c.cfg.ClientID)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	// Keep broker-side subscriptions across reconnects.
	opts.SetCleanSession(false)

	opts.OnConnect = func(paho.Client) {
		c.connected.Store(true)
		c.log.Info("mqtt connection established", "broker", c.cfg.Broker, "client_id", c.cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.connected.Store(false)
		c.log.Warn("mqtt connection lost, will auto-reconnect", "error", err, "broker", c.cfg.Broker)
	}

	c.client = paho.NewClient(opts)
	c.broker = c.client

	c.log.Info("connecting to mqtt broker", "broker", c.cfg.Broker)
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	c.connected.Store(true)
	return nil
}

// Disconnect closes the connection after letting in-flight work finish
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
	c.connected.Store(false)
}

// IsConnected reports the last known connection state
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) publish(topic string, payload []byte) error {
	if c.broker == nil {
		return fmt.Errorf("mqtt not connected")
	}
	token := c.broker.Publish(topic, qosAtLeastOnce, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	return nil
}

func (c *Client) subscribe(topic string, handler paho.MessageHandler) error {
	if c.broker == nil {
		return fmt.Errorf("mqtt not connected")
	}
	token := c.broker.Subscribe(topic, qosAtLeastOnce, handler)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("subscription to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscription to %s failed: %w", topic, err)
	}
	return nil
}

func (c *Client) unsubscribe(topic string) {
	if c.broker == nil {
		return
	}
	c.broker.Unsubscribe(topic).WaitTimeout(publishTimeout)
}
