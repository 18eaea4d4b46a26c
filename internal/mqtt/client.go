// Package mqtt wraps the paho client with reconnect-safe subscriptions
// and a single inbound routing callback.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 10 * time.Second

// MessageHandler receives every inbound message regardless of which
// filter matched it.
type MessageHandler func(topic string, payload []byte)

// Config for the broker connection.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	WillTopic      string
	WillPayload    string
}

// Client is the broker session. Every filter subscribed through
// Subscribe is tracked and replayed after a reconnect, so devices never
// notice broker restarts.
type Client struct {
	broker  string
	opts    *pahomqtt.ClientOptions
	handler MessageHandler
	timeout time.Duration

	mu      sync.Mutex
	client  pahomqtt.Client
	filters map[string]struct{}
}

func New(cfg Config, handler MessageHandler) *Client {
	c := &Client{
		broker:  cfg.Broker,
		handler: handler,
		timeout: cfg.ConnectTimeout,
		filters: make(map[string]struct{}),
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "homed"
	}
	// Suffix avoids session takeover fights when two instances overlap
	// during a restart.
	clientID = fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8])

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(c.timeout).
		SetOrderMatters(false)

	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 1, true)
	}

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
		c.resubscribe()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	c.opts = opts
	return c
}

// Connect establishes the broker session.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.client = pahomqtt.NewClient(c.opts)
	client := c.client
	c.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("mqtt connect to %s timed out after %s", c.broker, c.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", c.broker, err)
	}
	return nil
}

// Subscribe adds a topic filter. Before the session is up the filter is
// only recorded; the on-connect handler replays it.
func (c *Client) Subscribe(filter string) error {
	c.mu.Lock()
	if _, ok := c.filters[filter]; ok {
		c.mu.Unlock()
		return nil
	}
	c.filters[filter] = struct{}{}
	client := c.client
	c.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return nil
	}
	return c.subscribe(client, filter)
}

func (c *Client) subscribe(client pahomqtt.Client, filter string) error {
	token := client.Subscribe(filter, 1, c.route)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("subscribe %s timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	log.Debug().Str("filter", filter).Msg("Subscribed to MQTT topic")
	return nil
}

func (c *Client) resubscribe() {
	c.mu.Lock()
	client := c.client
	filters := make([]string, 0, len(c.filters))
	for f := range c.filters {
		filters = append(filters, f)
	}
	c.mu.Unlock()

	for _, f := range filters {
		if err := c.subscribe(client, f); err != nil {
			log.Error().Err(err).Str("filter", f).Msg("Failed to resubscribe")
		}
	}
}

func (c *Client) route(_ pahomqtt.Client, msg pahomqtt.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
	}
}

// Publish sends payload to topic at QoS 1.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil {
		return fmt.Errorf("mqtt session not established")
	}
	token := client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", topic, err)
	}
	return c.Publish(topic, payload, retained)
}

// Disconnect closes the session, allowing a short drain for in-flight
// messages.
func (c *Client) Disconnect() {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		log.Debug().Msg("Disconnected from MQTT broker")
	}
}
