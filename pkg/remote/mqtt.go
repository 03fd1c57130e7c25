// Package remote connects the kiosk to its MQTT command/state channel.
// Inbound command handlers only enqueue work; they never mutate
// controller state directly.
package remote

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/teslashibe/go-kiosk/internal/config"
	"github.com/teslashibe/go-kiosk/internal/log"
)

// CommandHandler receives the raw string payload of one command.
type CommandHandler func(payload string)

// connectTimeout bounds the initial broker handshake.
const connectTimeout = 5 * time.Second

// publishTimeout bounds individual state publishes.
const publishTimeout = 2 * time.Second

// Client wraps the paho MQTT client with the kiosk topic layout:
// <prefix>/command/<name> inbound, <prefix>/state/<name> outbound
// (retained).
type Client struct {
	cfg    config.MQTT
	client mqtt.Client
	logger interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
		Error(msg string, args ...any)
		Debug(msg string, args ...any)
	}

	mu        sync.RWMutex
	handlers  map[string]CommandHandler
	connected bool
}

// New creates a client for the given broker configuration.
func New(cfg config.MQTT) *Client {
	return &Client{
		cfg:      cfg,
		logger:   log.Component("mqtt"),
		handlers: make(map[string]CommandHandler),
	}
}

// RegisterCommand installs the handler for one command name. Must be
// called before Connect.
func (c *Client) RegisterCommand(name string, handler CommandHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = handler
}

// Connect establishes the broker connection, subscribes to the command
// topics, and announces availability.
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.cfg.Broker, c.cfg.Port))
	opts.SetClientID("go-kiosk-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(c.stateTopic("availability"), "offline", 1, true)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.OnConnect = func(client mqtt.Client) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		c.logger.Info("mqtt connection established", "broker", c.cfg.Broker)
		c.subscribeCommands(client)
		c.PublishState("availability", "online")
		c.publishDiscovery()
	}

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.logger.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	}

	c.client = mqtt.NewClient(opts)

	c.logger.Info("connecting to mqtt broker",
		"broker", c.cfg.Broker, "port", c.cfg.Port, "prefix", c.cfg.TopicPrefix)

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// Disconnect announces offline and closes the connection.
func (c *Client) Disconnect() {
	if c.client == nil {
		return
	}
	if c.client.IsConnected() {
		c.PublishState("availability", "offline")
		c.client.Disconnect(250)
	}
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.logger.Info("mqtt disconnected")
}

// IsConnected reports the live broker connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// PublishState publishes a retained state value.
func (c *Client) PublishState(kind, value string) {
	if c.client == nil {
		return
	}
	topic := c.stateTopic(kind)
	token := c.client.Publish(topic, 0, true, value)
	if !token.WaitTimeout(publishTimeout) {
		c.logger.Warn("state publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		c.logger.Warn("state publish failed", "topic", topic, "error", err)
		return
	}
	c.logger.Debug("state published", "topic", topic, "value", value)
}

func (c *Client) subscribeCommands(client mqtt.Client) {
	c.mu.RLock()
	names := make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		names = append(names, name)
	}
	c.mu.RUnlock()

	for _, name := range names {
		topic := c.commandTopic(name)
		token := client.Subscribe(topic, 0, c.onMessage)
		if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
			c.logger.Error("command subscribe failed", "topic", topic, "error", token.Error())
			continue
		}
		c.logger.Debug("subscribed", "topic", topic)
	}
}

// onMessage routes one inbound command to its handler. The handler is
// isolated so a fault cannot take down the paho router goroutine.
func (c *Client) onMessage(client mqtt.Client, msg mqtt.Message) {
	name, ok := CommandName(msg.Topic(), c.cfg.TopicPrefix)
	if !ok {
		c.logger.Warn("message on unexpected topic", "topic", msg.Topic())
		return
	}

	c.mu.RLock()
	handler := c.handlers[name]
	c.mu.RUnlock()
	if handler == nil {
		c.logger.Warn("no handler for command", "command", name)
		return
	}

	payload := string(msg.Payload())
	c.logger.Debug("command received", "command", name, "payload", payload)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in command handler", "command", name, "panic", r)
		}
	}()
	handler(payload)
}

// CommandName extracts the command from a topic of the form
// <prefix>/command/<name>.
func CommandName(topic, prefix string) (string, bool) {
	head := prefix + "/command/"
	if !strings.HasPrefix(topic, head) {
		return "", false
	}
	name := strings.TrimPrefix(topic, head)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func (c *Client) stateTopic(kind string) string {
	return c.cfg.TopicPrefix + "/state/" + kind
}

func (c *Client) commandTopic(name string) string {
	return c.cfg.TopicPrefix + "/command/" + name
}

// publishDiscovery announces the kiosk's entities to Home Assistant.
func (c *Client) publishDiscovery() {
	device := map[string]any{
		"identifiers":  []string{"go-kiosk"},
		"name":         "Kiosk",
		"model":        "Wall Kiosk",
		"manufacturer": "go-kiosk",
	}

	presence := map[string]any{
		"name":         "Kiosk Presence",
		"state_topic":  c.stateTopic("presence"),
		"payload_on":   "detected",
		"payload_off":  "not_detected",
		"device_class": "occupancy",
		"device":       device,
		"unique_id":    "go_kiosk_presence",
	}
	c.publishJSON("homeassistant/binary_sensor/go_kiosk/presence/config", presence)

	brightness := map[string]any{
		"name":                "Kiosk Brightness",
		"state_topic":         c.stateTopic("brightness"),
		"command_topic":       c.commandTopic("brightness"),
		"unit_of_measurement": "%",
		"device":              device,
		"unique_id":           "go_kiosk_brightness",
	}
	c.publishJSON("homeassistant/sensor/go_kiosk/brightness/config", brightness)

	c.logger.Info("published mqtt discovery configuration")
}

func (c *Client) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("marshal discovery config", "topic", topic, "error", err)
		return
	}
	token := c.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		c.logger.Warn("discovery publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		c.logger.Warn("discovery publish failed", "topic", topic, "error", err)
	}
}
