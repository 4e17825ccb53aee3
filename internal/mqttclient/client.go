package mqttclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// publishTimeout bounds how long a QoS 1 publish waits for the broker ack.
const publishTimeout = 10 * time.Second

type Client struct {
	conn        mqtt.Client
	topicPrefix string
	connected   atomic.Bool
	published   atomic.Int64
	log         zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		topicPrefix: normalizePrefix(opts.TopicPrefix),
		log:         opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("topic_prefix", c.topicPrefix).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// Topic returns the full topic for a suffix under the configured prefix.
func (c *Client) Topic(suffix string) string {
	return joinTopic(c.topicPrefix, suffix)
}

// Publish marshals payload as JSON and publishes it at QoS 1 to
// <prefix>/<suffix>, waiting for the broker to acknowledge.
func (c *Client) Publish(suffix string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}
	topic := c.Topic(suffix)
	token := c.conn.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	c.published.Add(1)
	c.log.Debug().Str("topic", topic).Int("payload_size", len(data)).Msg("mqtt message published")
	return nil
}

// PublishedCount returns the number of acknowledged publishes.
func (c *Client) PublishedCount() int64 {
	return c.published.Load()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

func normalizePrefix(raw string) string {
	p := strings.Trim(strings.TrimSpace(raw), "/")
	if p == "" {
		return "callscribe"
	}
	return p
}

func joinTopic(prefix, suffix string) string {
	suffix = strings.Trim(suffix, "/")
	if suffix == "" {
		return prefix
	}
	return prefix + "/" + suffix
}
