package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/jack2012aa/farm-iot/config"
	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/metric"
)

const (
	// gatewayLabel is the connection-gauge label for the broker session.
	gatewayLabel = "mqtt"

	defaultQoS        = 1
	resubWait         = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds, paho convention
)

// Message is one inbound publication, stamped at arrival.
type Message struct {
	Topic   string
	Payload []byte
	At      time.Time
}

// Handler consumes one inbound message. It runs on the network goroutine
// and must not block; hand the message to a Bridge instead of processing
// it in place.
type Handler func(msg Message)

// Client is one broker session shared by every push sensor.
type Client struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	mu   sync.Mutex
	subs map[string]paho.MessageHandler

	conn paho.Client
}

// New builds a client from its configuration. No I/O happens here; call
// Connect to open the session.
func New(cfg config.MQTTConfig, logger *slog.Logger, metrics *metric.Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		logger:  logger.With("gateway", gatewayLabel),
		metrics: metrics,
		subs:    make(map[string]paho.MessageHandler),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "farm-iot"
	}
	// Suffix avoids session takeover when two gateways share a config.
	clientID = fmt.Sprintf("%s-%s", clientID, uuid.NewString()[:8])

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.conn = paho.NewClient(opts)
	return c
}

// Connect opens the broker session. A failure here is transient; the
// supervisor retries with backoff.
func (c *Client) Connect(ctx context.Context) error {
	return c.wait(ctx, c.conn.Connect(), "Connect", "connect to broker")
}

// Connected reports whether the session is currently up.
func (c *Client) Connected() bool {
	return c.conn.IsConnected()
}

// Subscribe registers a handler for a topic filter. Each topic belongs to
// exactly one subscriber; the registration survives reconnects.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" || handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Client", "Subscribe", "register subscription")
	}

	ph := func(_ paho.Client, m paho.Message) {
		handler(Message{
			Topic:   m.Topic(),
			Payload: append([]byte(nil), m.Payload()...),
			At:      time.Now(),
		})
	}

	c.mu.Lock()
	if _, ok := c.subs[topic]; ok {
		c.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: topic %q", errors.ErrDuplicate, topic),
			"Client", "Subscribe", "register subscription")
	}
	c.subs[topic] = ph
	c.mu.Unlock()

	return c.wait(ctx, c.conn.Subscribe(topic, defaultQoS, ph),
		"Subscribe", "subscribe "+topic)
}

// Unsubscribe drops a topic registration.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	return c.wait(ctx, c.conn.Unsubscribe(topic), "Unsubscribe", "unsubscribe "+topic)
}

// Publish sends one message at the default QoS, not retained.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	return c.wait(ctx, c.conn.Publish(topic, defaultQoS, false, payload),
		"Publish", "publish "+topic)
}

// Disconnect closes the session after letting in-flight work quiesce.
func (c *Client) Disconnect() {
	c.conn.Disconnect(disconnectQuiesce)
	c.metrics.RecordGatewayConnected(gatewayLabel, false)
	c.logger.Info("mqtt session closed")
}

// wait blocks on a paho token until it resolves or the context ends.
func (c *Client) wait(ctx context.Context, token paho.Token, method, action string) error {
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errors.WrapTransient(
				fmt.Errorf("%w: %w", errors.ErrGatewayConnection, err),
				"Client", method, action)
		}
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Client", method, action)
	}
}

// onConnect runs on every (re)connect and replays the subscription set.
func (c *Client) onConnect(conn paho.Client) {
	c.metrics.RecordGatewayConnected(gatewayLabel, true)
	c.logger.Info("mqtt session connected")

	c.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.Unlock()

	for topic, h := range subs {
		token := conn.Subscribe(topic, defaultQoS, h)
		if !token.WaitTimeout(resubWait) || token.Error() != nil {
			c.logger.Warn("resubscribe failed", "topic", topic, "error", token.Error())
		}
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.metrics.RecordGatewayConnected(gatewayLabel, false)
	c.logger.Warn("mqtt session lost", "error", err)
}
