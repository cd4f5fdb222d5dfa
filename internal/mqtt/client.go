package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// client implements Client over paho
type client struct {
	mu      sync.Mutex
	config  Config
	conn    paho.Client
	metrics *metrics.MQTTMetrics
}

// NewClient creates a new MQTT client. A nil metrics disables metric recording.
func NewClient(cfg Config, m *metrics.MQTTMetrics) (Client, error) {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = def.DisconnectTimeout
	}
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "camcore-" + uuid.NewString()[:8]
	}

	if _, err := brokerHost(cfg.Broker); err != nil {
		return nil, err
	}

	return &client{config: cfg, metrics: m}, nil
}

func brokerHost(broker string) (string, error) {
	u, err := url.Parse(broker)
	if err == nil && u.Hostname() == "" {
		err = errors.NewStd("broker URL has no host")
	}
	if err != nil {
		return "", errors.New(err).
			Component(ComponentMQTT).
			Category(errors.CategoryConfiguration).
			Context("broker", logger.RedactSensitiveData(broker)).
			Build()
	}
	return u.Hostname(), nil
}

// Connect resolves the broker host and connects. paho reconnects on its own
// after a successful connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	host, err := brokerHost(c.config.Broker)
	if err != nil {
		return err
	}

	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			c.metrics.RecordError(metrics.MQTTOpResolve)
			return errors.New(err).
				Component(ComponentMQTT).
				Category(errors.CategoryNetwork).
				Context("operation", "resolve_broker").
				Context("host", host).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.conn = paho.NewClient(opts)

	token := c.conn.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		c.metrics.RecordError(metrics.MQTTOpConnect)
		return errors.Newf("connection timeout").
			Component(ComponentMQTT).
			Category(errors.CategoryNetwork).
			Timing("connect", c.config.ConnectTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.RecordError(metrics.MQTTOpConnect)
		return errors.New(err).
			Component(ComponentMQTT).
			Category(errors.CategoryNetwork).
			Context("operation", "connect").
			Build()
	}

	c.metrics.SetConnected(true)
	return nil
}

// Publish sends payload to topic
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component(ComponentMQTT).
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	timeout := c.config.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	start := time.Now()
	token := c.conn.Publish(topic, c.config.QoS, c.config.Retain, payload)
	if !token.WaitTimeout(timeout) {
		c.metrics.RecordError(metrics.MQTTOpPublish)
		return errors.Newf("publish timeout").
			Component(ComponentMQTT).
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Timing("publish", timeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.RecordError(metrics.MQTTOpPublish)
		return errors.New(err).
			Component(ComponentMQTT).
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.metrics.RecordPublish(len(payload), time.Since(start))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		c.conn.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.SetConnected(false)
	}
}

func (c *client) onConnect(paho.Client) {
	GetLogger().Info("connected to MQTT broker",
		logger.String("broker", logger.RedactSensitiveData(c.config.Broker)))
	c.metrics.SetConnected(true)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	GetLogger().Warn("connection to MQTT broker lost",
		logger.String("broker", logger.RedactSensitiveData(c.config.Broker)),
		logger.Error(err))
	c.metrics.SetConnected(false)
	c.metrics.RecordError(metrics.MQTTOpConnectionLost)
}
