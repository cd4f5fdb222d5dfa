// Package mqtt publishes capture-core events to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/camcore/internal/logger"
)

// ComponentMQTT identifies errors raised by the MQTT client
const ComponentMQTT = "mqtt"

// Client is the broker connection used by Publisher. The paho-backed
// implementation comes from NewClient; tests substitute their own.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// Config describes the broker and how events are published
type Config struct {
	Broker   string // tcp://, ssl://, ws:// or wss:// URL
	ClientID string // generated when empty
	Username string
	Password string
	Topic    string // prefix; the event type is appended
	Retain   bool
	QoS      byte

	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig publishes under "camcore/" at QoS 0
func DefaultConfig() Config {
	return Config{
		Topic:             "camcore",
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// GetLogger returns the mqtt module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
