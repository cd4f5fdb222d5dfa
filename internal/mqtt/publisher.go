package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/events"
)

// Publisher forwards bus events to MQTT as JSON, one topic per event type
type Publisher struct {
	client  Client
	prefix  string
	timeout time.Duration
}

// NewPublisher creates a bus consumer publishing through client under prefix
func NewPublisher(client Client, prefix string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultConfig().PublishTimeout
	}
	return &Publisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), timeout: timeout}
}

// Name implements events.Consumer
func (p *Publisher) Name() string { return "mqtt" }

// Topic returns the topic of an event type
func (p *Publisher) Topic(t events.Type) string {
	if p.prefix == "" {
		return string(t)
	}
	return p.prefix + "/" + string(t)
}

// Consume implements events.Consumer
func (p *Publisher) Consume(ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.New(err).
			Component(ComponentMQTT).
			Category(errors.CategoryMQTTPublish).
			Context("operation", "encode_event").
			Build()
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.client.Publish(ctx, p.Topic(ev.Type), payload)
}
