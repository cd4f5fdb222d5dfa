package mediastore

import (
	"context"
	"time"

	"github.com/tphakala/camcore/internal/events"
)

// indexTimeout bounds one index update made on behalf of an event
const indexTimeout = 5 * time.Second

// Consumer keeps the index in step with capture outcomes published on the bus
type Consumer struct {
	store *Store
}

// NewConsumer creates a bus consumer updating store
func NewConsumer(store *Store) *Consumer {
	return &Consumer{store: store}
}

// Name implements events.Consumer
func (c *Consumer) Name() string { return "media_index" }

// Consume implements events.Consumer. Events without a media ID are ignored.
func (c *Consumer) Consume(ev events.Event) error {
	if ev.MediaID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	duration := time.Duration(ev.DurationMs) * time.Millisecond

	switch ev.Type {
	case events.TypeCaptureSucceeded:
		return c.store.Complete(ctx, ev.MediaID, ev.Location, 0, 0)
	case events.TypeCaptureFailed:
		return c.store.Fail(ctx, ev.MediaID, ev.Error)
	case events.TypeRecordingFinalized:
		if ev.Failed() {
			return c.store.Fail(ctx, ev.MediaID, ev.Error)
		}
		return c.store.Complete(ctx, ev.MediaID, ev.Location, ev.Bytes, duration)
	default:
		return nil
	}
}
