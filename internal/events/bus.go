package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// ComponentEvents identifies errors raised by the bus
const ComponentEvents = "events"

// Config holds event bus configuration
type Config struct {
	BufferSize int
	// Workers greater than one trade delivery order for throughput
	Workers int
	// OutcomeWait is how long an outcome event may wait for buffer space
	// before it is dropped. Other events are dropped at once.
	OutcomeWait time.Duration
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1024,
		Workers:     1,
		OutcomeWait: 250 * time.Millisecond,
	}
}

// Bus provides asynchronous event processing with non-blocking publishes
type Bus struct {
	eventChan   chan Event
	workers     int
	outcomeWait time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	mu      sync.Mutex

	consumers []Consumer

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	errs      atomic.Uint64

	metrics *metrics.EventMetrics
	logger  logger.Logger
}

// NewBus creates a stopped bus. A nil metrics disables metric recording.
func NewBus(cfg Config, m *metrics.EventMetrics) *Bus {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.OutcomeWait < 0 {
		cfg.OutcomeWait = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		eventChan:   make(chan Event, cfg.BufferSize),
		workers:     cfg.Workers,
		outcomeWait: cfg.OutcomeWait,
		ctx:         ctx,
		cancel:      cancel,
		metrics:     m,
		logger:      GetLogger(),
	}
}

// RegisterConsumer adds a consumer. Names must be unique.
func (b *Bus) RegisterConsumer(consumer Consumer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %s already registered", consumer.Name()).
				Component(ComponentEvents).
				Category(errors.CategoryValidation).
				Build()
		}
	}

	b.consumers = append(b.consumers, consumer)
	b.logger.Info("registered event consumer", logger.String("consumer", consumer.Name()))
	return nil
}

// Start launches the workers. Calling it again has no effect.
func (b *Bus) Start() {
	if b.running.Swap(true) {
		return
	}

	b.logger.Info("starting event bus workers", logger.Int("count", b.workers))
	for i := range b.workers {
		b.wg.Go(func() { b.worker(i) })
	}
}

// TryPublish queues an event. Outcome events wait up to OutcomeWait for
// buffer space; everything else is dropped at once when the buffer is full.
// It returns false when the bus is stopped or the event was dropped.
func (b *Bus) TryPublish(event Event) bool {
	if b == nil || !b.running.Load() {
		return false
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventChan <- event:
		b.accepted(event)
		return true
	default:
	}

	if event.Type.Outcome() && b.outcomeWait > 0 {
		timer := time.NewTimer(b.outcomeWait)
		defer timer.Stop()
		select {
		case b.eventChan <- event:
			b.accepted(event)
			return true
		case <-timer.C:
		}
	}

	b.dropped.Add(1)
	if b.metrics != nil {
		b.metrics.RecordDropped(string(event.Type))
	}
	if event.Type.Outcome() {
		b.logger.Warn("outcome event dropped due to full buffer",
			logger.String("type", string(event.Type)),
			logger.String("media_id", event.MediaID))
	} else {
		b.logger.Debug("event dropped due to full buffer", logger.String("type", string(event.Type)))
	}
	return false
}

func (b *Bus) accepted(event Event) {
	b.received.Add(1)
	if b.metrics != nil {
		b.metrics.RecordPublished(string(event.Type))
	}
}

func (b *Bus) worker(id int) {
	log := b.logger.With(logger.Int("worker_id", id))
	log.Debug("worker started")

	for {
		select {
		case <-b.ctx.Done():
			b.drain(log)
			log.Debug("worker stopped")
			return
		case event := <-b.eventChan:
			b.process(event, log)
		}
	}
}

// drain processes what is still queued at shutdown
func (b *Bus) drain(log logger.Logger) {
	for {
		select {
		case event := <-b.eventChan:
			b.process(event, log)
		default:
			return
		}
	}
}

// process sends the event to every consumer, containing consumer panics
func (b *Bus) process(event Event, log logger.Logger) {
	b.mu.Lock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.errs.Add(1)
					b.recordConsumed(consumer, metrics.StatusError)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.String("panic", fmt.Sprint(r)),
						logger.String("type", string(event.Type)))
				}
			}()

			if err := consumer.Consume(event); err != nil {
				b.errs.Add(1)
				b.recordConsumed(consumer, metrics.StatusError)
				log.Warn("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.String("type", string(event.Type)),
					logger.Error(err))
				return
			}
			b.processed.Add(1)
			b.recordConsumed(consumer, metrics.StatusSuccess)
		}()
	}
}

func (b *Bus) recordConsumed(consumer Consumer, status string) {
	if b.metrics != nil {
		b.metrics.RecordConsumed(consumer.Name(), status)
	}
}

// Shutdown stops accepting events and waits for the workers to drain the
// queue, up to timeout.
func (b *Bus) Shutdown(timeout time.Duration) error {
	if !b.running.Swap(false) {
		return nil
	}

	b.logger.Info("shutting down event bus", logger.Duration("timeout", timeout))
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		b.logger.Info("event bus shutdown complete")
		return nil
	case <-timer.C:
		b.logger.Warn("event bus shutdown timeout exceeded")
		return errors.Newf("event bus shutdown timeout exceeded").
			Component(ComponentEvents).
			Category(errors.CategorySystem).
			Timing("shutdown", timeout).
			Build()
	}
}

// Stats returns current bus statistics
func (b *Bus) Stats() Stats {
	return Stats{
		EventsReceived:  b.received.Load(),
		EventsProcessed: b.processed.Load(),
		EventsDropped:   b.dropped.Load(),
		ConsumerErrors:  b.errs.Load(),
	}
}
