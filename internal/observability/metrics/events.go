package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EventMetrics contains Prometheus metrics for the observer event bus and
// the media index that consumes it.
type EventMetrics struct {
	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	consumed  *prometheus.CounterVec
	mediaOps  *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewEventMetrics creates and registers event bus metrics
func NewEventMetrics(registry *prometheus.Registry) (*EventMetrics, error) {
	m := &EventMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register event metrics: %w", err)
	}
	return m, nil
}

func (m *EventMetrics) initMetrics() {
	m.published = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_events_published_total",
			Help: "Total number of observer events accepted by the bus",
		},
		[]string{"type"},
	)

	m.dropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_events_dropped_total",
			Help: "Total number of observer events dropped because the bus was full or stopped",
		},
		[]string{"type"},
	)

	m.consumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_events_consumed_total",
			Help: "Total number of event deliveries to consumers by outcome",
		},
		[]string{"consumer", "status"},
	)

	m.mediaOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_media_index_operations_total",
			Help: "Total number of media index operations by outcome",
		},
		[]string{"operation", "status"},
	)

	m.collectors = []prometheus.Collector{m.published, m.dropped, m.consumed, m.mediaOps}
}

// Describe implements the Collector interface
func (m *EventMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *EventMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordPublished counts an accepted event
func (m *EventMetrics) RecordPublished(eventType string) {
	m.published.WithLabelValues(eventType).Inc()
}

// RecordDropped counts a dropped event
func (m *EventMetrics) RecordDropped(eventType string) {
	m.dropped.WithLabelValues(eventType).Inc()
}

// RecordConsumed counts a delivery to a consumer
func (m *EventMetrics) RecordConsumed(consumer, status string) {
	m.consumed.WithLabelValues(consumer, status).Inc()
}

// RecordMediaOperation counts a media index operation
func (m *EventMetrics) RecordMediaOperation(operation, status string) {
	m.mediaOps.WithLabelValues(operation, status).Inc()
}
