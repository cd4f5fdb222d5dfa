package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTT operations used as the "operation" label
const (
	MQTTOpResolve        = "resolve"
	MQTTOpConnect        = "connect"
	MQTTOpPublish        = "publish"
	MQTTOpConnectionLost = "connection_lost"
)

// MQTTMetrics tracks the broker connection and event publishing. All
// methods are safe on a nil receiver so the client works without metrics.
type MQTTMetrics struct {
	connected   prometheus.Gauge
	lastConnect prometheus.Gauge
	published   prometheus.Counter
	errors      *prometheus.CounterVec
	payload     prometheus.Histogram
	latency     prometheus.Histogram

	collectors []prometheus.Collector
}

// NewMQTTMetrics creates and registers MQTT metrics
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camcore_mqtt_connected",
			Help: "1 while connected to the MQTT broker, 0 otherwise",
		}),
		lastConnect: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "camcore_mqtt_last_connect_timestamp_seconds",
			Help: "Unix time of the last successful broker connection",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camcore_mqtt_events_published_total",
			Help: "Total number of events delivered to the broker",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camcore_mqtt_errors_total",
			Help: "Total number of MQTT failures by operation",
		}, []string{"operation"}),
		payload: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "camcore_mqtt_payload_bytes",
			Help:    "Size of published event payloads",
			Buckets: prometheus.ExponentialBuckets(64, 2, 8),
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "camcore_mqtt_publish_duration_seconds",
			Help:    "Time from publish to broker acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	m.collectors = []prometheus.Collector{m.connected, m.lastConnect, m.published, m.errors, m.payload, m.latency}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// SetConnected records a connection state change
func (m *MQTTMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		m.lastConnect.SetToCurrentTime()
		return
	}
	m.connected.Set(0)
}

// RecordError counts a failure of operation
func (m *MQTTMetrics) RecordError(operation string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(operation).Inc()
}

// RecordPublish records an acknowledged publish of size bytes
func (m *MQTTMetrics) RecordPublish(size int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.payload.Observe(float64(size))
	m.latency.Observe(elapsed.Seconds())
}

// Describe implements prometheus.Collector
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
