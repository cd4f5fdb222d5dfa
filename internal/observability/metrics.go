package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// Metrics owns the registry and the per-component collectors. Each App
// gets its own registry so tests can build several side by side.
type Metrics struct {
	registry *prometheus.Registry
	Camera   *metrics.CameraMetrics
	Events   *metrics.EventMetrics
	MQTT     *metrics.MQTTMetrics
}

// NewMetrics creates a registry with the Go and process collectors and
// registers the camcore metrics on it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: registry}
	var err error
	if m.Camera, err = metrics.NewCameraMetrics(registry); err != nil {
		return nil, registerError("camera", err)
	}
	if m.Events, err = metrics.NewEventMetrics(registry); err != nil {
		return nil, registerError("events", err)
	}
	if m.MQTT, err = metrics.NewMQTTMetrics(registry); err != nil {
		return nil, registerError("mqtt", err)
	}
	return m, nil
}

func registerError(group string, err error) error {
	return errors.New(err).
		Component(ComponentEndpoint).
		Category(errors.CategorySystem).
		Context("metrics", group).
		Build()
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
