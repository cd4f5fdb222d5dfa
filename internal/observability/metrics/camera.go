// Package metrics provides custom Prometheus metrics for the camcore components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CameraMetrics contains Prometheus metrics for the capture session, the
// analysis stream and the capture controllers.
type CameraMetrics struct {
	registry *prometheus.Registry

	// Session metrics
	sessionBinds   *prometheus.CounterVec
	sessionBound   prometheus.Gauge
	providerErrors prometheus.Counter

	// Frame metrics
	framesDelivered   *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	framesOutstanding *prometheus.GaugeVec

	// Analysis metrics
	framesAnalyzed   prometheus.Counter
	analysisDuration prometheus.Histogram
	analyzerFaults   prometheus.Counter
	luminosity       prometheus.Gauge

	// Still capture metrics
	captures        *prometheus.CounterVec
	captureDuration prometheus.Histogram

	// Recording metrics
	recordings     *prometheus.CounterVec
	recordingState prometheus.Gauge

	// Permission metrics
	permissionChecks *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewCameraMetrics creates and registers camera metrics
func NewCameraMetrics(registry *prometheus.Registry) (*CameraMetrics, error) {
	m := &CameraMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register camera metrics: %w", err)
	}
	return m, nil
}

func (m *CameraMetrics) initMetrics() {
	m.sessionBinds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_session_binds_total",
			Help: "Total number of capture session bind attempts by outcome",
		},
		[]string{"status"},
	)

	m.sessionBound = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camcore_session_bound",
		Help: "1 while a capture session is bound, 0 otherwise",
	})

	m.providerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camcore_provider_errors_total",
		Help: "Total number of camera provider acquisition failures",
	})

	m.framesDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_frames_delivered_total",
			Help: "Total number of frames handed to a stream",
		},
		[]string{"stream"},
	)

	m.framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_frames_dropped_total",
			Help: "Total number of frames released without being consumed",
		},
		[]string{"stream", "reason"},
	)

	m.framesOutstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camcore_frames_outstanding",
			Help: "Frames handed out by the device and not yet released",
		},
		[]string{"stream"},
	)

	m.framesAnalyzed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camcore_frames_analyzed_total",
		Help: "Total number of frames processed by the analyzer",
	})

	m.analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "camcore_analysis_duration_seconds",
		Help:    "Time spent in the analyzer per frame",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
	})

	m.analyzerFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "camcore_analyzer_faults_total",
		Help: "Total number of analyzer faults contained by the analysis worker",
	})

	m.luminosity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camcore_luminosity_mean",
		Help: "Most recent mean luminosity of the analysis stream (0-255)",
	})

	m.captures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_still_captures_total",
			Help: "Total number of still capture requests by outcome",
		},
		[]string{"status"},
	)

	m.captureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "camcore_still_capture_duration_seconds",
		Help:    "Time from capture request to terminal result",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	m.recordings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_recordings_total",
			Help: "Recording lifecycle transitions by outcome",
		},
		[]string{"status"},
	)

	m.recordingState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camcore_recording_state",
		Help: "Recording state machine position (0 idle, 1 starting, 2 recording, 3 stopping)",
	})

	m.permissionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camcore_permission_checks_total",
			Help: "Total number of capability checks by result",
		},
		[]string{"capability", "granted"},
	)

	m.collectors = []prometheus.Collector{
		m.sessionBinds, m.sessionBound, m.providerErrors,
		m.framesDelivered, m.framesDropped, m.framesOutstanding,
		m.framesAnalyzed, m.analysisDuration, m.analyzerFaults, m.luminosity,
		m.captures, m.captureDuration,
		m.recordings, m.recordingState,
		m.permissionChecks,
	}
}

// Describe implements the Collector interface
func (m *CameraMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *CameraMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordSessionBind records the outcome of a bind attempt
func (m *CameraMetrics) RecordSessionBind(status string) {
	m.sessionBinds.WithLabelValues(status).Inc()
}

// SetSessionBound updates the bound gauge
func (m *CameraMetrics) SetSessionBound(bound bool) {
	if bound {
		m.sessionBound.Set(1)
		return
	}
	m.sessionBound.Set(0)
}

// RecordProviderError counts a provider acquisition failure
func (m *CameraMetrics) RecordProviderError() {
	m.providerErrors.Inc()
}

// RecordFrameDelivered counts a frame handed to a stream
func (m *CameraMetrics) RecordFrameDelivered(stream string) {
	m.framesDelivered.WithLabelValues(stream).Inc()
}

// RecordFrameDropped counts a frame released without being consumed
func (m *CameraMetrics) RecordFrameDropped(stream, reason string) {
	m.framesDropped.WithLabelValues(stream, reason).Inc()
}

// SetFramesOutstanding reports unreleased frames for a stream
func (m *CameraMetrics) SetFramesOutstanding(stream string, n int) {
	m.framesOutstanding.WithLabelValues(stream).Set(float64(n))
}

// RecordFrameAnalyzed records one analyzer invocation and its duration
func (m *CameraMetrics) RecordFrameAnalyzed(seconds float64) {
	m.framesAnalyzed.Inc()
	m.analysisDuration.Observe(seconds)
}

// RecordAnalyzerFault counts a contained analyzer fault
func (m *CameraMetrics) RecordAnalyzerFault() {
	m.analyzerFaults.Inc()
}

// SetLuminosity reports the latest luminosity sample
func (m *CameraMetrics) SetLuminosity(mean float64) {
	m.luminosity.Set(mean)
}

// RecordCapture records a still capture outcome and latency
func (m *CameraMetrics) RecordCapture(status string, seconds float64) {
	m.captures.WithLabelValues(status).Inc()
	if seconds > 0 {
		m.captureDuration.Observe(seconds)
	}
}

// RecordRecording records a recording lifecycle transition
func (m *CameraMetrics) RecordRecording(status string) {
	m.recordings.WithLabelValues(status).Inc()
}

// SetRecordingState reports the recording state machine position
func (m *CameraMetrics) SetRecordingState(state int) {
	m.recordingState.Set(float64(state))
}

// RecordPermissionCheck counts a capability check
func (m *CameraMetrics) RecordPermissionCheck(capability string, granted bool) {
	m.permissionChecks.WithLabelValues(capability, fmt.Sprint(granted)).Inc()
}
