package camera

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/camcore/internal/observability/metrics"
)

// MetricsCollector forwards camera events to Prometheus. The zero value and
// the collector returned before InitMetrics are no-ops.
type MetricsCollector struct {
	metrics *metrics.CameraMetrics
}

var (
	globalMetrics     atomic.Pointer[MetricsCollector]
	globalMetricsOnce sync.Once
)

// InitMetrics installs the global metrics collector. Only the first call has an effect.
func InitMetrics(m *metrics.CameraMetrics) {
	globalMetricsOnce.Do(func() {
		globalMetrics.Store(&MetricsCollector{metrics: m})
		if m != nil {
			GetLogger().Debug("camera metrics collector initialized")
		}
	})
}

// GetMetrics returns the global metrics collector
func GetMetrics() *MetricsCollector {
	if mc := globalMetrics.Load(); mc != nil {
		return mc
	}
	return &MetricsCollector{}
}

func (mc *MetricsCollector) enabled() bool {
	return mc != nil && mc.metrics != nil
}

// RecordSessionBind records the outcome of a bind attempt
func (mc *MetricsCollector) RecordSessionBind(status string) {
	if mc.enabled() {
		mc.metrics.RecordSessionBind(status)
	}
}

// SetSessionBound reports whether a binding is active
func (mc *MetricsCollector) SetSessionBound(bound bool) {
	if mc.enabled() {
		mc.metrics.SetSessionBound(bound)
	}
}

// RecordProviderError counts a provider acquisition failure
func (mc *MetricsCollector) RecordProviderError() {
	if mc.enabled() {
		mc.metrics.RecordProviderError()
	}
}

// RecordFrameDelivered counts a frame handed to a stream
func (mc *MetricsCollector) RecordFrameDelivered(stream string) {
	if mc.enabled() {
		mc.metrics.RecordFrameDelivered(stream)
	}
}

// RecordFrameDropped counts a frame released without being consumed
func (mc *MetricsCollector) RecordFrameDropped(stream, reason string) {
	if mc.enabled() {
		mc.metrics.RecordFrameDropped(stream, reason)
	}
}

// SetFramesOutstanding reports unreleased frames for a stream
func (mc *MetricsCollector) SetFramesOutstanding(stream string, n int) {
	if mc.enabled() {
		mc.metrics.SetFramesOutstanding(stream, n)
	}
}

// RecordFrameAnalyzed records one analyzer run
func (mc *MetricsCollector) RecordFrameAnalyzed(d time.Duration) {
	if mc.enabled() {
		mc.metrics.RecordFrameAnalyzed(d.Seconds())
	}
}

// RecordAnalyzerFault counts a contained analyzer fault
func (mc *MetricsCollector) RecordAnalyzerFault() {
	if mc.enabled() {
		mc.metrics.RecordAnalyzerFault()
	}
}

// SetLuminosity reports the latest luminosity sample
func (mc *MetricsCollector) SetLuminosity(mean float64) {
	if mc.enabled() {
		mc.metrics.SetLuminosity(mean)
	}
}

// RecordCapture records a still capture outcome
func (mc *MetricsCollector) RecordCapture(status string, d time.Duration) {
	if mc.enabled() {
		mc.metrics.RecordCapture(status, d.Seconds())
	}
}

// RecordRecording records a recording lifecycle transition
func (mc *MetricsCollector) RecordRecording(status string) {
	if mc.enabled() {
		mc.metrics.RecordRecording(status)
	}
}

// SetRecordingState reports the recording state machine position
func (mc *MetricsCollector) SetRecordingState(state RecordingState) {
	if mc.enabled() {
		mc.metrics.SetRecordingState(int(state))
	}
}

// RecordPermissionCheck counts a capability check
func (mc *MetricsCollector) RecordPermissionCheck(c Capability, granted bool) {
	if mc.enabled() {
		mc.metrics.RecordPermissionCheck(string(c), granted)
	}
}
