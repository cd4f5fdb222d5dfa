// Package events provides an asynchronous event bus that fans capture-core
// notifications out to consumers such as the log, the media index and MQTT,
// so slow consumers never block the main executor.
package events

import (
	"time"

	"github.com/tphakala/camcore/internal/logger"
)

// Type names an event
type Type string

const (
	TypeSessionBound        Type = "session_bound"
	TypeSessionFailed       Type = "session_failed"
	TypeCaptureSucceeded    Type = "capture_succeeded"
	TypeCaptureFailed       Type = "capture_failed"
	TypeRecordingStarted    Type = "recording_started"
	TypeRecordingFinalized  Type = "recording_finalized"
	TypeLuminosity          Type = "luminosity"
	TypePermissionRequested Type = "permission_requested"
)

// Outcome reports whether events of this type settle a capture or a
// recording. The media index leaves entries pending until one arrives.
func (t Type) Outcome() bool {
	switch t {
	case TypeCaptureSucceeded, TypeCaptureFailed, TypeRecordingFinalized:
		return true
	default:
		return false
	}
}

// Event is a flattened observer notification. Fields that do not apply to
// the event type are left empty.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Lens        string `json:"lens,omitempty"`
	BindingID   string `json:"binding_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	RecordingID string `json:"recording_id,omitempty"`
	MediaID     string `json:"media_id,omitempty"`
	Location    string `json:"location,omitempty"`
	Error       string `json:"error,omitempty"`

	DurationMs   int64    `json:"duration_ms,omitempty"`
	Bytes        int64    `json:"bytes,omitempty"`
	Luminosity   float64  `json:"luminosity,omitempty"`
	Sequence     uint64   `json:"sequence,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Failed reports whether the event carries an error
func (e Event) Failed() bool {
	return e.Error != ""
}

// Consumer processes events delivered by the bus
type Consumer interface {
	// Name returns the consumer name for identification
	Name() string

	// Consume processes a single event. Errors are counted and logged by the bus.
	Consume(event Event) error
}

// Stats contains runtime statistics of a bus
type Stats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}

// GetLogger returns the events module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("events")
}
