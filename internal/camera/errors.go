package camera

import (
	"github.com/tphakala/camcore/internal/errors"
)

// ComponentCamera identifies errors raised by the capture core
const ComponentCamera = "camera"

// Sentinel errors. Callers match them with errors.Is; the values returned by
// the session and controllers wrap them with category and context.
var (
	// ErrPermissionDenied is returned when a gated operation lacks a capability
	ErrPermissionDenied = errors.NewStd("required permission not granted")

	// ErrRecordingInProgress is returned when a recording is requested while
	// another one has not yet finalized
	ErrRecordingInProgress = errors.NewStd("recording already in progress")

	// ErrSuperseded is returned when a session start is overtaken by a newer
	// start or an explicit unbind
	ErrSuperseded = errors.NewStd("session start superseded")

	// ErrExecutorClosed is returned when work cannot be scheduled on the main executor
	ErrExecutorClosed = errors.NewStd("main executor closed")

	// ErrEmptyPlane is returned when a frame plane carries no samples
	ErrEmptyPlane = errors.NewStd("frame plane is empty")

	// ErrSourceInactive is reported in a finalize event when the recording
	// source went away before the recording was stopped
	ErrSourceInactive = errors.NewStd("recording source became inactive")
)

func permissionError(operation string, missing []Capability) error {
	return errors.New(ErrPermissionDenied).
		Component(ComponentCamera).
		Category(errors.CategoryPermission).
		Context("operation", operation).
		Context("missing", capabilityNames(missing)).
		Build()
}
