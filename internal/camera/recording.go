package camera

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// RecordingState is the position of the recording state machine
type RecordingState int32

const (
	StateIdle RecordingState = iota
	StateStarting
	StateRecording
	StateStopping
)

// String returns the state name
func (s RecordingState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// videoEndpoint is the part of CaptureSession the recording controller needs
type videoEndpoint interface {
	VideoCapture() *VideoCapture
}

// RecordingStatus is a snapshot of the controller
type RecordingStatus struct {
	State       RecordingState
	RecordingID string
	MediaID     string
	Duration    time.Duration
	Bytes       int64
	Finalized   uint64
}

// recordingSlot tracks the one recording that has not finalized yet
type recordingSlot struct {
	id       string
	dest     Destination
	duration time.Duration
	bytes    int64
}

// RecordingController drives the video+audio recording state machine.
// Toggle, StartRecording, Stop and Status must run on the main executor;
// device events are marshalled onto it, so the handle needs no locking.
// State may be read from any goroutine.
type RecordingController struct {
	session  videoEndpoint
	gate     *PermissionGate
	dests    DestinationFactory
	exec     Executor
	observer Observer

	handle    ActiveRecording
	current   *recordingSlot
	finalized uint64

	state atomic.Int32
}

// NewRecordingController creates an idle controller. A nil observer is replaced by NopObserver.
func NewRecordingController(session videoEndpoint, gate *PermissionGate, dests DestinationFactory, exec Executor, observer Observer) *RecordingController {
	if observer == nil {
		observer = NopObserver{}
	}
	return &RecordingController{
		session:  session,
		gate:     gate,
		dests:    dests,
		exec:     exec,
		observer: observer,
	}
}

// State returns the current state
func (c *RecordingController) State() RecordingState {
	return RecordingState(c.state.Load())
}

func (c *RecordingController) setState(s RecordingState) {
	c.state.Store(int32(s))
	GetMetrics().SetRecordingState(s)
}

// Toggle stops the active recording if there is one, otherwise starts one
func (c *RecordingController) Toggle(ctx context.Context) error {
	if c.handle != nil {
		c.Stop()
		return nil
	}
	return c.StartRecording(ctx)
}

// Stop asks the device to finalize the active recording and clears the
// handle. The state returns to idle when the finalize event arrives.
func (c *RecordingController) Stop() {
	if c.handle == nil {
		return
	}
	handle := c.handle
	c.handle = nil
	c.setState(StateStopping)
	GetLogger().Info("stopping recording", logger.String("recording_id", handle.ID()))
	handle.Stop()
}

// StartRecording begins a recording with audio. It does nothing without a
// bound recorder. With a recording still unfinalized it returns
// ErrRecordingInProgress. Without camera and microphone grants it requests
// them and returns ErrPermissionDenied without touching the device.
func (c *RecordingController) StartRecording(ctx context.Context) error {
	video := c.session.VideoCapture()
	if video == nil {
		return nil
	}

	if state := c.State(); state != StateIdle {
		GetMetrics().RecordRecording(metrics.RecordingBusy)
		return errors.New(ErrRecordingInProgress).
			Component(ComponentCamera).
			Category(errors.CategoryState).
			Context("state", state.String()).
			Build()
	}

	if missing := c.gate.Missing(CapabilityCamera, CapabilityMicrophone); len(missing) > 0 {
		c.gate.Request(missing...)
		GetMetrics().RecordRecording(metrics.RecordingDenied)
		return permissionError("recording_start", missing)
	}

	dest, err := c.dests.NewVideo(ctx)
	if err != nil {
		return errors.New(err).
			Component(ComponentCamera).
			Category(errors.CategoryRecording).
			Context("operation", "create_destination").
			Build()
	}

	slot := &recordingSlot{id: uuid.NewString(), dest: dest}
	c.current = slot
	c.setState(StateStarting)

	handle, err := video.StartRecording(RecordingRequest{
		ID:          slot.id,
		Destination: dest,
		Audio:       true,
	}, c.listener)
	if err != nil {
		c.current = nil
		c.setState(StateIdle)
		wrapped := errors.New(err).
			Component(ComponentCamera).
			Category(errors.CategoryRecording).
			Context("recording_id", slot.id).
			Build()
		GetMetrics().RecordRecording(metrics.RecordingFailed)
		GetLogger().Error("recording start failed", logger.Error(err))
		c.observer.RecordingFinalized(RecordingResult{RecordingID: slot.id, MediaID: dest.ID, Err: wrapped})
		return wrapped
	}

	c.handle = handle
	GetLogger().Info("recording requested",
		logger.String("recording_id", slot.id),
		logger.String("display_name", dest.DisplayName))
	return nil
}

// Status returns a snapshot of the controller
func (c *RecordingController) Status() RecordingStatus {
	st := RecordingStatus{State: c.State(), Finalized: c.finalized}
	if c.current != nil {
		st.RecordingID = c.current.id
		st.MediaID = c.current.dest.ID
		st.Duration = c.current.duration
		st.Bytes = c.current.bytes
	}
	return st
}

// listener is handed to the device and may run on any goroutine
func (c *RecordingController) listener(ev RecordEvent) {
	if !c.exec.Execute(func() { c.handleEvent(ev) }) {
		GetLogger().Warn("recording event dropped after executor shutdown",
			logger.String("recording_id", ev.RecordingID),
			logger.String("event", ev.Kind.String()))
	}
}

func (c *RecordingController) handleEvent(ev RecordEvent) {
	slot := c.current
	if slot == nil || slot.id != ev.RecordingID {
		GetLogger().Debug("ignoring event for unknown recording",
			logger.String("recording_id", ev.RecordingID),
			logger.String("event", ev.Kind.String()))
		return
	}

	switch ev.Kind {
	case RecordEventStart:
		if c.State() == StateStarting {
			c.setState(StateRecording)
		}
		GetMetrics().RecordRecording(metrics.RecordingStarted)
		GetLogger().Info("recording started", logger.String("recording_id", slot.id))
		c.observer.RecordingStarted(slot.id, slot.dest.ID)

	case RecordEventStatus:
		slot.duration = ev.Duration
		slot.bytes = ev.Bytes

	case RecordEventFinalize:
		c.finalize(slot, ev)
	}
}

// finalize consumes the single finalize event of a recording. The handle is
// cleared whether or not the recording succeeded.
func (c *RecordingController) finalize(slot *recordingSlot, ev RecordEvent) {
	c.current = nil
	if c.handle != nil && c.handle.ID() == slot.id {
		c.handle = nil
	}
	c.finalized++
	c.setState(StateIdle)

	result := RecordingResult{
		RecordingID: slot.id,
		MediaID:     slot.dest.ID,
		Location:    ev.Location,
		Duration:    ev.Duration,
		Bytes:       ev.Bytes,
	}

	if ev.Err != nil {
		result.Err = errors.New(ev.Err).
			Component(ComponentCamera).
			Category(errors.CategoryRecording).
			Context("recording_id", slot.id).
			Build()
		GetMetrics().RecordRecording(metrics.RecordingFailed)
		GetLogger().Error("recording finalized with error",
			logger.String("recording_id", slot.id),
			logger.String("location", ev.Location),
			logger.Error(ev.Err))
	} else {
		GetMetrics().RecordRecording(metrics.RecordingFinalized)
		GetLogger().Info("video saved",
			logger.String("recording_id", slot.id),
			logger.String("location", ev.Location),
			logger.Duration("duration", ev.Duration),
			logger.Int64("bytes", ev.Bytes))
	}

	c.observer.RecordingFinalized(result)
}
