package camera

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/camcore/internal/errors"
)

// LensFacing selects the physical camera
type LensFacing int

const (
	LensBack LensFacing = iota
	LensFront
)

// String returns the config name of the lens
func (l LensFacing) String() string {
	switch l {
	case LensBack:
		return "back"
	case LensFront:
		return "front"
	default:
		return fmt.Sprintf("lens(%d)", int(l))
	}
}

// ParseLensFacing converts a config value into a LensFacing
func ParseLensFacing(s string) (LensFacing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "back":
		return LensBack, nil
	case "front":
		return LensFront, nil
	default:
		return LensBack, errors.Newf("unknown lens facing %q", s).
			Component(ComponentCamera).
			Category(errors.CategoryValidation).
			Build()
	}
}

// Selection identifies which camera a session binds to. It does not change
// while the session is bound.
type Selection struct {
	Lens LensFacing
}

// Plane is one buffer of a frame
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// FrameFormat describes the layout of a frame's planes
type FrameFormat struct {
	Width       int
	Height      int
	PixelFormat string // e.g. "yuv420", "gray8"
}

// Frame is a short-lived handle to device memory. The consumer that receives
// a Frame owns it and must call Close exactly once, promptly. The device
// stops delivering frames while too many remain open.
type Frame interface {
	Planes() []Plane
	Format() FrameFormat
	Timestamp() time.Time
	Sequence() uint64
	Close()
}

// Analyzer processes frames from the analysis stream. Analyze owns the frame
// until it returns and must release it on every path. The context is
// cancelled when the owning session is unbound.
type Analyzer interface {
	Analyze(ctx context.Context, frame Frame)
}

// AnalyzerFunc adapts a function to the Analyzer interface
type AnalyzerFunc func(ctx context.Context, frame Frame)

// Analyze calls f(ctx, frame)
func (f AnalyzerFunc) Analyze(ctx context.Context, frame Frame) {
	f(ctx, frame)
}

// PreviewSink renders frames. The frame is borrowed for the duration of
// Render; the device releases it afterwards.
type PreviewSink interface {
	Render(frame Frame)
}

// FrameSink takes ownership of delivered frames
type FrameSink interface {
	Deliver(frame Frame)
}

// ProviderSource acquires a camera provider. Acquire may block and may fail;
// the session calls it off the main executor and never retries.
type ProviderSource interface {
	Acquire(ctx context.Context) (Provider, error)
}

// UseCases is the set of consumers bound together against one camera
type UseCases struct {
	Preview  PreviewSink
	Analysis FrameSink
	Quality  QualitySelector
}

// Provider binds use cases to a physical camera
type Provider interface {
	// Bind attaches all use cases to the selected camera as one unit
	Bind(sel Selection, uc UseCases) (Device, error)
	// UnbindAll detaches every use case. Calling it with nothing bound is a no-op.
	UnbindAll() error
}

// Device is the bound camera as seen by the capture endpoints
type Device interface {
	// TakePicture writes one still image to dest and returns its final
	// location. Implementations serialize concurrent requests.
	TakePicture(ctx context.Context, dest Destination) (string, error)
	// StartRecording begins a recording and reports its lifecycle through
	// listener. The listener may be called from any goroutine.
	StartRecording(req RecordingRequest, listener func(RecordEvent)) (ActiveRecording, error)
}

// MediaKind distinguishes photo and video destinations
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// Destination is a writable output location handed out by a DestinationFactory
type Destination struct {
	ID          string
	Kind        MediaKind
	Path        string
	DisplayName string
	ContentType string
}

// DestinationFactory creates output destinations. Naming and storage are
// its concern; the core only reports the final location back.
type DestinationFactory interface {
	NewPhoto(ctx context.Context) (Destination, error)
	NewVideo(ctx context.Context) (Destination, error)
}

// RecordingRequest describes a recording to start
type RecordingRequest struct {
	ID          string
	Destination Destination
	Audio       bool
}

// ActiveRecording is the device-side handle of an in-flight recording
type ActiveRecording interface {
	ID() string
	// Stop asks the device to finalize; completion arrives as a finalize event
	Stop()
}

// RecordEventKind enumerates recording lifecycle events
type RecordEventKind int

const (
	RecordEventStart RecordEventKind = iota
	RecordEventStatus
	RecordEventFinalize
)

// String returns a readable event name
func (k RecordEventKind) String() string {
	switch k {
	case RecordEventStart:
		return "start"
	case RecordEventStatus:
		return "status"
	case RecordEventFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// RecordEvent is reported by the device for a recording
type RecordEvent struct {
	Kind        RecordEventKind
	RecordingID string
	Location    string
	Err         error
	Duration    time.Duration
	Bytes       int64
}

// CaptureResult is the terminal outcome of a still capture
type CaptureResult struct {
	RequestID string
	MediaID   string
	Location  string
	Duration  time.Duration
}

// RecordingResult is surfaced once per recording when it finalizes
type RecordingResult struct {
	RecordingID string
	MediaID     string
	Location    string
	Duration    time.Duration
	Bytes       int64
	Err         error
}

// Succeeded reports whether the recording finalized without error
func (r RecordingResult) Succeeded() bool {
	return r.Err == nil
}

// Observer receives fire-and-forget notifications from the core. Methods
// other than Luminosity are called on the main executor; Luminosity is
// called from the analysis goroutine. Implementations must not block.
type Observer interface {
	SessionBound(sel Selection, bindingID string)
	SessionFailed(err error)
	CaptureSucceeded(result CaptureResult)
	CaptureFailed(result CaptureResult, err error)
	RecordingStarted(recordingID, mediaID string)
	RecordingFinalized(result RecordingResult)
	Luminosity(sample LuminositySample)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) SessionBound(Selection, string) {}
func (NopObserver) SessionFailed(error) {}
func (NopObserver) CaptureSucceeded(CaptureResult) {}
func (NopObserver) CaptureFailed(CaptureResult, error) {}
func (NopObserver) RecordingStarted(string, string) {}
func (NopObserver) RecordingFinalized(RecordingResult) {}
func (NopObserver) Luminosity(LuminositySample) {}
