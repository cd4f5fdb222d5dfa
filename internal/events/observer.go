package events

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/camcore/internal/camera"
)

// Publisher accepts events without blocking
type Publisher interface {
	TryPublish(event Event) bool
}

// Observer turns capture-core notifications into bus events. It implements
// camera.Observer and camera.PermissionRequester. Luminosity samples are
// thinned to at most one per emit interval; the rest are discarded.
type Observer struct {
	pub     Publisher
	limiter *rate.Limiter
	now     func() time.Time
}

var (
	_ camera.Observer            = (*Observer)(nil)
	_ camera.PermissionRequester = (*Observer)(nil)
)

// NewObserver creates an observer publishing to pub. A zero emitInterval
// publishes every luminosity sample.
func NewObserver(pub Publisher, emitInterval time.Duration) *Observer {
	limit := rate.Inf
	if emitInterval > 0 {
		limit = rate.Every(emitInterval)
	}
	return &Observer{
		pub:     pub,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}
}

func (o *Observer) publish(ev Event) {
	ev.Timestamp = o.now()
	o.pub.TryPublish(ev)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (o *Observer) SessionBound(sel camera.Selection, bindingID string) {
	o.publish(Event{Type: TypeSessionBound, Lens: sel.Lens.String(), BindingID: bindingID})
}

func (o *Observer) SessionFailed(err error) {
	o.publish(Event{Type: TypeSessionFailed, Error: errorText(err)})
}

func (o *Observer) CaptureSucceeded(r camera.CaptureResult) {
	o.publish(Event{
		Type:       TypeCaptureSucceeded,
		RequestID:  r.RequestID,
		MediaID:    r.MediaID,
		Location:   r.Location,
		DurationMs: r.Duration.Milliseconds(),
	})
}

func (o *Observer) CaptureFailed(r camera.CaptureResult, err error) {
	o.publish(Event{
		Type:       TypeCaptureFailed,
		RequestID:  r.RequestID,
		MediaID:    r.MediaID,
		DurationMs: r.Duration.Milliseconds(),
		Error:      errorText(err),
	})
}

func (o *Observer) RecordingStarted(recordingID, mediaID string) {
	o.publish(Event{Type: TypeRecordingStarted, RecordingID: recordingID, MediaID: mediaID})
}

func (o *Observer) RecordingFinalized(r camera.RecordingResult) {
	o.publish(Event{
		Type:        TypeRecordingFinalized,
		RecordingID: r.RecordingID,
		MediaID:     r.MediaID,
		Location:    r.Location,
		DurationMs:  r.Duration.Milliseconds(),
		Bytes:       r.Bytes,
		Error:       errorText(r.Err),
	})
}

// Luminosity is called from the analysis goroutine
func (o *Observer) Luminosity(s camera.LuminositySample) {
	if !o.limiter.Allow() {
		return
	}
	o.publish(Event{Type: TypeLuminosity, Luminosity: s.Mean, Sequence: s.Sequence})
}

// RequestPermissions publishes the request; answering it is up to whoever
// manages the grants.
func (o *Observer) RequestPermissions(caps []camera.Capability) {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	o.publish(Event{Type: TypePermissionRequested, Capabilities: names})
}
