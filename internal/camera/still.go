package camera

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// stillEndpoint is the part of CaptureSession the still controller needs
type stillEndpoint interface {
	StillCapture() *ImageCapture
}

// StillCaptureController issues one-shot photo requests against the session
type StillCaptureController struct {
	session  stillEndpoint
	dests    DestinationFactory
	exec     Executor
	observer Observer
}

// NewStillCaptureController creates a controller. A nil observer is replaced by NopObserver.
func NewStillCaptureController(session stillEndpoint, dests DestinationFactory, exec Executor, observer Observer) *StillCaptureController {
	if observer == nil {
		observer = NopObserver{}
	}
	return &StillCaptureController{session: session, dests: dests, exec: exec, observer: observer}
}

// Capture requests one photo. Without a bound still endpoint it does nothing
// and returns false. Otherwise the returned future resolves exactly once, on
// the main executor, with the final location or the capture fault.
func (c *StillCaptureController) Capture(ctx context.Context) (*Future[CaptureResult], bool) {
	still := c.session.StillCapture()
	if still == nil {
		GetMetrics().RecordCapture(metrics.StatusSkipped, 0)
		return nil, false
	}

	f := NewFuture[CaptureResult]()
	result := CaptureResult{RequestID: uuid.NewString()}

	go func() {
		start := time.Now()
		location, mediaID, err := c.take(ctx, still)
		result.Location = location
		result.MediaID = mediaID
		result.Duration = time.Since(start)
		if err != nil {
			err = errors.New(err).
				Component(ComponentCamera).
				Category(errors.CategoryCapture).
				Context("request_id", result.RequestID).
				Timing("take_picture", result.Duration).
				Build()
		}
		if !c.exec.Execute(func() { c.complete(f, result, err) }) {
			f.Resolve(result, err)
		}
	}()

	return f, true
}

func (c *StillCaptureController) take(ctx context.Context, still *ImageCapture) (location, mediaID string, err error) {
	dest, err := c.dests.NewPhoto(ctx)
	if err != nil {
		return "", "", err
	}
	location, err = still.TakePicture(ctx, dest)
	return location, dest.ID, err
}

func (c *StillCaptureController) complete(f *Future[CaptureResult], result CaptureResult, err error) {
	log := GetLogger()
	if err != nil {
		GetMetrics().RecordCapture(metrics.StatusError, result.Duration)
		log.Error("photo capture failed",
			logger.String("request_id", result.RequestID),
			logger.Error(err))
		c.observer.CaptureFailed(result, err)
		f.Resolve(result, err)
		return
	}

	GetMetrics().RecordCapture(metrics.StatusSuccess, result.Duration)
	log.Info("photo saved",
		logger.String("request_id", result.RequestID),
		logger.String("location", result.Location),
		logger.Duration("duration", result.Duration))
	c.observer.CaptureSucceeded(result)
	f.Resolve(result, nil)
}
