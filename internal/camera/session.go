package camera

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// SessionConfig wires a CaptureSession to its collaborators
type SessionConfig struct {
	Provider ProviderSource
	Gate     *PermissionGate
	Executor Executor

	// Preview receives every frame while bound. Optional.
	Preview PreviewSink
	// Analyzer is attached to the analysis stream of each new binding. Optional.
	Analyzer Analyzer
	Quality  QualitySelector
	Observer Observer
}

// Binding is the set of endpoints bound together against one camera
type Binding struct {
	ID        string
	Selection Selection
	Preview   PreviewSink
	Still     *ImageCapture
	Video     *VideoCapture
	Analysis  *ImageAnalysis
}

// ImageCapture is the still-capture endpoint of a binding
type ImageCapture struct {
	device Device
}

// TakePicture writes one still image to dest and returns its final location
func (c *ImageCapture) TakePicture(ctx context.Context, dest Destination) (string, error) {
	return c.device.TakePicture(ctx, dest)
}

// VideoCapture is the recorder endpoint of a binding
type VideoCapture struct {
	device Device
}

// StartRecording begins a recording on the bound device
func (v *VideoCapture) StartRecording(req RecordingRequest, listener func(RecordEvent)) (ActiveRecording, error) {
	return v.device.StartRecording(req, listener)
}

// CaptureSession owns the binding of all camera consumers to one device.
// Bind and unbind happen on the main executor; the accessors may be read
// from any goroutine and return nil until a bind succeeds.
type CaptureSession struct {
	cfg SessionConfig

	// provider is only touched on the main executor
	provider Provider

	binding    atomic.Pointer[Binding]
	generation atomic.Uint64
}

// NewCaptureSession validates the configuration and creates an unbound session
func NewCaptureSession(cfg SessionConfig) (*CaptureSession, error) {
	if cfg.Provider == nil || cfg.Gate == nil || cfg.Executor == nil {
		return nil, errors.Newf("capture session requires provider, permission gate and executor").
			Component(ComponentCamera).
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Quality.Preferred == 0 {
		cfg.Quality = DefaultQualitySelector()
	}
	return &CaptureSession{cfg: cfg}, nil
}

// Start acquires the camera provider and binds every consumer to sel as one
// unit. Acquisition runs on its own goroutine and is never retried; binding
// runs on the main executor. A later Start or UnbindAll supersedes a start
// that has not bound yet.
func (s *CaptureSession) Start(ctx context.Context, sel Selection) *Future[*Binding] {
	f := NewFuture[*Binding]()
	gen := s.generation.Add(1)

	if missing := s.cfg.Gate.Missing(CapabilityCamera); len(missing) > 0 {
		s.cfg.Gate.Request(missing...)
		err := permissionError("session_start", missing)
		GetMetrics().RecordSessionBind(metrics.StatusDenied)
		s.fail(f, err)
		return f
	}

	go func() {
		provider, err := s.cfg.Provider.Acquire(ctx)
		if !s.cfg.Executor.Execute(func() { s.completeStart(f, gen, sel, provider, err) }) {
			f.Resolve(nil, ErrExecutorClosed)
		}
	}()

	return f
}

func (s *CaptureSession) fail(f *Future[*Binding], err error) {
	if !s.cfg.Executor.Execute(func() {
		s.cfg.Observer.SessionFailed(err)
		f.Resolve(nil, err)
	}) {
		f.Resolve(nil, err)
	}
}

func (s *CaptureSession) completeStart(f *Future[*Binding], gen uint64, sel Selection, provider Provider, err error) {
	log := GetLogger()

	if gen != s.generation.Load() {
		GetMetrics().RecordSessionBind(metrics.StatusSuperseded)
		log.Debug("discarding superseded session start", logger.Uint64("generation", gen), logger.Bool("failed", err != nil))
		f.Resolve(nil, errors.New(ErrSuperseded).
			Component(ComponentCamera).
			Category(errors.CategoryCancellation).
			Build())
		return
	}

	if err != nil {
		GetMetrics().RecordProviderError()
		GetMetrics().RecordSessionBind(metrics.StatusError)
		wrapped := errors.New(err).
			Component(ComponentCamera).
			Category(errors.CategoryProvider).
			Context("lens", sel.Lens.String()).
			Build()
		log.Error("camera provider acquisition failed", logger.Error(err), logger.String("lens", sel.Lens.String()))
		s.cfg.Observer.SessionFailed(wrapped)
		f.Resolve(nil, wrapped)
		return
	}

	// Release any previous binding before touching the device again
	if unbindErr := s.unbind(); unbindErr != nil {
		log.Warn("releasing previous binding failed", logger.Error(unbindErr))
	}
	s.provider = provider

	binding, err := s.bind(provider, sel)
	if err != nil {
		GetMetrics().RecordSessionBind(metrics.StatusError)
		wrapped := errors.New(err).
			Component(ComponentCamera).
			Category(errors.CategoryProvider).
			Context("operation", "bind").
			Context("lens", sel.Lens.String()).
			Build()
		log.Error("binding use cases failed", logger.Error(err))
		s.cfg.Observer.SessionFailed(wrapped)
		f.Resolve(nil, wrapped)
		return
	}

	s.binding.Store(binding)
	GetMetrics().RecordSessionBind(metrics.StatusSuccess)
	GetMetrics().SetSessionBound(true)
	log.Info("capture session bound",
		logger.String("binding_id", binding.ID),
		logger.String("lens", sel.Lens.String()))
	s.cfg.Observer.SessionBound(sel, binding.ID)
	f.Resolve(binding, nil)
}

func (s *CaptureSession) bind(provider Provider, sel Selection) (*Binding, error) {
	analysis := newImageAnalysis(s.cfg.Analyzer)

	device, err := provider.Bind(sel, UseCases{
		Preview:  s.cfg.Preview,
		Analysis: analysis,
		Quality:  s.cfg.Quality,
	})
	if err != nil {
		analysis.stop()
		return nil, err
	}

	return &Binding{
		ID:        uuid.NewString(),
		Selection: sel,
		Preview:   s.cfg.Preview,
		Still:     &ImageCapture{device: device},
		Video:     &VideoCapture{device: device},
		Analysis:  analysis,
	}, nil
}

// UnbindAll releases the current binding and supersedes any pending Start.
// It must run on the main executor and is safe to call repeatedly.
func (s *CaptureSession) UnbindAll() error {
	s.generation.Add(1)
	return s.unbind()
}

func (s *CaptureSession) unbind() error {
	binding := s.binding.Swap(nil)

	var err error
	if s.provider != nil {
		err = s.provider.UnbindAll()
	}

	if binding != nil {
		binding.Analysis.stop()
		GetMetrics().SetSessionBound(false)
		stats := binding.Analysis.Stats()
		GetLogger().Info("capture session unbound",
			logger.String("binding_id", binding.ID),
			logger.Uint64("frames_delivered", stats.Delivered),
			logger.Uint64("frames_analyzed", stats.Analyzed),
			logger.Uint64("frames_dropped", stats.Dropped))
	}

	if err != nil {
		return errors.New(err).
			Component(ComponentCamera).
			Category(errors.CategoryProvider).
			Context("operation", "unbind").
			Build()
	}
	return nil
}

// Binding returns the current binding or nil
func (s *CaptureSession) Binding() *Binding {
	return s.binding.Load()
}

// StillCapture returns the bound still-capture endpoint or nil
func (s *CaptureSession) StillCapture() *ImageCapture {
	if b := s.binding.Load(); b != nil {
		return b.Still
	}
	return nil
}

// VideoCapture returns the bound recorder endpoint or nil
func (s *CaptureSession) VideoCapture() *VideoCapture {
	if b := s.binding.Load(); b != nil {
		return b.Video
	}
	return nil
}

// Analysis returns the analyzer registration point of the binding or nil
func (s *CaptureSession) Analysis() *ImageAnalysis {
	if b := s.binding.Load(); b != nil {
		return b.Analysis
	}
	return nil
}
