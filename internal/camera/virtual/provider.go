// Package virtual implements a simulated camera device. It generates
// luminance frames at a fixed rate, writes stills as JPEG and records an
// MJPEG stream with a WAV audio track, so the capture core can run without
// camera hardware.
package virtual

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/camera/audio"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
)

// ComponentVirtual identifies errors raised by the simulated device
const ComponentVirtual = "camera.virtual"

// Defaults applied by NewSource to zero config fields
const (
	DefaultWidth          = 640
	DefaultHeight         = 480
	DefaultFPS            = 30
	DefaultMaxImages      = 4
	DefaultJPEGQuality    = 85
	DefaultStatusInterval = time.Second
	DefaultAudioBuffer    = 48000 * 2 * 4
)

// AudioFactory creates the microphone source of a recording
type AudioFactory func() (audio.Source, error)

// Config parameterizes the simulated device
type Config struct {
	Width     int
	Height    int
	FPS       int
	MaxImages int // analysis frames that may be open before delivery stalls

	// AcquireDelay simulates provider start-up latency
	AcquireDelay time.Duration
	// AcquireErr makes every acquisition fail with this error
	AcquireErr error

	// Qualities lists the recorder tiers the device supports; nil supports all
	Qualities []camera.Quality
	// Audio creates the recording audio source; nil records silence
	Audio           AudioFactory
	AudioBufferSize int

	JPEGQuality    int
	StatusInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	if c.MaxImages <= 0 {
		c.MaxImages = DefaultMaxImages
	}
	if c.Qualities == nil {
		c.Qualities = []camera.Quality{camera.QualitySD, camera.QualityHD, camera.QualityFHD}
	}
	if c.Audio == nil {
		c.Audio = func() (audio.Source, error) {
			return audio.NewSilenceSource(audio.Format{SampleRate: 48000, Channels: 1}), nil
		}
	}
	if c.AudioBufferSize <= 0 {
		c.AudioBufferSize = DefaultAudioBuffer
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = DefaultJPEGQuality
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = DefaultStatusInterval
	}
	return c
}

// GetLogger returns the virtual device logger
func GetLogger() logger.Logger {
	return logger.Global().Module("camera").Module("virtual")
}

// Stats counts frames across every binding of a provider
type Stats struct {
	Generated   uint64
	Delivered   uint64 // analysis frames handed to the consumer
	Released    uint64 // analysis frames closed by the consumer
	Stalled     uint64 // analysis frames skipped while MaxImages were open
	Outstanding int64
	Pictures    uint64
	Recordings  uint64
}

type counters struct {
	generated   atomic.Uint64
	delivered   atomic.Uint64
	released    atomic.Uint64
	stalled     atomic.Uint64
	outstanding atomic.Int64
	pictures    atomic.Uint64
	recordings  atomic.Uint64
}

// Source acquires the simulated provider. It implements camera.ProviderSource.
type Source struct {
	cfg      Config
	provider *Provider
	acquires atomic.Int32
}

// NewSource creates a provider source for cfg
func NewSource(cfg Config) *Source {
	cfg = cfg.withDefaults()
	return &Source{cfg: cfg, provider: &Provider{cfg: cfg, counters: &counters{}}}
}

// Acquire waits out the configured start-up delay and returns the provider
func (s *Source) Acquire(ctx context.Context) (camera.Provider, error) {
	s.acquires.Add(1)

	if s.cfg.AcquireDelay > 0 {
		timer := time.NewTimer(s.cfg.AcquireDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, errors.New(ctx.Err()).
				Component(ComponentVirtual).
				Category(errors.CategoryCancellation).
				Context("operation", "acquire").
				Build()
		}
	}

	if s.cfg.AcquireErr != nil {
		return nil, errors.New(s.cfg.AcquireErr).
			Component(ComponentVirtual).
			Category(errors.CategoryProvider).
			Context("operation", "acquire").
			Build()
	}
	return s.provider, nil
}

// Acquisitions returns how many times Acquire was called
func (s *Source) Acquisitions() int {
	return int(s.acquires.Load())
}

// Provider returns the provider handed out by Acquire
func (s *Source) Provider() *Provider {
	return s.provider
}

// Provider binds use cases to the simulated camera. It implements camera.Provider.
type Provider struct {
	cfg      Config
	counters *counters

	mu  sync.Mutex
	dev *device
}

// Bind starts frame generation for uc. Binding twice without UnbindAll fails.
func (p *Provider) Bind(sel camera.Selection, uc camera.UseCases) (camera.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dev != nil {
		return nil, errors.Newf("virtual camera already bound").
			Component(ComponentVirtual).
			Category(errors.CategoryState).
			Context("lens", sel.Lens.String()).
			Build()
	}

	dev := newDevice(p.cfg, sel, uc, p.counters)
	dev.start()
	p.dev = dev

	GetLogger().Info("virtual camera bound",
		logger.String("lens", sel.Lens.String()),
		logger.Int("width", p.cfg.Width),
		logger.Int("height", p.cfg.Height),
		logger.Int("fps", p.cfg.FPS))
	return dev, nil
}

// UnbindAll stops frame generation and finalizes an active recording with
// camera.ErrSourceInactive. It is a no-op when nothing is bound.
func (p *Provider) UnbindAll() error {
	p.mu.Lock()
	dev := p.dev
	p.dev = nil
	p.mu.Unlock()

	if dev == nil {
		return nil
	}
	dev.shutdown()
	GetLogger().Info("virtual camera unbound", logger.String("lens", dev.sel.Lens.String()))
	return nil
}

// Bound reports whether use cases are currently bound
func (p *Provider) Bound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev != nil
}

// Stats returns the frame counters
func (p *Provider) Stats() Stats {
	c := p.counters
	return Stats{
		Generated:   c.generated.Load(),
		Delivered:   c.delivered.Load(),
		Released:    c.released.Load(),
		Stalled:     c.stalled.Load(),
		Outstanding: c.outstanding.Load(),
		Pictures:    c.pictures.Load(),
		Recordings:  c.recordings.Load(),
	}
}
