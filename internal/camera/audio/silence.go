package audio

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/camcore/internal/errors"
)

// silenceChunk is the pacing interval of the synthetic track
const silenceChunk = 20 * time.Millisecond

// SilenceSource produces a silent track in real time. It stands in for a
// microphone on hosts without a capture device.
type SilenceSource struct {
	format Format

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSilenceSource creates a silent source with the given format
func NewSilenceSource(format Format) *SilenceSource {
	return &SilenceSource{format: format}
}

// Name implements Source
func (s *SilenceSource) Name() string { return SourceSilence }

// Format implements Source
func (s *SilenceSource) Format() Format { return s.format }

// Start implements Source
func (s *SilenceSource) Start(ctx context.Context, sink func(pcm []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.Newf("silence source already running").
			Component(ComponentAudio).
			Category(errors.CategoryState).
			Build()
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	chunk := make([]byte, s.format.BytesPerSecond()*int(silenceChunk)/int(time.Second))
	go s.run(runCtx, chunk, sink, s.done)
	return nil
}

func (s *SilenceSource) run(ctx context.Context, chunk []byte, sink func([]byte), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(silenceChunk)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sink(chunk)
		}
	}
}

// Stop implements Source. Stopping a source that is not running is a no-op.
func (s *SilenceSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
