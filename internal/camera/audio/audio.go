// Package audio provides the microphone sources that feed the audio track of
// a recording, and the buffer and encoder that carry their PCM to disk.
package audio

import (
	"context"
	"time"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
)

// ComponentAudio identifies errors raised by audio sources
const ComponentAudio = "camera.audio"

// Source kinds accepted by NewSource
const (
	SourceMalgo   = "malgo"
	SourceSilence = "silence"
)

// BitDepth is the sample width of every source; PCM is signed 16-bit little endian
const BitDepth = 16

// Format describes interleaved PCM produced by a source
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM data rate of the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * BitDepth / 8
}

// FrameSize returns the bytes of one sample across all channels
func (f Format) FrameSize() int {
	return max(f.Channels, 1) * BitDepth / 8
}

// DurationOf returns the playback duration of n bytes of PCM
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Source captures PCM and hands each chunk to a sink. The sink is called
// from the capture goroutine and must not retain the slice.
type Source interface {
	Name() string
	Format() Format
	Start(ctx context.Context, sink func(pcm []byte)) error
	Stop() error
}

// Config selects and parameterizes a source
type Config struct {
	Source     string
	Device     string
	SampleRate int
	Channels   int
}

// NewSource creates the source named by cfg.Source
func NewSource(cfg Config) (Source, error) {
	format := Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, errors.Newf("invalid audio format %d Hz x %d channels", cfg.SampleRate, cfg.Channels).
			Component(ComponentAudio).
			Category(errors.CategoryValidation).
			Build()
	}

	switch cfg.Source {
	case SourceMalgo:
		return NewMalgoSource(cfg.Device, format), nil
	case SourceSilence, "":
		return NewSilenceSource(format), nil
	default:
		return nil, errors.Newf("unknown audio source %q", cfg.Source).
			Component(ComponentAudio).
			Category(errors.CategoryValidation).
			Build()
	}
}

// GetLogger returns the audio module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("camera").Module("audio")
}
