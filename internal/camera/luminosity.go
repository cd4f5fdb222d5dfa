package camera

import (
	"context"
	"time"

	"github.com/tphakala/camcore/internal/logger"
)

// LuminositySample is the mean intensity of one analyzed frame
type LuminositySample struct {
	Mean      float64
	Sequence  uint64
	Timestamp time.Time
}

// MeanIntensity returns the mean of the bytes read as unsigned samples
func MeanIntensity(data []byte) (float64, error) {
	if len(data) == 0 {
		return 0, ErrEmptyPlane
	}
	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	return float64(sum) / float64(len(data)), nil
}

// LuminosityAnalyzer computes the mean intensity of a frame's first plane
// and passes it to an emit function.
type LuminosityAnalyzer struct {
	emit func(LuminositySample)
}

// NewLuminosityAnalyzer creates an analyzer that reports samples to emit
func NewLuminosityAnalyzer(emit func(LuminositySample)) *LuminosityAnalyzer {
	return &LuminosityAnalyzer{emit: emit}
}

// Analyze implements Analyzer
func (l *LuminosityAnalyzer) Analyze(ctx context.Context, frame Frame) {
	defer frame.Close()

	planes := frame.Planes()
	if len(planes) == 0 {
		GetLogger().Debug("frame without planes", logger.Uint64("sequence", frame.Sequence()))
		return
	}

	mean, err := MeanIntensity(planes[0].Data)
	if err != nil {
		GetLogger().Debug("skipping frame", logger.Uint64("sequence", frame.Sequence()), logger.Error(err))
		return
	}

	// The session was torn down while this frame was in flight
	if ctx.Err() != nil {
		return
	}

	GetMetrics().SetLuminosity(mean)
	if l.emit != nil {
		l.emit(LuminositySample{
			Mean:      mean,
			Sequence:  frame.Sequence(),
			Timestamp: frame.Timestamp(),
		})
	}
}
