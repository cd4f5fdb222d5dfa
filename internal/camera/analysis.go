package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// AnalysisStats counts what happened to frames delivered to the analysis stream
type AnalysisStats struct {
	Delivered uint64
	Analyzed  uint64
	Dropped   uint64
	Faults    uint64
}

// ImageAnalysis feeds frames to an Analyzer on a dedicated goroutine under
// a keep-only-latest policy. A single slot sits between Deliver and the
// analyzer: a new frame replaces any frame still waiting in the slot, and
// the replaced frame is released immediately.
type ImageAnalysis struct {
	mu       sync.Mutex
	pending  Frame
	analyzer Analyzer
	closed   bool

	signal chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered atomic.Uint64
	analyzed  atomic.Uint64
	dropped   atomic.Uint64
	faults    atomic.Uint64
}

func newImageAnalysis(analyzer Analyzer) *ImageAnalysis {
	ctx, cancel := context.WithCancel(context.Background())
	a := &ImageAnalysis{
		analyzer: analyzer,
		signal:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.wg.Go(a.run)
	return a
}

// SetAnalyzer replaces the analyzer. Frames already being analyzed finish
// with the previous one.
func (a *ImageAnalysis) SetAnalyzer(analyzer Analyzer) {
	a.mu.Lock()
	a.analyzer = analyzer
	a.mu.Unlock()
}

// ClearAnalyzer detaches the analyzer; later frames are released unprocessed
func (a *ImageAnalysis) ClearAnalyzer() {
	a.SetAnalyzer(nil)
}

// Deliver hands a frame to the stream, which takes ownership of it
func (a *ImageAnalysis) Deliver(frame Frame) {
	if frame == nil {
		return
	}

	a.mu.Lock()
	if a.closed || a.analyzer == nil {
		reason := metrics.DropNoConsumer
		if a.closed {
			reason = metrics.DropClosed
		}
		a.mu.Unlock()
		a.drop(frame, reason)
		return
	}
	previous := a.pending
	a.pending = frame
	a.mu.Unlock()

	a.delivered.Add(1)
	GetMetrics().RecordFrameDelivered(metrics.StreamAnalysis)

	if previous != nil {
		a.drop(previous, metrics.DropSuperseded)
	}

	select {
	case a.signal <- struct{}{}:
	default:
	}
}

// Stats returns a snapshot of the stream counters
func (a *ImageAnalysis) Stats() AnalysisStats {
	return AnalysisStats{
		Delivered: a.delivered.Load(),
		Analyzed:  a.analyzed.Load(),
		Dropped:   a.dropped.Load(),
		Faults:    a.faults.Load(),
	}
}

// stop cancels in-flight analysis, releases the waiting frame and waits for
// the worker. Frames delivered afterwards are released unprocessed.
func (a *ImageAnalysis) stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	a.cancel()
	if pending != nil {
		a.drop(pending, metrics.DropClosed)
	}
	a.wg.Wait()
}

func (a *ImageAnalysis) drop(frame Frame, reason string) {
	frame.Close()
	a.dropped.Add(1)
	GetMetrics().RecordFrameDropped(metrics.StreamAnalysis, reason)
}

func (a *ImageAnalysis) run() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.signal:
		}

		a.mu.Lock()
		frame := a.pending
		a.pending = nil
		analyzer := a.analyzer
		a.mu.Unlock()

		if frame == nil {
			continue
		}
		if a.ctx.Err() != nil {
			a.drop(frame, metrics.DropClosed)
			return
		}
		if analyzer == nil {
			a.drop(frame, metrics.DropNoConsumer)
			continue
		}
		a.analyze(analyzer, frame)
	}
}

// analyze runs one frame through the analyzer. The frame is released when
// this returns, whatever the analyzer did with it.
func (a *ImageAnalysis) analyze(analyzer Analyzer, frame Frame) {
	owned := &ownedFrame{Frame: frame}
	start := time.Now()

	defer owned.Close()
	defer func() {
		if r := recover(); r != nil {
			a.faults.Add(1)
			GetMetrics().RecordAnalyzerFault()
			GetLogger().Warn("analyzer fault contained",
				logger.Uint64("sequence", frame.Sequence()),
				logger.String("panic", fmt.Sprint(r)))
		}
	}()

	analyzer.Analyze(a.ctx, owned)

	a.analyzed.Add(1)
	GetMetrics().RecordFrameAnalyzed(time.Since(start))
}

// ownedFrame makes Close idempotent so the stream can release a frame the
// analyzer may already have released.
type ownedFrame struct {
	Frame
	once sync.Once
}

func (f *ownedFrame) Close() {
	f.once.Do(f.Frame.Close)
}
