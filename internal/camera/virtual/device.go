package virtual

import (
	"bufio"
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// device is one binding of the simulated camera
type device struct {
	cfg      Config
	sel      camera.Selection
	uc       camera.UseCases
	counters *counters

	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool

	// open analysis frames of this binding
	outstanding atomic.Int64

	latestMu  sync.RWMutex
	latest    []byte
	latestSeq uint64

	pictureMu sync.Mutex

	recMu sync.Mutex
	rec   *recording
}

func newDevice(cfg Config, sel camera.Selection, uc camera.UseCases, c *counters) *device {
	return &device{cfg: cfg, sel: sel, uc: uc, counters: c, done: make(chan struct{})}
}

func (d *device) start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.generate(ctx)
}

// shutdown stops frame generation and any recording, then waits for both
func (d *device) shutdown() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.cancel()
	<-d.done

	d.recMu.Lock()
	rec := d.rec
	d.recMu.Unlock()
	if rec != nil {
		rec.abort(camera.ErrSourceInactive)
		<-rec.done
	}
}

func (d *device) generate(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(time.Second / time.Duration(d.cfg.FPS))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			d.emit(seq, now)
		}
	}
}

func (d *device) emit(seq uint64, now time.Time) {
	data := render(d.cfg.Width, d.cfg.Height, d.cfg.FPS, seq)
	d.counters.generated.Add(1)

	d.latestMu.Lock()
	d.latest, d.latestSeq = data, seq
	d.latestMu.Unlock()

	if d.uc.Preview != nil {
		f := d.newFrame(data, seq, now, nil)
		d.uc.Preview.Render(f)
		f.Close()
		camera.GetMetrics().RecordFrameDelivered(metrics.StreamPreview)
	}

	if d.uc.Analysis != nil {
		d.deliverAnalysis(data, seq, now)
	}

	d.recMu.Lock()
	rec := d.rec
	d.recMu.Unlock()
	if rec != nil {
		rec.offer(data)
	}
}

// deliverAnalysis hands a frame to the analysis stream unless MaxImages are
// still open, in which case the frame is skipped.
func (d *device) deliverAnalysis(data []byte, seq uint64, now time.Time) {
	if d.outstanding.Load() >= int64(d.cfg.MaxImages) {
		d.counters.stalled.Add(1)
		camera.GetMetrics().RecordFrameDropped(metrics.StreamAnalysis, metrics.DropStalled)
		return
	}

	n := d.outstanding.Add(1)
	d.counters.outstanding.Add(1)
	d.counters.delivered.Add(1)
	camera.GetMetrics().SetFramesOutstanding(metrics.StreamAnalysis, int(n))

	f := d.newFrame(data, seq, now, func() {
		n := d.outstanding.Add(-1)
		d.counters.outstanding.Add(-1)
		d.counters.released.Add(1)
		camera.GetMetrics().SetFramesOutstanding(metrics.StreamAnalysis, int(n))
	})
	d.uc.Analysis.Deliver(f)
}

func (d *device) newFrame(data []byte, seq uint64, ts time.Time, release func()) *frame {
	return &frame{
		data:    data,
		format:  camera.FrameFormat{Width: d.cfg.Width, Height: d.cfg.Height, PixelFormat: "gray8"},
		ts:      ts,
		seq:     seq,
		release: release,
	}
}

func (d *device) snapshot() ([]byte, uint64) {
	d.latestMu.RLock()
	defer d.latestMu.RUnlock()
	return d.latest, d.latestSeq
}

// TakePicture encodes the most recent frame as JPEG into dest.Path.
// Concurrent requests are serialized.
func (d *device) TakePicture(ctx context.Context, dest camera.Destination) (string, error) {
	d.pictureMu.Lock()
	defer d.pictureMu.Unlock()

	if d.closed.Load() {
		return "", errors.New(camera.ErrSourceInactive).
			Component(ComponentVirtual).
			Category(errors.CategoryCapture).
			Context("operation", "take_picture").
			Build()
	}
	if err := ctx.Err(); err != nil {
		return "", errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryCancellation).
			Context("operation", "take_picture").
			Build()
	}
	if dest.Path == "" {
		return "", errors.Newf("photo destination has no path").
			Component(ComponentVirtual).
			Category(errors.CategoryValidation).
			Context("media_id", dest.ID).
			Build()
	}

	data, seq := d.snapshot()
	if data == nil {
		data = render(d.cfg.Width, d.cfg.Height, d.cfg.FPS, 0)
	}

	if err := writeJPEG(dest.Path, data, d.cfg.Width, d.cfg.Height, d.cfg.JPEGQuality); err != nil {
		return "", err
	}

	d.counters.pictures.Add(1)
	GetLogger().Debug("still written",
		logger.String("path", dest.Path),
		logger.Uint64("frame", seq))
	return dest.Path, nil
}

func writeJPEG(path string, data []byte, width, height, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryFileIO).
			Context("operation", "create_directory").
			Context("path", path).
			Build()
	}

	f, err := os.Create(path) //nolint:gosec // path comes from the media store
	if err != nil {
		return errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryFileIO).
			Context("operation", "create_file").
			Context("path", path).
			Build()
	}

	w := bufio.NewWriter(f)
	encErr := jpeg.Encode(w, scaleGray(data, width, height, width, height), &jpeg.Options{Quality: quality})
	if encErr == nil {
		encErr = w.Flush()
	}
	if err := errors.Join(encErr, f.Close()); err != nil {
		_ = os.Remove(path)
		return errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryFileIO).
			Context("operation", "encode_jpeg").
			Context("path", path).
			Build()
	}
	return nil
}

// StartRecording opens the MJPEG and WAV outputs and starts the recorder
// goroutine. Lifecycle events are reported through listener.
func (d *device) StartRecording(req camera.RecordingRequest, listener func(camera.RecordEvent)) (camera.ActiveRecording, error) {
	d.recMu.Lock()
	defer d.recMu.Unlock()

	if d.closed.Load() {
		return nil, errors.New(camera.ErrSourceInactive).
			Component(ComponentVirtual).
			Category(errors.CategoryRecording).
			Build()
	}
	if d.rec != nil {
		return nil, errors.Newf("virtual recorder busy").
			Component(ComponentVirtual).
			Category(errors.CategoryState).
			Context("active_recording", d.rec.id).
			Build()
	}

	quality, ok := d.uc.Quality.Select(d.cfg.Qualities)
	if !ok {
		return nil, errors.Newf("no supported recording quality").
			Component(ComponentVirtual).
			Category(errors.CategoryRecording).
			Context("preferred", d.uc.Quality.Preferred.String()).
			Build()
	}

	rec, err := newRecording(d, req, quality, listener)
	if err != nil {
		return nil, err
	}
	d.rec = rec
	d.counters.recordings.Add(1)

	go rec.run()
	return rec, nil
}

// recordingDone detaches rec so a new recording can start before its
// finalize event is consumed
func (d *device) recordingDone(rec *recording) {
	d.recMu.Lock()
	defer d.recMu.Unlock()
	if d.rec == rec {
		d.rec = nil
	}
}
