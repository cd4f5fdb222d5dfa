package virtual

import (
	"bufio"
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/camera/audio"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/observability/metrics"
)

// recorderQueue is how many frames may wait for the encoder
const recorderQueue = 8

// countingWriter tracks bytes written to the video file
type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// recording writes frames as concatenated JPEGs (MJPEG) next to a WAV track
type recording struct {
	id       string
	dest     camera.Destination
	listener func(camera.RecordEvent)
	dev      *device
	quality  camera.Quality
	width    int
	height   int

	frames   chan []byte
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu     sync.Mutex
	reason error

	file   *os.File
	video  *countingWriter
	frameN int

	track  *audio.WAVWriter
	source audio.Source
	buffer *audio.Buffer
	pcm    []byte

	started  time.Time
	writeErr error
}

func newRecording(d *device, req camera.RecordingRequest, quality camera.Quality, listener func(camera.RecordEvent)) (*recording, error) {
	dest := req.Destination
	if dest.Path == "" {
		return nil, errors.Newf("video destination has no path").
			Component(ComponentVirtual).
			Category(errors.CategoryValidation).
			Context("media_id", dest.ID).
			Build()
	}

	qw, qh := quality.Size()
	r := &recording{
		id:       req.ID,
		dest:     dest,
		listener: listener,
		dev:      d,
		quality:  quality,
		width:    min(qw, d.cfg.Width),
		height:   min(qh, d.cfg.Height),
		frames:   make(chan []byte, recorderQueue),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(dest.Path), 0o755); err != nil {
		return nil, errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryFileIO).
			Context("operation", "create_directory").
			Context("path", dest.Path).
			Build()
	}

	file, err := os.Create(dest.Path) //nolint:gosec // path comes from the media store
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryFileIO).
			Context("operation", "create_file").
			Context("path", dest.Path).
			Build()
	}
	r.file = file
	r.video = &countingWriter{w: bufio.NewWriter(file)}

	if req.Audio {
		if err := r.openAudio(); err != nil {
			_ = file.Close()
			_ = os.Remove(dest.Path)
			return nil, err
		}
	}

	return r, nil
}

// audioTrackPath returns the sidecar WAV path of a video file
func audioTrackPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + ".wav"
}

func (r *recording) openAudio() error {
	source, err := r.dev.cfg.Audio()
	if err != nil {
		return errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryAudioSource).
			Context("operation", "create_audio_source").
			Build()
	}

	track, err := audio.NewWAVWriter(audioTrackPath(r.dest.Path), source.Format())
	if err != nil {
		return err
	}

	buffer := audio.NewBuffer(r.dev.cfg.AudioBufferSize, source.Format().FrameSize())
	if err := source.Start(context.Background(), buffer.Write); err != nil {
		_ = track.Close()
		_ = os.Remove(track.Path())
		return errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_audio_source").
			Context("source", source.Name()).
			Build()
	}

	r.source, r.track, r.buffer = source, track, buffer
	return nil
}

// ID implements camera.ActiveRecording
func (r *recording) ID() string { return r.id }

// Stop implements camera.ActiveRecording. The finalize event follows asynchronously.
func (r *recording) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// abort stops the recording and reports reason in the finalize event
func (r *recording) abort(reason error) {
	r.mu.Lock()
	if r.reason == nil {
		r.reason = reason
	}
	r.mu.Unlock()
	r.Stop()
}

// offer queues a frame for encoding, dropping it when the encoder lags
func (r *recording) offer(data []byte) {
	select {
	case r.frames <- data:
		camera.GetMetrics().RecordFrameDelivered(metrics.StreamRecorder)
	default:
		camera.GetMetrics().RecordFrameDropped(metrics.StreamRecorder, metrics.DropStalled)
	}
}

func (r *recording) run() {
	defer close(r.done)

	r.started = time.Now()
	GetLogger().Info("virtual recording started",
		logger.String("recording_id", r.id),
		logger.String("path", r.dest.Path),
		logger.String("quality", r.quality.String()),
		logger.Int("width", r.width),
		logger.Int("height", r.height))
	r.listener(camera.RecordEvent{Kind: camera.RecordEventStart, RecordingID: r.id})

	ticker := time.NewTicker(r.dev.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-r.frames:
			r.writeFrame(data)
		case <-ticker.C:
			r.flushAudio()
			r.listener(camera.RecordEvent{
				Kind:        camera.RecordEventStatus,
				RecordingID: r.id,
				Duration:    time.Since(r.started),
				Bytes:       r.bytes(),
			})
		case <-r.stopCh:
			r.drainFrames()
			r.finish()
			return
		}
	}
}

func (r *recording) drainFrames() {
	for {
		select {
		case data := <-r.frames:
			r.writeFrame(data)
		default:
			return
		}
	}
}

func (r *recording) writeFrame(data []byte) {
	if r.writeErr != nil {
		return
	}
	img := scaleGray(data, r.dev.cfg.Width, r.dev.cfg.Height, r.width, r.height)
	if err := jpeg.Encode(r.video, img, &jpeg.Options{Quality: r.dev.cfg.JPEGQuality}); err != nil {
		r.writeErr = err
		return
	}
	r.frameN++
}

func (r *recording) flushAudio() {
	if r.track == nil {
		return
	}
	r.pcm = r.buffer.Drain(r.pcm[:0])
	if err := r.track.WritePCM(r.pcm); err != nil && r.writeErr == nil {
		r.writeErr = err
	}
}

func (r *recording) bytes() int64 {
	n := r.video.n
	if r.track != nil {
		n += r.track.Bytes()
	}
	return n
}

// finish closes every output, detaches from the device and reports the
// single finalize event
func (r *recording) finish() {
	var errs []error

	if r.source != nil {
		if err := r.source.Stop(); err != nil {
			errs = append(errs, err)
		}
		r.flushAudio()
		if err := r.track.Close(); err != nil {
			errs = append(errs, err)
		}
		if dropped := r.buffer.Dropped(); dropped > 0 {
			GetLogger().Warn("audio data dropped during recording",
				logger.String("recording_id", r.id),
				logger.Int64("bytes", dropped))
		}
	}

	if r.writeErr != nil {
		errs = append(errs, r.writeErr)
	}
	if err := r.video.w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, err)
	}

	r.mu.Lock()
	if r.reason != nil {
		errs = append([]error{r.reason}, errs...)
	}
	r.mu.Unlock()

	duration := time.Since(r.started)
	r.dev.recordingDone(r)

	ev := camera.RecordEvent{
		Kind:        camera.RecordEventFinalize,
		RecordingID: r.id,
		Location:    r.dest.Path,
		Duration:    duration,
		Bytes:       r.bytes(),
	}
	if err := errors.Join(errs...); err != nil {
		ev.Err = errors.New(err).
			Component(ComponentVirtual).
			Category(errors.CategoryRecording).
			Context("recording_id", r.id).
			Context("path", r.dest.Path).
			Build()
	}

	GetLogger().Info("virtual recording finalized",
		logger.String("recording_id", r.id),
		logger.Int("frames", r.frameN),
		logger.Int64("bytes", ev.Bytes),
		logger.Duration("duration", duration),
		logger.Bool("failed", ev.Err != nil))
	r.listener(ev)
}
