package camera

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testFrame counts how often it is released
type testFrame struct {
	seq    uint64
	data   []byte
	closes atomic.Int32
}

func newTestFrame(seq uint64, data ...byte) *testFrame {
	return &testFrame{seq: seq, data: data}
}

func (f *testFrame) Planes() []Plane {
	return []Plane{{Data: f.data, RowStride: len(f.data), PixelStride: 1}}
}
func (f *testFrame) Format() FrameFormat { return FrameFormat{Width: len(f.data), Height: 1, PixelFormat: "gray8"} }
func (f *testFrame) Timestamp() time.Time { return time.Unix(0, int64(f.seq)) }
func (f *testFrame) Sequence() uint64 { return f.seq }
func (f *testFrame) Close() { f.closes.Add(1) }

// grantSource is a mutable permission source
type grantSource struct {
	mu     sync.Mutex
	grants map[Capability]bool
}

func newGrantSource(caps ...Capability) *grantSource {
	g := &grantSource{grants: make(map[Capability]bool)}
	for _, c := range caps {
		g.grants[c] = true
	}
	return g
}

func (g *grantSource) Granted(c Capability) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grants[c]
}

func (g *grantSource) set(c Capability, granted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[c] = granted
}

// requestLog records permission requests
type requestLog struct {
	mu       sync.Mutex
	requests [][]Capability
}

func (r *requestLog) RequestPermissions(caps []Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, slices.Clone(caps))
}

func (r *requestLog) all() [][]Capability {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.requests)
}

// fakeRecording is the device handle of a fake recording
type fakeRecording struct {
	id       string
	dest     Destination
	listener func(RecordEvent)
	device   *fakeDevice
	stopped  atomic.Bool
}

func (r *fakeRecording) ID() string { return r.id }

func (r *fakeRecording) Stop() {
	if r.stopped.CompareAndSwap(false, true) {
		r.device.finalize(r, nil)
	}
}

// fakeDevice records calls and finalizes recordings on Stop
type fakeDevice struct {
	mu            sync.Mutex
	pictureErr    error
	recordErr     error
	recordStarts  int
	pictures      int
	active        *fakeRecording
	holdFinalize  bool
	finalizeCalls int
}

func (d *fakeDevice) TakePicture(_ context.Context, dest Destination) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pictures++
	if d.pictureErr != nil {
		return "", d.pictureErr
	}
	return "/media/photos/" + dest.DisplayName + ".jpg", nil
}

func (d *fakeDevice) StartRecording(req RecordingRequest, listener func(RecordEvent)) (ActiveRecording, error) {
	d.mu.Lock()
	d.recordStarts++
	if d.recordErr != nil {
		d.mu.Unlock()
		return nil, d.recordErr
	}
	rec := &fakeRecording{id: req.ID, dest: req.Destination, listener: listener, device: d}
	d.active = rec
	d.mu.Unlock()

	go listener(RecordEvent{Kind: RecordEventStart, RecordingID: req.ID})
	return rec, nil
}

func (d *fakeDevice) finalize(rec *fakeRecording, err error) {
	d.mu.Lock()
	d.finalizeCalls++
	hold := d.holdFinalize
	d.mu.Unlock()
	if hold {
		return
	}
	rec.listener(RecordEvent{
		Kind:        RecordEventFinalize,
		RecordingID: rec.id,
		Location:    "/media/videos/" + rec.dest.DisplayName + ".mjpeg",
		Err:         err,
		Duration:    time.Second,
		Bytes:       1024,
	})
}

func (d *fakeDevice) startCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recordStarts
}

// fakeProvider binds the fake device and feeds frames on demand
type fakeProvider struct {
	mu          sync.Mutex
	device      *fakeDevice
	bindErr     error
	bound       bool
	binds       int
	unbinds     int
	doubleBinds int
	analysis    FrameSink
}

func (p *fakeProvider) Bind(_ Selection, uc UseCases) (Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bindErr != nil {
		return nil, p.bindErr
	}
	if p.bound {
		p.doubleBinds++
	}
	p.bound = true
	p.binds++
	p.analysis = uc.Analysis
	return p.device, nil
}

func (p *fakeProvider) UnbindAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unbinds++
	p.bound = false
	p.analysis = nil
	return nil
}

func (p *fakeProvider) sink() FrameSink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analysis
}

// providerSource hands out a provider, optionally after a gate channel
type providerSource struct {
	provider Provider
	err      error
	gate     chan struct{}
	acquires atomic.Int32
}

func (s *providerSource) Acquire(ctx context.Context) (Provider, error) {
	s.acquires.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.provider, nil
}

// sequentialDestinations names destinations with a counter
type sequentialDestinations struct {
	n   atomic.Int32
	err error
}

func (d *sequentialDestinations) next(kind MediaKind, contentType string) (Destination, error) {
	if d.err != nil {
		return Destination{}, d.err
	}
	n := d.n.Add(1)
	return Destination{
		ID:          fmt.Sprintf("%s-%d", kind, n),
		Kind:        kind,
		DisplayName: fmt.Sprintf("2026-01-01-00-00-%02d", n),
		ContentType: contentType,
	}, nil
}

func (d *sequentialDestinations) NewPhoto(context.Context) (Destination, error) {
	return d.next(MediaPhoto, "image/jpeg")
}

func (d *sequentialDestinations) NewVideo(context.Context) (Destination, error) {
	return d.next(MediaVideo, "video/x-motion-jpeg")
}

// recordingObserver collects notifications
type recordingObserver struct {
	NopObserver
	mu        sync.Mutex
	bound     []string
	failed    []error
	captures  []CaptureResult
	capErrs   []error
	started   []string
	finalized []RecordingResult
	samples   []LuminositySample
}

func (o *recordingObserver) SessionBound(_ Selection, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bound = append(o.bound, id)
}

func (o *recordingObserver) SessionFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, err)
}

func (o *recordingObserver) CaptureSucceeded(r CaptureResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.captures = append(o.captures, r)
}

func (o *recordingObserver) CaptureFailed(_ CaptureResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.capErrs = append(o.capErrs, err)
}

func (o *recordingObserver) RecordingStarted(id, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, id)
}

func (o *recordingObserver) RecordingFinalized(r RecordingResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finalized = append(o.finalized, r)
}

func (o *recordingObserver) Luminosity(s LuminositySample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples = append(o.samples, s)
}

func (o *recordingObserver) finalizedResults() []RecordingResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.finalized)
}

// harness wires a session and both controllers against fakes
type harness struct {
	exec      *MainExecutor
	grants    *grantSource
	requests  *requestLog
	device    *fakeDevice
	provider  *fakeProvider
	source    *providerSource
	dests     *sequentialDestinations
	observer  *recordingObserver
	session   *CaptureSession
	still     *StillCaptureController
	recording *RecordingController
}

func newHarness(t *testing.T, grants ...Capability) *harness {
	t.Helper()

	h := &harness{
		exec:     NewMainExecutor(),
		grants:   newGrantSource(grants...),
		requests: &requestLog{},
		device:   &fakeDevice{},
		dests:    &sequentialDestinations{},
		observer: &recordingObserver{},
	}
	h.provider = &fakeProvider{device: h.device}
	h.source = &providerSource{provider: h.provider}

	gate := NewPermissionGate(h.grants, h.requests)
	session, err := NewCaptureSession(SessionConfig{
		Provider: h.source,
		Gate:     gate,
		Executor: h.exec,
		Observer: h.observer,
	})
	require.NoError(t, err)
	h.session = session
	h.still = NewStillCaptureController(session, h.dests, h.exec, h.observer)
	h.recording = NewRecordingController(session, gate, h.dests, h.exec, h.observer)

	t.Cleanup(func() {
		_ = h.exec.Call(context.Background(), func() { _ = h.session.UnbindAll() })
		h.exec.Close()
	})
	return h
}

// onMain runs fn on the main executor and waits for it
func (h *harness) onMain(t *testing.T, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.exec.Call(ctx, fn))
}

// bind starts the session and waits for the binding
func (h *harness) bind(t *testing.T) *Binding {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	binding, err := h.session.Start(t.Context(), Selection{Lens: LensBack}).Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, binding)
	return binding
}
