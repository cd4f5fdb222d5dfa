package virtual

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camcore/internal/camera"
)

type grantAll struct{}

func (grantAll) Granted(camera.Capability) bool { return true }

// dirDestinations hands out numbered files under a directory
type dirDestinations struct {
	dir string
	n   atomic.Int32
}

func (d *dirDestinations) next(kind camera.MediaKind, ext string) (camera.Destination, error) {
	n := d.n.Add(1)
	name := fmt.Sprintf("%s-%d", kind, n)
	return camera.Destination{
		ID:          name,
		Kind:        kind,
		Path:        filepath.Join(d.dir, name+ext),
		DisplayName: name,
	}, nil
}

func (d *dirDestinations) NewPhoto(context.Context) (camera.Destination, error) {
	return d.next(camera.MediaPhoto, ".jpg")
}

func (d *dirDestinations) NewVideo(context.Context) (camera.Destination, error) {
	return d.next(camera.MediaVideo, ".mjpeg")
}

type pipelineObserver struct {
	camera.NopObserver
	mu        sync.Mutex
	samples   int
	finalized []camera.RecordingResult
}

func (o *pipelineObserver) Luminosity(camera.LuminositySample) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples++
}

func (o *pipelineObserver) RecordingFinalized(r camera.RecordingResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finalized = append(o.finalized, r)
}

func (o *pipelineObserver) sampleCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.samples
}

func (o *pipelineObserver) results() []camera.RecordingResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.finalized)
}

func TestPipelineAgainstVirtualDevice(t *testing.T) {
	t.Parallel()

	exec := camera.NewMainExecutor()
	observer := &pipelineObserver{}
	gate := camera.NewPermissionGate(grantAll{}, nil)
	dests := &dirDestinations{dir: t.TempDir()}
	src := NewSource(Config{Width: 32, Height: 24, FPS: 60, AcquireDelay: 5 * time.Millisecond})

	session, err := camera.NewCaptureSession(camera.SessionConfig{
		Provider: src,
		Gate:     gate,
		Executor: exec,
		Analyzer: camera.NewLuminosityAnalyzer(observer.Luminosity),
		Observer: observer,
	})
	require.NoError(t, err)
	still := camera.NewStillCaptureController(session, dests, exec, observer)
	recording := camera.NewRecordingController(session, gate, dests, exec, observer)

	t.Cleanup(func() {
		_ = exec.Call(context.Background(), func() { _ = session.UnbindAll() })
		exec.Close()
	})

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	_, err = session.Start(ctx, camera.Selection{Lens: camera.LensBack}).Wait(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return observer.sampleCount() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"luminosity samples flow from the analysis stream")

	f, ok := still.Capture(ctx)
	require.True(t, ok)
	shot, err := f.Wait(ctx)
	require.NoError(t, err)
	_, err = os.Stat(shot.Location)
	require.NoError(t, err)

	require.NoError(t, exec.Call(ctx, func() { err = recording.Toggle(ctx) }))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return recording.State() == camera.StateRecording },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, exec.Call(ctx, func() { err = recording.Toggle(ctx) }))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return recording.State() == camera.StateIdle },
		2*time.Second, 5*time.Millisecond)

	results := observer.results()
	require.Len(t, results, 1)
	assert.True(t, results[0].Succeeded())
	assert.Equal(t, "video-2", results[0].MediaID)
	assert.FileExists(t, results[0].Location)

	require.NoError(t, exec.Call(ctx, func() { err = session.UnbindAll() }))
	require.NoError(t, err)
	stats := src.Provider().Stats()
	assert.Equal(t, stats.Delivered, stats.Released, "every analysis frame released")
}
