package camera

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camcore/internal/errors"
)

func TestSessionStartBindsAllEndpoints(t *testing.T) {
	t.Parallel()

	h := newHarness(t, CapabilityCamera)
	assert.Nil(t, h.session.StillCapture())
	assert.Nil(t, h.session.VideoCapture())
	assert.Nil(t, h.session.Analysis())

	binding := h.bind(t)

	assert.NotEmpty(t, binding.ID)
	assert.Same(t, binding.Still, h.session.StillCapture())
	assert.Same(t, binding.Video, h.session.VideoCapture())
	assert.Same(t, binding.Analysis, h.session.Analysis())
	assert.Equal(t, 1, h.provider.binds)
}

func TestSessionStartDeniedWithoutCamera(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.session.Start(t.Context(), Selection{}).Wait(t.Context())
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.True(t, errors.IsCategory(err, errors.CategoryPermission))

	assert.Zero(t, h.source.acquires.Load(), "provider is not acquired without permission")
	assert.Equal(t, [][]Capability{{CapabilityCamera}}, h.requests.all())
	assert.Nil(t, h.session.Binding())
}

func TestSessionRechecksPermissionOnEveryStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.session.Start(t.Context(), Selection{}).Wait(t.Context())
	require.ErrorIs(t, err, ErrPermissionDenied)

	h.grants.set(CapabilityCamera, true)
	h.bind(t)
}

func TestSessionProviderFailureIsReportedOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, CapabilityCamera)
	h.source.err = errors.NewStd("camera service interrupted")

	_, err := h.session.Start(t.Context(), Selection{}).Wait(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryProvider))
	assert.Nil(t, h.session.Binding())
	assert.Equal(t, int32(1), h.source.acquires.Load(), "acquisition is not retried")

	h.onMain(t, func() {})
	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	assert.Len(t, h.observer.failed, 1)
}

func TestSessionBindFailureLeavesNoPartialBinding(t *testing.T) {
	t.Parallel()

	h := newHarness(t, CapabilityCamera)
	h.provider.bindErr = errors.NewStd("camera in use")

	_, err := h.session.Start(t.Context(), Selection{}).Wait(t.Context())
	require.Error(t, err)
	assert.Nil(t, h.session.Binding())
	assert.Nil(t, h.session.StillCapture())
	assert.Nil(t, h.session.VideoCapture())
	assert.Nil(t, h.session.Analysis())
}

func TestSessionRebindNeverDoubleBinds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, CapabilityCamera)

	var previous *Binding
	for range 5 {
		h.onMain(t, func() { require.NoError(t, h.session.UnbindAll()) })
		binding := h.bind(t)
		if previous != nil {
			assert.NotEqual(t, previous.ID, binding.ID)
		}
		previous = binding
	}

	// Start without an explicit unbind releases the old binding first
	old := h.session.Binding()
	h.bind(t)

	assert.Zero(t, h.provider.doubleBinds)
	assert.Equal(t, 6, h.provider.binds)

	f := newTestFrame(1, 1)
	old.Analysis.Deliver(f)
	assert.Equal(t, int32(1), f.closes.Load(), "old analysis stream is closed")
}

func TestSessionUnbindAllIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, CapabilityCamera)
	h.bind(t)

	h.onMain(t, func() {
		require.NoError(t, h.session.UnbindAll())
		require.NoError(t, h.session.UnbindAll())
	})
	assert.Nil(t, h.session.Binding())
	assert.Nil(t, h.provider.sink())
}

func TestSessionUnbindSupersedesPendingStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, CapabilityCamera)
	h.source.gate = make(chan struct{})

	future := h.session.Start(t.Context(), Selection{})
	h.onMain(t, func() { require.NoError(t, h.session.UnbindAll()) })
	close(h.source.gate)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	_, err := future.Wait(ctx)
	require.ErrorIs(t, err, ErrSuperseded)
	assert.Nil(t, h.session.Binding())
	assert.Zero(t, h.provider.binds)
}

func TestSessionSupersededFailureIsNotReported(t *testing.T) {
	t.Parallel()

	h := newHarness(t, CapabilityCamera)
	h.source.gate = make(chan struct{})
	h.source.err = errors.NewStd("camera service interrupted")

	future := h.session.Start(t.Context(), Selection{})
	h.onMain(t, func() { require.NoError(t, h.session.UnbindAll()) })
	close(h.source.gate)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	_, err := future.Wait(ctx)
	require.ErrorIs(t, err, ErrSuperseded)
	assert.False(t, errors.IsCategory(err, errors.CategoryProvider))

	h.onMain(t, func() {})
	h.observer.mu.Lock()
	defer h.observer.mu.Unlock()
	assert.Empty(t, h.observer.failed, "a stale failure must not reach the observer")
}

func TestSessionFramesFlowToAnalyzer(t *testing.T) {
	t.Parallel()

	h := newHarness(t, CapabilityCamera)
	binding := h.bind(t)

	samples := make(chan LuminositySample, 1)
	binding.Analysis.SetAnalyzer(NewLuminosityAnalyzer(func(s LuminositySample) {
		select {
		case samples <- s:
		default:
		}
	}))

	h.provider.sink().Deliver(newTestFrame(1, 0, 255, 0, 255))

	select {
	case s := <-samples:
		assert.InDelta(t, 127.5, s.Mean, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("no luminosity sample")
	}
}

func TestNewCaptureSessionValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := NewCaptureSession(SessionConfig{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}
