package camera

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMainExecutorRunsInOrder(t *testing.T) {
	t.Parallel()

	exec := NewMainExecutor()
	defer exec.Close()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 100 {
		require.True(t, exec.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, exec.Call(t.Context(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestMainExecutorCloseDrainsQueue(t *testing.T) {
	t.Parallel()

	exec := NewMainExecutor()
	ran := 0
	for range 10 {
		exec.Execute(func() { ran++ })
	}
	exec.Close()
	exec.Close()

	assert.Equal(t, 10, ran)
	assert.False(t, exec.Execute(func() {}))
	assert.ErrorIs(t, exec.Call(t.Context(), func() {}), ErrExecutorClosed)
}

func TestMainExecutorSurvivesPanic(t *testing.T) {
	t.Parallel()

	exec := NewMainExecutor()
	defer exec.Close()

	exec.Execute(func() { panic("boom") })

	called := false
	require.NoError(t, exec.Call(t.Context(), func() { called = true }))
	assert.True(t, called)
}

func TestMainExecutorCallHonoursContext(t *testing.T) {
	t.Parallel()

	exec := NewMainExecutor()
	defer exec.Close()

	release := make(chan struct{})
	exec.Execute(func() { <-release })

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := exec.Call(ctx, func() {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestFutureResolvesOnce(t *testing.T) {
	t.Parallel()

	f := NewFuture[string]()
	assert.False(t, f.Ready())

	assert.True(t, f.Resolve("first", nil))
	assert.False(t, f.Resolve("second", assert.AnError))
	assert.True(t, f.Ready())

	v, err := f.Wait(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestFutureWaitCancelled(t *testing.T) {
	t.Parallel()

	f := NewFuture[int]()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQualitySelector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		supported []Quality
		want      Quality
		ok        bool
	}{
		{"preferred available", []Quality{QualitySD, QualityHD, QualityFHD}, QualityHD, true},
		{"falls back to lower", []Quality{QualitySD, QualityFHD}, QualitySD, true},
		{"never higher than preferred", []Quality{QualityFHD}, 0, false},
		{"nothing supported", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := DefaultQualitySelector().Select(tt.supported)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLensAndQuality(t *testing.T) {
	t.Parallel()

	lens, err := ParseLensFacing("Front")
	require.NoError(t, err)
	assert.Equal(t, LensFront, lens)

	_, err = ParseLensFacing("side")
	require.Error(t, err)

	q, err := ParseQuality("fhd")
	require.NoError(t, err)
	assert.Equal(t, QualityFHD, q)
	w, h := q.Size()
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, err = ParseQuality("8k")
	require.Error(t, err)
}
