package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camcore/internal/conf"
	"github.com/tphakala/camcore/internal/errors"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	return &conf.Settings{
		Camera: conf.CameraSettings{
			Lens:         "back",
			FPS:          60,
			Width:        32,
			Height:       24,
			MaxImages:    2,
			Quality:      "hd",
			AcquireDelay: 5 * time.Millisecond,
			Analysis:     conf.AnalysisSettings{Enabled: true},
		},
		Output: conf.OutputSettings{
			PhotoPath: filepath.Join(dir, "photos"),
			VideoPath: filepath.Join(dir, "videos"),
			Database:  ":memory:",
		},
		Permissions: conf.PermissionSettings{Camera: true, Microphone: true},
		Audio: conf.AudioSettings{
			Source:     "silence",
			SampleRate: 8000,
			Channels:   1,
			BufferSize: 16000,
		},
	}
}

// runApp runs a in the background and returns a stop function that waits for Run
func runApp(t *testing.T, a *App) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, nil, nil) }()

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("app did not stop")
			return nil
		}
	}
}

func waitBound(t *testing.T, a *App) {
	t.Helper()
	require.Eventually(t, func() bool {
		st, err := a.Status(t.Context())
		return err == nil && st.Bound
	}, 5*time.Second, 10*time.Millisecond)
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*conf.Settings)
	}{
		{"unknown lens", func(s *conf.Settings) { s.Camera.Lens = "side" }},
		{"unknown quality", func(s *conf.Settings) { s.Camera.Quality = "8k" }},
		{"missing database", func(s *conf.Settings) { s.Output.Database = "" }},
		{"bad mqtt broker", func(s *conf.Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Broker = "tcp://:1883"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := testSettings(t)
			tt.modify(s)
			a, err := New(s)
			require.Error(t, err)
			assert.Nil(t, a)
		})
	}

	_, err := New(nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOperationsWithoutBindingReportState(t *testing.T) {
	t.Parallel()

	a, err := New(testSettings(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Shutdown()) })

	_, err = a.TakePhoto(t.Context())
	require.ErrorIs(t, err, errNotBound)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	rec, err := a.ToggleRecording(t.Context())
	require.ErrorIs(t, err, errNotBound)
	assert.Equal(t, "idle", rec.State)

	st, err := a.Status(t.Context())
	require.NoError(t, err)
	assert.False(t, st.Bound)
	assert.Nil(t, st.Analysis)
	assert.Equal(t, "back", st.Lens)
	assert.True(t, st.Permissions["camera"])

	_, err = a.Media(t.Context(), "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestPhotoAndRecordingAreIndexed(t *testing.T) {
	t.Parallel()

	a, err := New(testSettings(t))
	require.NoError(t, err)
	stop := runApp(t, a)
	waitBound(t, a)

	ctx := t.Context()
	photo, err := a.TakePhoto(ctx)
	require.NoError(t, err)
	assert.FileExists(t, photo.Location)

	require.Eventually(t, func() bool {
		m, err := a.Media(ctx, photo.MediaID)
		return err == nil && m.Status == "complete" && m.Bytes > 0
	}, 5*time.Second, 10*time.Millisecond, "photo is completed in the index")

	rec, err := a.ToggleRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, "starting", rec.State)
	videoID := rec.MediaID
	require.NotEmpty(t, videoID)

	require.Eventually(t, func() bool {
		st, err := a.Status(ctx)
		return err == nil && st.Recording.State == "recording"
	}, 5*time.Second, 10*time.Millisecond)

	rec, err = a.ToggleRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stopping", rec.State)

	require.Eventually(t, func() bool {
		m, err := a.Media(ctx, videoID)
		return err == nil && m.Status == "complete"
	}, 5*time.Second, 10*time.Millisecond, "recording is completed in the index")

	video, err := a.Media(ctx, videoID)
	require.NoError(t, err)
	assert.Equal(t, "video/x-motion-jpeg", video.ContentType)
	assert.FileExists(t, video.Location)

	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Recording.Finalized)
	require.NotNil(t, st.Analysis)
	assert.Positive(t, st.Analysis.Delivered)

	require.NoError(t, stop())
}

func TestRecordingRequiresMicrophone(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Permissions.Microphone = false
	a, err := New(s)
	require.NoError(t, err)
	stop := runApp(t, a)
	waitBound(t, a)

	_, err = a.ToggleRecording(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPermission))

	require.NoError(t, a.perms.Grant("microphone"))
	rec, err := a.ToggleRecording(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "starting", rec.State)

	// Shutdown stops the recording before unbinding
	require.NoError(t, stop())
	assert.Equal(t, "idle", a.recording.State().String())
}

func TestCommandLoop(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Permissions.Microphone = false
	a, err := New(s)
	require.NoError(t, err)

	in := strings.NewReader(strings.Join([]string{
		"status",
		"photo",
		"record",
		"grant microphone",
		"record",
		"record",
		"media photo",
		"grant",
		"revoke speaker",
		"dance",
		"",
		"quit",
		"photo",
	}, "\n"))
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx, in, &out))

	got := out.String()
	assert.Contains(t, got, "bound=true lens=back recording=idle")
	assert.Contains(t, got, "photo saved:")
	assert.Contains(t, got, "required permission not granted")
	assert.Contains(t, got, "microphone granted")
	assert.Contains(t, got, "recording starting")
	assert.Contains(t, got, "recording stopping")
	assert.Contains(t, got, " photo ")
	assert.Contains(t, got, "usage: grant")
	assert.Contains(t, got, `unknown capability "speaker"`)
	assert.Contains(t, got, `unknown command "dance"`)
	assert.Equal(t, 1, strings.Count(got, "photo saved:"), "commands after quit are not run")
	assert.Equal(t, "idle", a.recording.State().String())
}

func TestRunReturnsAtEndOfInputOnlyOnCancel(t *testing.T) {
	t.Parallel()

	a, err := New(testSettings(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, strings.NewReader("status\n"), &bytes.Buffer{}) }()

	select {
	case <-done:
		t.Fatal("end of input stopped the app")
	case <-time.After(200 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}
