package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/camcore/internal/errors"
)

// stubController returns canned responses
type stubController struct {
	status    StatusResponse
	photo     PhotoResponse
	photoErr  error
	recording RecordingResponse
	toggleErr error
	media     map[string]MediaResponse
	toggles   int
}

func (s *stubController) Status(context.Context) (StatusResponse, error) {
	return s.status, nil
}

func (s *stubController) TakePhoto(context.Context) (PhotoResponse, error) {
	return s.photo, s.photoErr
}

func (s *stubController) ToggleRecording(context.Context) (RecordingResponse, error) {
	s.toggles++
	return s.recording, s.toggleErr
}

func (s *stubController) Media(_ context.Context, id string) (MediaResponse, error) {
	m, ok := s.media[id]
	if !ok {
		return MediaResponse{}, errors.Newf("media %s not found", id).
			Category(errors.CategoryNotFound).
			Build()
	}
	return m, nil
}

func newTestEndpoint(t *testing.T, c Controller) *Endpoint {
	t.Helper()
	m, err := NewMetrics()
	require.NoError(t, err)
	e, err := NewEndpoint("127.0.0.1:0", m, c)
	require.NoError(t, err)
	return e
}

func serve(t *testing.T, e *Endpoint, method, path string) (*httptest.ResponseRecorder, *jason.Object) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, req)

	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		return rec, nil
	}
	obj, err := jason.NewObjectFromBytes(rec.Body.Bytes())
	require.NoError(t, err)
	return rec, obj
}

func TestNewEndpointValidation(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	_, err = NewEndpoint("", m, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewEndpoint("127.0.0.1:0", nil, nil)
	require.Error(t, err)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	e := newTestEndpoint(t, nil)
	e.metrics.Camera.RecordFrameDelivered("analysis")

	rec, _ := serve(t, e, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "camcore_frames_delivered_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	// Without a controller only metrics are routed
	rec, _ = serve(t, e, http.MethodGet, "/api/v1/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusRoute(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{status: StatusResponse{
		Bound:       true,
		BindingID:   "b-1",
		Lens:        "back",
		Permissions: map[string]bool{"camera": true, "microphone": false},
		Recording:   RecordingResponse{State: "idle", Finalized: 2},
	}}
	e := newTestEndpoint(t, ctrl)

	rec, obj := serve(t, e, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, obj)

	bound, err := obj.GetBoolean("bound")
	require.NoError(t, err)
	assert.True(t, bound)

	state, err := obj.GetString("recording", "state")
	require.NoError(t, err)
	assert.Equal(t, "idle", state)

	mic, err := obj.GetBoolean("permissions", "microphone")
	require.NoError(t, err)
	assert.False(t, mic)
}

func TestPhotoRoute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"success", nil, http.StatusCreated},
		{"not bound", errors.Newf("camera not bound").Category(errors.CategoryState).Build(), http.StatusConflict},
		{"denied", errors.Newf("denied").Category(errors.CategoryPermission).Build(), http.StatusForbidden},
		{"device fault", errors.Newf("disk full").Category(errors.CategoryCapture).Build(), http.StatusInternalServerError},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := &stubController{
				photo:    PhotoResponse{RequestID: "r-1", MediaID: "photo-1", Location: "/tmp/p.jpg"},
				photoErr: tt.err,
			}
			e := newTestEndpoint(t, ctrl)

			rec, obj := serve(t, e, http.MethodPost, "/api/v1/photo")
			require.Equal(t, tt.wantCode, rec.Code)
			require.NotNil(t, obj)

			if tt.err == nil {
				id, err := obj.GetString("media_id")
				require.NoError(t, err)
				assert.Equal(t, "photo-1", id)
				return
			}
			code, err := obj.GetInt64("code")
			require.NoError(t, err)
			assert.Equal(t, int64(tt.wantCode), code)
			corr, err := obj.GetString("correlation_id")
			require.NoError(t, err)
			assert.NotEmpty(t, corr)
			assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), corr, "correlation id is the request id")
		})
	}
}

func TestToggleRoute(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{recording: RecordingResponse{State: "starting", RecordingID: "rec-1"}}
	e := newTestEndpoint(t, ctrl)

	rec, obj := serve(t, e, http.MethodPost, "/api/v1/recording/toggle")
	require.Equal(t, http.StatusAccepted, rec.Code)
	state, err := obj.GetString("state")
	require.NoError(t, err)
	assert.Equal(t, "starting", state)
	assert.Equal(t, 1, ctrl.toggles)

	rec, _ = serve(t, e, http.MethodGet, "/api/v1/recording/toggle")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, 1, ctrl.toggles)
}

func TestMediaRoute(t *testing.T) {
	t.Parallel()

	ctrl := &stubController{media: map[string]MediaResponse{
		"abc": {ID: "abc", Kind: "photo", ContentType: "image/jpeg", Status: "complete", Bytes: 42},
	}}
	e := newTestEndpoint(t, ctrl)

	rec, obj := serve(t, e, http.MethodGet, "/api/v1/media/abc")
	require.Equal(t, http.StatusOK, rec.Code)
	ct, err := obj.GetString("content_type")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)

	rec, _ = serve(t, e, http.MethodGet, "/api/v1/media/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	// Reserve a free port
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m, err := NewMetrics()
	require.NoError(t, err)
	e, err := NewEndpoint(addr, m, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("endpoint did not shut down")
	}
}
