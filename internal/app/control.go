package app

import (
	"context"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/observability"
)

var _ observability.Controller = (*App)(nil)

// errNotBound is returned by operations that need a bound camera
var errNotBound = errors.NewStd("camera not bound")

func recordingResponse(st camera.RecordingStatus) observability.RecordingResponse {
	return observability.RecordingResponse{
		State:       st.State.String(),
		RecordingID: st.RecordingID,
		MediaID:     st.MediaID,
		DurationMs:  st.Duration.Milliseconds(),
		Bytes:       st.Bytes,
		Finalized:   st.Finalized,
	}
}

// Status implements observability.Controller
func (a *App) Status(ctx context.Context) (observability.StatusResponse, error) {
	var (
		rec     camera.RecordingStatus
		binding *camera.Binding
	)
	if err := a.exec.Call(ctx, func() {
		rec = a.recording.Status()
		binding = a.session.Binding()
	}); err != nil {
		return observability.StatusResponse{}, err
	}

	resp := observability.StatusResponse{
		Lens:        a.selection.Lens.String(),
		Permissions: make(map[string]bool),
		Recording:   recordingResponse(rec),
	}
	for c, granted := range a.perms.Snapshot() {
		resp.Permissions[string(c)] = granted
	}
	if binding != nil {
		stats := binding.Analysis.Stats()
		resp.Bound = true
		resp.BindingID = binding.ID
		resp.Analysis = &observability.AnalysisResponse{
			Delivered: stats.Delivered,
			Analyzed:  stats.Analyzed,
			Dropped:   stats.Dropped,
			Faults:    stats.Faults,
		}
	}
	return resp, nil
}

// TakePhoto implements observability.Controller. It waits for the capture
// to finish.
func (a *App) TakePhoto(ctx context.Context) (observability.PhotoResponse, error) {
	f, ok := a.still.Capture(ctx)
	if !ok {
		return observability.PhotoResponse{}, errors.New(errNotBound).
			Component(ComponentApp).
			Category(errors.CategoryState).
			Context("operation", "take_photo").
			Build()
	}

	result, err := f.Wait(ctx)
	if err != nil {
		return observability.PhotoResponse{}, err
	}
	return observability.PhotoResponse{
		RequestID:  result.RequestID,
		MediaID:    result.MediaID,
		Location:   result.Location,
		DurationMs: result.Duration.Milliseconds(),
	}, nil
}

// ToggleRecording implements observability.Controller
func (a *App) ToggleRecording(ctx context.Context) (observability.RecordingResponse, error) {
	var (
		st        camera.RecordingStatus
		toggleErr error
		bound     bool
	)
	if err := a.exec.Call(ctx, func() {
		bound = a.session.VideoCapture() != nil
		if bound {
			toggleErr = a.recording.Toggle(ctx)
		}
		st = a.recording.Status()
	}); err != nil {
		return observability.RecordingResponse{}, err
	}

	if !bound {
		return recordingResponse(st), errors.New(errNotBound).
			Component(ComponentApp).
			Category(errors.CategoryState).
			Context("operation", "toggle_recording").
			Build()
	}
	return recordingResponse(st), toggleErr
}

// Media implements observability.Controller
func (a *App) Media(ctx context.Context, id string) (observability.MediaResponse, error) {
	m, err := a.store.Get(ctx, id)
	if err != nil {
		return observability.MediaResponse{}, err
	}
	return observability.MediaResponse{
		ID:          m.ID,
		Kind:        m.Kind,
		DisplayName: m.DisplayName,
		ContentType: m.ContentType,
		Location:    m.Location,
		Status:      string(m.Status),
		Error:       m.Error,
		Bytes:       m.Bytes,
		DurationMs:  m.DurationMs,
		CreatedAt:   m.CreatedAt,
	}, nil
}
