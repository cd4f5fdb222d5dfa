package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
)

// Controller performs capture operations on behalf of HTTP clients
type Controller interface {
	Status(ctx context.Context) (StatusResponse, error)
	TakePhoto(ctx context.Context) (PhotoResponse, error)
	ToggleRecording(ctx context.Context) (RecordingResponse, error)
	Media(ctx context.Context, id string) (MediaResponse, error)
}

// RecordingResponse describes the recording controller
type RecordingResponse struct {
	State       string `json:"state"`
	RecordingID string `json:"recording_id,omitempty"`
	MediaID     string `json:"media_id,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
	Bytes       int64  `json:"bytes"`
	Finalized   uint64 `json:"finalized"`
}

// AnalysisResponse describes the analysis stream counters
type AnalysisResponse struct {
	Delivered uint64 `json:"delivered"`
	Analyzed  uint64 `json:"analyzed"`
	Dropped   uint64 `json:"dropped"`
	Faults    uint64 `json:"faults"`
}

// StatusResponse is returned by GET /api/v1/status
type StatusResponse struct {
	Bound       bool              `json:"bound"`
	BindingID   string            `json:"binding_id,omitempty"`
	Lens        string            `json:"lens,omitempty"`
	Permissions map[string]bool   `json:"permissions"`
	Recording   RecordingResponse `json:"recording"`
	Analysis    *AnalysisResponse `json:"analysis,omitempty"`
}

// PhotoResponse is returned by POST /api/v1/photo
type PhotoResponse struct {
	RequestID  string `json:"request_id"`
	MediaID    string `json:"media_id"`
	Location   string `json:"location"`
	DurationMs int64  `json:"duration_ms"`
}

// MediaResponse is returned by GET /api/v1/media/:id
type MediaResponse struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	DisplayName string    `json:"display_name"`
	ContentType string    `json:"content_type"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Bytes       int64     `json:"bytes"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

type apiHandlers struct {
	controller Controller
}

// GetStatus handles GET /api/v1/status
func (h *apiHandlers) GetStatus(c echo.Context) error {
	status, err := h.controller.Status(c.Request().Context())
	if err != nil {
		return handleError(c, err, "failed to read status")
	}
	return c.JSON(http.StatusOK, status)
}

// TakePhoto handles POST /api/v1/photo and waits for the capture to finish
func (h *apiHandlers) TakePhoto(c echo.Context) error {
	photo, err := h.controller.TakePhoto(c.Request().Context())
	if err != nil {
		return handleError(c, err, "photo capture failed")
	}
	return c.JSON(http.StatusCreated, photo)
}

// ToggleRecording handles POST /api/v1/recording/toggle
func (h *apiHandlers) ToggleRecording(c echo.Context) error {
	rec, err := h.controller.ToggleRecording(c.Request().Context())
	if err != nil {
		return handleError(c, err, "recording toggle failed")
	}
	return c.JSON(http.StatusAccepted, rec)
}

// GetMedia handles GET /api/v1/media/:id
func (h *apiHandlers) GetMedia(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return handleError(c, errors.Newf("media id is required").
			Component(ComponentEndpoint).
			Category(errors.CategoryValidation).
			Build(), "invalid request")
	}

	media, err := h.controller.Media(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err, "media lookup failed")
	}
	return c.JSON(http.StatusOK, media)
}

// statusCode maps an error category to an HTTP status
func statusCode(err error) int {
	switch {
	case errors.IsCategory(err, errors.CategoryNotFound):
		return http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryPermission):
		return http.StatusForbidden
	case errors.IsCategory(err, errors.CategoryState):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func handleError(c echo.Context, err error, message string) error {
	code := statusCode(err)
	correlationID := c.Response().Header().Get(echo.HeaderXRequestID)
	if correlationID == "" {
		correlationID = uuid.NewString()[:8]
	}
	resp := ErrorResponse{
		Error:         err.Error(),
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}

	GetLogger().WithContext(c.Request().Context()).Warn("API error",
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", c.Request().URL.Path),
		logger.String("method", c.Request().Method),
		logger.Error(err))

	return c.JSON(code, resp)
}
