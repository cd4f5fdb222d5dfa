package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	metricspkg "github.com/tphakala/camcore/internal/observability/metrics"
)

// ComponentEndpoint identifies errors raised by the HTTP endpoint
const ComponentEndpoint = "observability.endpoint"

// Endpoint serves Prometheus metrics and the control API over HTTP.
type Endpoint struct {
	echo          *echo.Echo
	listenAddress string
	metrics       *Metrics
	controller    Controller
}

// NewEndpoint creates an endpoint listening on listen. A nil controller
// serves metrics only.
func NewEndpoint(listen string, metrics *Metrics, controller Controller) (*Endpoint, error) {
	if listen == "" {
		return nil, errors.Newf("telemetry listen address is empty").
			Component(ComponentEndpoint).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if metrics == nil {
		return nil, errors.Newf("metrics are required").
			Component(ComponentEndpoint).
			Category(errors.CategoryConfiguration).
			Build()
	}

	e := &Endpoint{
		echo:          echo.New(),
		listenAddress: listen,
		metrics:       metrics,
		controller:    controller,
	}
	e.echo.HideBanner = true
	e.echo.HidePort = true
	e.echo.Use(middleware.Recover())
	e.echo.Use(middleware.RequestID())
	e.echo.Use(traceContext)
	e.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			GetLogger().Debug("http request",
				logger.String("request_id", v.RequestID),
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency))
			return nil
		},
	}))

	e.initRoutes()
	return e, nil
}

// traceContext puts the request ID into the request context so handler
// logs carry the same trace_id as the access log.
func traceContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		}
		return next(c)
	}
}

func (e *Endpoint) initRoutes() {
	e.echo.GET("/metrics", echo.WrapHandler(e.metrics.Handler()))
	e.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if e.controller == nil {
		return
	}
	api := &apiHandlers{controller: e.controller}
	g := e.echo.Group("/api/v1")
	g.GET("/status", api.GetStatus)
	g.POST("/photo", api.TakePhoto)
	g.POST("/recording/toggle", api.ToggleRecording)
	g.GET("/media/:id", api.GetMedia)
}

// Handler returns the routed HTTP handler
func (e *Endpoint) Handler() http.Handler {
	return e.echo
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	log := GetLogger()
	errCh := make(chan error, 1)
	go func() {
		log.Info("telemetry endpoint starting", logger.String("address", e.listenAddress))
		errCh <- e.echo.Start(e.listenAddress)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component(ComponentEndpoint).
			Category(errors.CategoryNetwork).
			Context("address", e.listenAddress).
			Build()
	case <-ctx.Done():
	}

	log.Info("stopping telemetry endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := e.echo.Shutdown(shutdownCtx); err != nil {
		log.Error("telemetry endpoint shutdown error", logger.Error(err))
		return errors.New(err).
			Component(ComponentEndpoint).
			Category(errors.CategoryNetwork).
			Timing("shutdown", time.Since(start)).
			Build()
	}
	<-errCh
	return nil
}
