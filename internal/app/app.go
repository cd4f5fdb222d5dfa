// Package app assembles the capture pipeline from settings and runs it
// until shutdown.
package app

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/camcore/internal/camera"
	"github.com/tphakala/camcore/internal/camera/audio"
	"github.com/tphakala/camcore/internal/camera/virtual"
	"github.com/tphakala/camcore/internal/conf"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/events"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/mediastore"
	"github.com/tphakala/camcore/internal/mqtt"
	"github.com/tphakala/camcore/internal/observability"
	"github.com/tphakala/camcore/internal/permission"
)

// ComponentApp identifies errors raised while assembling or running the pipeline
const ComponentApp = "app"

const (
	shutdownTimeout = 5 * time.Second
	// finalizeWait bounds how long shutdown waits for an active recording to finalize
	finalizeWait  = 3 * time.Second
	mqttConnectTO = 10 * time.Second
)

// GetLogger returns the app module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// App owns every component of a running capture pipeline
type App struct {
	settings  *conf.Settings
	selection camera.Selection

	metrics *observability.Metrics
	store   *mediastore.Store
	perms   permission.Manager
	bus     *events.Bus
	mqtt    mqtt.Client

	source    *virtual.Source
	exec      *camera.MainExecutor
	session   *camera.CaptureSession
	still     *camera.StillCaptureController
	recording *camera.RecordingController

	endpoint *observability.Endpoint

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds the pipeline described by settings. Nothing runs until Run.
func New(settings *conf.Settings) (*App, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component(ComponentApp).
			Category(errors.CategoryConfiguration).
			Build()
	}

	lens, err := camera.ParseLensFacing(settings.Camera.Lens)
	if err != nil {
		return nil, configError(err, "camera.lens")
	}
	quality, err := camera.ParseQuality(settings.Camera.Quality)
	if err != nil {
		return nil, configError(err, "camera.quality")
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentApp).
			Category(errors.CategorySystem).
			Context("operation", "init_metrics").
			Build()
	}
	camera.InitMetrics(m.Camera)

	a := &App{
		settings:  settings,
		selection: camera.Selection{Lens: lens},
		metrics:   m,
	}

	a.store, err = mediastore.Open(mediastore.Config{
		PhotoDir: settings.Output.PhotoPath,
		VideoDir: settings.Output.VideoPath,
		Database: settings.Output.Database,
	}, m.Events)
	if err != nil {
		return nil, err
	}

	if settings.Permissions.File != "" {
		a.perms = permission.NewFileSource(settings.Permissions.File)
	} else {
		a.perms = permission.NewStaticSource(settings.Permissions.Camera, settings.Permissions.Microphone)
	}

	if err := a.initEvents(); err != nil {
		_ = a.store.Close()
		return nil, err
	}

	var emitInterval time.Duration
	if settings.Camera.Analysis.Enabled {
		emitInterval = settings.Camera.Analysis.EmitInterval
	}
	observer := events.NewObserver(a.bus, emitInterval)
	gate := camera.NewPermissionGate(a.perms, observer)

	audioCfg := audio.Config{
		Source:     settings.Audio.Source,
		Device:     settings.Audio.Device,
		SampleRate: settings.Audio.SampleRate,
		Channels:   settings.Audio.Channels,
	}
	a.source = virtual.NewSource(virtual.Config{
		Width:           settings.Camera.Width,
		Height:          settings.Camera.Height,
		FPS:             settings.Camera.FPS,
		MaxImages:       settings.Camera.MaxImages,
		AcquireDelay:    settings.Camera.AcquireDelay,
		Audio:           func() (audio.Source, error) { return audio.NewSource(audioCfg) },
		AudioBufferSize: settings.Audio.BufferSize,
	})

	var analyzer camera.Analyzer
	if settings.Camera.Analysis.Enabled {
		analyzer = camera.NewLuminosityAnalyzer(observer.Luminosity)
	}

	a.exec = camera.NewMainExecutor()
	a.session, err = camera.NewCaptureSession(camera.SessionConfig{
		Provider: a.source,
		Gate:     gate,
		Executor: a.exec,
		Analyzer: analyzer,
		Quality:  camera.QualitySelector{Preferred: quality, Floor: camera.QualitySD},
		Observer: observer,
	})
	if err != nil {
		a.exec.Close()
		_ = a.store.Close()
		return nil, err
	}
	a.still = camera.NewStillCaptureController(a.session, a.store, a.exec, observer)
	a.recording = camera.NewRecordingController(a.session, gate, a.store, a.exec, observer)

	if settings.Telemetry.Enabled {
		a.endpoint, err = observability.NewEndpoint(settings.Telemetry.Listen, m, a)
		if err != nil {
			a.exec.Close()
			_ = a.store.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) initEvents() error {
	a.bus = events.NewBus(events.DefaultConfig(), a.metrics.Events)

	consumers := []events.Consumer{
		events.NewLogConsumer(events.GetLogger()),
		mediastore.NewConsumer(a.store),
	}

	if a.settings.MQTT.Enabled {
		cfg := mqtt.DefaultConfig()
		cfg.Broker = a.settings.MQTT.Broker
		cfg.ClientID = a.settings.MQTT.ClientID
		cfg.Username = a.settings.MQTT.Username
		cfg.Password = a.settings.MQTT.Password
		if a.settings.MQTT.Topic != "" {
			cfg.Topic = a.settings.MQTT.Topic
		}

		client, err := mqtt.NewClient(cfg, a.metrics.MQTT)
		if err != nil {
			return err
		}
		a.mqtt = client
		consumers = append(consumers, mqtt.NewPublisher(client, cfg.Topic, cfg.PublishTimeout))
	}

	for _, c := range consumers {
		if err := a.bus.RegisterConsumer(c); err != nil {
			return err
		}
	}
	return nil
}

func configError(err error, key string) error {
	return errors.New(err).
		Component(ComponentApp).
		Category(errors.CategoryConfiguration).
		Context("key", key).
		Build()
}

// Run starts the event bus, binds the camera and serves the HTTP endpoint
// and, when in is not nil, the interactive command loop. It returns when ctx
// is cancelled or the command loop reads "quit", after shutting everything
// down. End of input stops the command loop but not the pipeline.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	log := GetLogger()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.bus.Start()
	a.connectMQTT(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if a.endpoint != nil {
		g.Go(func() error { return a.endpoint.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := a.StartSession(gctx); err != nil {
		log.Warn("camera session did not start", logger.Error(err))
	}

	// Commands are accepted once the first bind attempt has finished
	if in != nil {
		g.Go(func() error {
			quit, err := a.commandLoop(gctx, in, out)
			if quit {
				cancel()
			}
			return err
		})
	}

	err := g.Wait()
	if shutdownErr := a.Shutdown(); shutdownErr != nil {
		err = errors.Join(err, shutdownErr)
	}
	return err
}

func (a *App) connectMQTT(ctx context.Context) {
	if a.mqtt == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, mqttConnectTO)
	defer cancel()
	if err := a.mqtt.Connect(ctx); err != nil {
		GetLogger().Warn("MQTT connection failed, events will not be published",
			logger.String("broker", logger.RedactSensitiveData(a.settings.MQTT.Broker)),
			logger.Error(err))
	}
}

// StartSession binds the configured lens and waits for the outcome
func (a *App) StartSession(ctx context.Context) error {
	_, err := a.session.Start(ctx, a.selection).Wait(ctx)
	return err
}

// StopSession stops any recording and unbinds the camera
func (a *App) StopSession(ctx context.Context) error {
	a.stopRecording(ctx)

	var err error
	if callErr := a.exec.Call(ctx, func() { err = a.session.UnbindAll() }); callErr != nil {
		return callErr
	}
	return err
}

// stopRecording asks the controller to stop and waits briefly for the
// finalize event so the file is complete before the camera is unbound.
func (a *App) stopRecording(ctx context.Context) {
	if err := a.exec.Call(ctx, a.recording.Stop); err != nil {
		return
	}

	deadline := time.NewTimer(finalizeWait)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for a.recording.State() != camera.StateIdle {
		select {
		case <-tick.C:
		case <-deadline.C:
			GetLogger().Warn("recording did not finalize before unbind")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown unbinds the camera, drains the event bus and closes the media
// index. It is called by Run and is safe to call more than once.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(func() { a.shutdownErr = a.shutdown() })
	return a.shutdownErr
}

func (a *App) shutdown() error {
	log := GetLogger()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.StopSession(ctx); err != nil && !errors.Is(err, camera.ErrExecutorClosed) {
		errs = append(errs, err)
	}
	a.exec.Close()

	if err := a.bus.Shutdown(shutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		log.Error("shutdown completed with errors", logger.Error(errors.Join(errs...)))
		return errors.Join(errs...)
	}
	log.Info("shutdown complete")
	return nil
}

// Metrics returns the metric collectors of the pipeline
func (a *App) Metrics() *observability.Metrics {
	return a.metrics
}
