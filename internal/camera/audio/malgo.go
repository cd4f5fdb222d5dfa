package audio

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
)

// DeviceInfo describes a capture device
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// MalgoSource captures from a sound card through miniaudio
type MalgoSource struct {
	deviceName string
	format     Format

	mu      sync.Mutex
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	running bool
}

// NewMalgoSource creates a source for the named device; an empty name
// selects the system default.
func NewMalgoSource(deviceName string, format Format) *MalgoSource {
	return &MalgoSource{deviceName: deviceName, format: format}
}

// Name implements Source
func (s *MalgoSource) Name() string {
	if s.deviceName == "" {
		return "default"
	}
	return s.deviceName
}

// Format implements Source
func (s *MalgoSource) Format() Format { return s.format }

// Start implements Source
func (s *MalgoSource) Start(_ context.Context, sink func(pcm []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.Newf("audio source already running").
			Component(ComponentAudio).
			Category(errors.CategoryState).
			Context("device", s.Name()).
			Build()
	}

	mctx, err := malgo.InitContext([]malgo.Backend{getBackend()}, malgo.ContextConfig{}, func(message string) {
		GetLogger().Debug("malgo", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryAudioSource).
			Context("backend", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.format.Channels)
	deviceConfig.SampleRate = uint32(s.format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if s.deviceName != "" {
		info, err := findDevice(mctx, s.deviceName)
		if err != nil {
			_ = mctx.Uninit()
			mctx.Free()
			return err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			sink(input)
		},
		Stop: func() {
			GetLogger().Warn("audio capture device stopped", logger.String("device", s.Name()))
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryAudioSource).
			Context("device", s.Name()).
			Context("operation", "init_device").
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryAudioSource).
			Context("device", s.Name()).
			Context("operation", "start_device").
			Build()
	}

	s.mctx = mctx
	s.device = device
	s.running = true
	GetLogger().Info("audio capture started",
		logger.String("device", s.Name()),
		logger.Int("sample_rate", int(device.SampleRate())))
	return nil
}

// Stop implements Source. Stopping a source that is not running is a no-op.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	var stopErr error
	if s.device != nil {
		stopErr = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.mctx != nil {
		_ = s.mctx.Uninit()
		s.mctx.Free()
		s.mctx = nil
	}

	if stopErr != nil {
		return errors.New(stopErr).
			Component(ComponentAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "stop_device").
			Build()
	}
	return nil
}

// ListDevices enumerates capture devices
func ListDevices() ([]DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "list_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			ID:        infos[i].ID.String(),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

func findDevice(mctx *malgo.AllocatedContext, name string) (*malgo.DeviceInfo, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "list_devices").
			Build()
	}
	for i := range infos {
		if infos[i].Name() == name || strings.Contains(infos[i].Name(), name) {
			return &infos[i], nil
		}
	}
	return nil, errors.Newf("capture device %q not found", name).
		Component(ComponentAudio).
		Category(errors.CategoryNotFound).
		Build()
}

// getBackend returns the miniaudio backend for the current platform
func getBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}
