// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/tphakala/camcore/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ErrorCategory lets the errors package classify ValidationError
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		func(s *Settings) error { return validateCameraSettings(&s.Camera) },
		func(s *Settings) error { return validateOutputSettings(&s.Output) },
		func(s *Settings) error { return validateAudioSettings(&s.Audio) },
		func(s *Settings) error { return validateTelemetrySettings(&s.Telemetry) },
		func(s *Settings) error { return validateSentrySettings(&s.Sentry) },
		func(s *Settings) error { return validateMQTTSettings(&s.MQTT) },
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCameraSettings(settings *CameraSettings) error {
	var errs []string

	switch strings.ToLower(settings.Lens) {
	case "back", "front":
	default:
		errs = append(errs, fmt.Sprintf("camera lens must be 'back' or 'front', got %q", settings.Lens))
	}

	if settings.FPS < 1 || settings.FPS > 120 {
		errs = append(errs, fmt.Sprintf("camera fps must be between 1 and 120, got %d", settings.FPS))
	}

	if settings.Width < 16 || settings.Height < 16 {
		errs = append(errs, fmt.Sprintf("camera resolution %dx%d is too small", settings.Width, settings.Height))
	}

	if settings.MaxImages < 1 {
		errs = append(errs, "camera maximages must be at least 1")
	}

	switch strings.ToLower(settings.Quality) {
	case "fhd", "hd", "sd":
	default:
		errs = append(errs, fmt.Sprintf("camera quality must be fhd, hd or sd, got %q", settings.Quality))
	}

	if settings.AcquireDelay < 0 {
		errs = append(errs, "camera acquiredelay cannot be negative")
	}

	if settings.Analysis.EmitInterval < 0 {
		errs = append(errs, "camera analysis emitinterval cannot be negative")
	}

	return joinErrors("camera", errs)
}

func validateOutputSettings(settings *OutputSettings) error {
	var errs []string

	if settings.PhotoPath == "" {
		errs = append(errs, "output photopath is required")
	}
	if settings.VideoPath == "" {
		errs = append(errs, "output videopath is required")
	}
	if settings.Database == "" {
		errs = append(errs, "output database is required")
	}

	return joinErrors("output", errs)
}

func validateAudioSettings(settings *AudioSettings) error {
	var errs []string

	switch settings.Source {
	case "malgo", "silence":
	default:
		errs = append(errs, fmt.Sprintf("audio source must be 'malgo' or 'silence', got %q", settings.Source))
	}

	switch settings.SampleRate {
	case 8000, 16000, 22050, 32000, 44100, 48000:
	default:
		errs = append(errs, fmt.Sprintf("unsupported audio samplerate %d", settings.SampleRate))
	}

	if settings.Channels < 1 || settings.Channels > 2 {
		errs = append(errs, fmt.Sprintf("audio channels must be 1 or 2, got %d", settings.Channels))
	}

	if settings.BufferSize < 4096 {
		errs = append(errs, "audio buffersize must be at least 4096 bytes")
	}

	return joinErrors("audio", errs)
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("telemetry listen address %q is invalid: %w", settings.Listen, err)
	}
	return nil
}

func validateSentrySettings(settings *SentrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return fmt.Errorf("sentry is enabled but dsn is empty")
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}

	var errs []string

	u, err := url.Parse(settings.Broker)
	switch {
	case settings.Broker == "":
		errs = append(errs, "mqtt broker is required when mqtt is enabled")
	case err != nil:
		errs = append(errs, fmt.Sprintf("mqtt broker url is invalid: %v", err))
	default:
		switch u.Scheme {
		case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
		default:
			errs = append(errs, fmt.Sprintf("mqtt broker scheme %q is not supported", u.Scheme))
		}
	}

	if settings.Topic == "" {
		errs = append(errs, "mqtt topic is required when mqtt is enabled")
	}

	return joinErrors("mqtt", errs)
}

func joinErrors(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings errors: %s", section, strings.Join(errs, "; "))
}
