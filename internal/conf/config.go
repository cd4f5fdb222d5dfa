// config.go: settings struct for camcore and the functions that load and save it.
package conf

import (
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
	"github.com/tphakala/camcore/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// AnalysisSettings controls the per-frame luminosity analysis.
type AnalysisSettings struct {
	Enabled      bool          `yaml:"enabled"`      // true to register the luminosity analyzer on bind
	EmitInterval time.Duration `yaml:"emitinterval"` // minimum spacing between luminosity events on the bus
}

// CameraSettings contains settings for the capture device and session.
type CameraSettings struct {
	Lens         string           `yaml:"lens"`         // "back" or "front"
	FPS          int              `yaml:"fps"`          // frame delivery rate
	Width        int              `yaml:"width"`        // frame width in pixels
	Height       int              `yaml:"height"`       // frame height in pixels
	MaxImages    int              `yaml:"maximages"`    // frames that may be outstanding per stream before delivery stalls
	Quality      string           `yaml:"quality"`      // preferred recording quality: "fhd", "hd" or "sd"
	AcquireDelay time.Duration    `yaml:"acquiredelay"` // simulated provider start-up latency
	Analysis     AnalysisSettings `yaml:"analysis"`
}

// OutputSettings contains the media output locations.
type OutputSettings struct {
	PhotoPath string `yaml:"photopath"` // directory for still captures
	VideoPath string `yaml:"videopath"` // directory for recordings
	Database  string `yaml:"database"`  // sqlite media index, ":memory:" keeps it in RAM
}

// PermissionSettings selects where capability grants come from.
type PermissionSettings struct {
	File       string `yaml:"file"`       // YAML grants file; empty uses the static grants below
	Camera     bool   `yaml:"camera"`     // static camera grant
	Microphone bool   `yaml:"microphone"` // static microphone grant
}

// AudioSettings contains settings for the recording audio track.
type AudioSettings struct {
	Source     string `yaml:"source"`     // "malgo" for a capture device, "silence" for a synthetic track
	Device     string `yaml:"device"`     // capture device name, empty for system default
	SampleRate int    `yaml:"samplerate"` // PCM sample rate
	Channels   int    `yaml:"channels"`   // PCM channel count
	BufferSize int    `yaml:"buffersize"` // ring buffer size in bytes
}

// TelemetrySettings controls the metrics and control HTTP endpoint.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port
}

// SentrySettings controls error reporting.
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// MQTTSettings contains settings for publishing observer events over MQTT.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`   // tcp://host:1883
	Topic    string `yaml:"topic"`    // topic prefix, event type is appended
	ClientID string `yaml:"clientid"` // empty generates one
	Username string `yaml:"username"`
	Password string `yaml:"password"` // may reference ${ENV} variables

	PasswordFile string `yaml:"passwordfile"` // read the password from this file instead
}

// Settings contains all configuration options for camcore.
type Settings struct {
	Debug bool `yaml:"debug"`

	Camera      CameraSettings       `yaml:"camera"`
	Output      OutputSettings       `yaml:"output"`
	Permissions PermissionSettings   `yaml:"permissions"`
	Audio       AudioSettings        `yaml:"audio"`
	Logging     logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Telemetry   TelemetrySettings    `yaml:"telemetry"`
	Sentry      SentrySettings       `yaml:"sentry"`
	MQTT        MQTTSettings         `yaml:"mqtt"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file into Settings using the global viper
// instance, so flags bound by the cobra root command take precedence.
func Load() (*Settings, error) {
	settings, err := LoadFrom(viper.GetViper(), "")
	if err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// LoadFrom reads configuration into v. An explicit configFile skips the
// default search paths and is not created when missing.
func LoadFrom(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "init_viper").
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// resolveSecrets replaces credential references with their values
func resolveSecrets(settings *Settings) error {
	if settings.MQTT.Enabled {
		password, err := secrets.Resolve(settings.MQTT.PasswordFile, settings.MQTT.Password)
		if err != nil {
			return err
		}
		settings.MQTT.Password = password
	}

	if settings.Sentry.Enabled {
		dsn, err := secrets.Expand(settings.Sentry.DSN)
		if err != nil {
			return err
		}
		settings.Sentry.DSN = dsn
	}
	return nil
}

// initViper sets defaults and reads the configuration file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := ConfigDirs()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if stderrors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back.
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, configFileName)

	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil { //nolint:gosec // config is not secret by default
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file",
		logger.String("path", configPath))

	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// GetSettings returns the settings loaded by Load, or nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath atomically.
// Comments and ordering of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// Redacted returns a copy of the settings safe to print.
func (s *Settings) Redacted() Settings {
	c := *s
	if c.MQTT.Password != "" {
		c.MQTT.Password = "[REDACTED]"
	}
	if c.Sentry.DSN != "" {
		c.Sentry.DSN = "[REDACTED]"
	}
	c.MQTT.Broker = logger.RedactSensitiveData(c.MQTT.Broker)
	return c
}
