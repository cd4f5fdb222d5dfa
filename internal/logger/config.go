package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `yaml:"default_level" json:"default_level" mapstructure:"default_level"` // default log level for all modules
	Timezone     string            `yaml:"timezone" json:"timezone" mapstructure:"timezone"`                // "Local", "UTC", or IANA timezone name
	Console      *ConsoleOutput    `yaml:"console" json:"console" mapstructure:"console"`                   // console output configuration
	FileOutput   *FileOutput       `yaml:"file_output" json:"file_output" mapstructure:"file_output"`       // file output configuration
	ModuleLevels map[string]string `yaml:"module_levels" json:"module_levels" mapstructure:"module_levels"` // per-module log levels
}

// ConsoleOutput represents console logging configuration.
// Console output uses human-readable text format without timestamps;
// journald or the container runtime adds them.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// FileOutput represents file logging configuration.
// File output uses JSON format with RFC3339 timestamps.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
	Level   string `yaml:"level" json:"level" mapstructure:"level"`
}

// Default values for logging configuration.
// These match the defaults in conf/defaults.go.
const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/camcore.log"
	DefaultConsoleEnabled = true
	DefaultFileEnabled    = false
)

// applyConfigDefaults fills nil configuration sections so a partial
// config file still yields console logging.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{
			Enabled: DefaultFileEnabled,
			Path:    DefaultLogPath,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.ModuleLevels == nil {
		cfg.ModuleLevels = make(map[string]string)
	}
}
