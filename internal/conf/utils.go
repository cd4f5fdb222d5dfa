package conf

import (
	"os"
	"path/filepath"

	"github.com/tphakala/camcore/internal/errors"
)

const (
	appName        = "camcore"
	configFileName = "config.yaml"

	// ConfigDirEnv overrides the config directory search
	ConfigDirEnv = "CAMCORE_CONFIG_DIR"
)

// ConfigDirs returns the directories searched for config.yaml: the
// CAMCORE_CONFIG_DIR override, the user config dir, the working directory
// and /etc/camcore. If one of them already has a config.yaml only that one
// is returned. Otherwise the first entry is where a default config is written.
func ConfigDirs() ([]string, error) {
	var dirs []string
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		dirs = append(dirs, dir)
	}

	userDir, err := os.UserConfigDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "user_config_dir").
			Build()
	}
	dirs = append(dirs, filepath.Join(userDir, appName), ".", filepath.Join("/etc", appName))

	for _, dir := range dirs {
		if _, err := os.Stat(filepath.Join(dir, configFileName)); err == nil {
			return []string{dir}, nil
		}
	}
	return dirs, nil
}
