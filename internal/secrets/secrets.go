// Package secrets resolves credentials from environment references and
// mounted secret files so they need not be written into config.yaml.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
)

// ComponentSecrets identifies errors raised while resolving secrets
const ComponentSecrets = "secrets"

// maxFileSize limits secret file reads; secrets are tokens and passwords
const maxFileSize = 64 * 1024

// Expand replaces ${VAR} and ${VAR:-fallback} references with environment
// values. A referenced variable that is unset and has no fallback is an error.
func Expand(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component(ComponentSecrets).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file such as /run/secrets/mqtt_password. Trailing
// newlines are trimmed. Files readable by group or others are accepted with
// a warning.
func ReadFile(path string) (string, error) {
	clean := filepath.Clean(path)
	fail := func(err error) (string, error) {
		return "", errors.New(err).
			Component(ComponentSecrets).
			Category(errors.CategoryConfiguration).
			Context("path", clean).
			Build()
	}

	info, err := os.Stat(clean)
	switch {
	case err != nil:
		return fail(err)
	case !info.Mode().IsRegular():
		return fail(errors.NewStd("secret path is not a regular file"))
	case info.Size() > maxFileSize:
		return fail(errors.NewStd("secret file too large"))
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return fail(err)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return fail(errors.NewStd("secret file is empty"))
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return Expand(value)
}
