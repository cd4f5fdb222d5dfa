// Package observability exposes camcore metrics over a Prometheus-compatible endpoint.
package observability

import "github.com/tphakala/camcore/internal/logger"

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
