// Package logger provides a structured, module-aware logging system built on Go's standard log/slog.
//
// Create the central logger once at startup from configuration, register it
// with SetGlobal, and derive module-scoped loggers from it:
//
//	central, err := logger.NewCentralLogger(&settings.Logging)
//	if err != nil {
//	    return err
//	}
//	defer central.Close()
//	logger.SetGlobal(central)
//
//	log := central.Module("camera")
//	log.Info("session bound",
//	    logger.String("lens", "back"),
//	    logger.Int("fps", 30))
//
// Sub-modules join names with a dot, so central.Module("camera").Module("analysis")
// logs with module="camera.analysis".
//
// Console output is human-readable text without timestamps. File output is
// JSON with RFC3339 timestamps for log aggregation.
//
// Use NewSlogLogger with a bytes.Buffer or io.Discard in tests.
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel represents log severity levels
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field represents a structured log field.
// Keys are interned using unique.Make() so repeated keys share one allocation.
type Field struct {
	Key   string
	Value any
}

func internKey(key string) string {
	return unique.Make(key).Value()
}

var errorKey = internKey("error")

// Logger is the centralized logging interface for dependency injection
type Logger interface {
	// Module returns a logger scoped to a specific module
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	// Log with explicit level
	Log(level LogLevel, msg string, fields ...Field)

	// Flush ensures all buffered logs are written
	Flush() error
}

// String, Int, Int64, Uint64, Float64 and Bool build typed fields. Float
// values are rounded to three decimals on output.
func String(key, value string) Field {
	return Field{Key: internKey(key), Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: internKey(key), Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: internKey(key), Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: internKey(key), Value: value}
}

// Error always uses the key "error"; a nil err logs a null value
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

// Duration renders as "1.5s" rather than nanoseconds
func Duration(key string, value time.Duration) Field {
	return Field{Key: internKey(key), Value: value}
}

// Any falls back to slog.Any; prefer the typed constructors
func Any(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
