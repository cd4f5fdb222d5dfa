package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/camcore/internal/errors"
)

const (
	// traceLevelValue sits below slog.LevelDebug (-4)
	traceLevelValue = slog.Level(-8)

	moduleKey  = "module"
	traceIDKey = "trace_id"

	logDirPermissions = 0o700
)

var (
	globalLogger   *CentralLogger
	globalLoggerMu sync.Mutex
)

// SetGlobal installs cl as the logger returned by Global
func SetGlobal(cl *CentralLogger) {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = cl
}

// Global returns the installed CentralLogger. Before SetGlobal is called it
// returns a console logger at info level, so packages can log during init
// and in tests.
func Global() *CentralLogger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()

	if globalLogger == nil {
		globalLogger = &CentralLogger{
			handler:      newTextHandler(os.Stdout, slog.LevelInfo),
			defaultLevel: slog.LevelInfo,
		}
	}
	return globalLogger
}

type traceContextKey struct{}

// WithTraceID returns ctx carrying traceID for Logger.WithContext
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceContextKey{}, traceID)
}

func traceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceContextKey{}).(string)
	return id
}

// CentralLogger owns the output handlers and the per-module levels
type CentralLogger struct {
	mu           sync.RWMutex
	handler      slog.Handler
	file         *BufferedFileWriter
	defaultLevel slog.Level
	moduleLevels map[string]slog.Level
}

// NewCentralLogger builds console and file outputs from cfg. Missing
// sections are filled with defaults.
func NewCentralLogger(cfg *LoggingConfig) (*CentralLogger, error) {
	if cfg == nil {
		return nil, errors.Newf("logging config cannot be nil").
			Component("logger").
			Category(errors.CategoryConfiguration).
			Build()
	}
	applyConfigDefaults(cfg)

	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	cl := &CentralLogger{
		defaultLevel: parseLogLevel(cfg.DefaultLevel),
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[strings.ToLower(module)] = parseLogLevel(level)
	}

	var handlers []slog.Handler
	if cfg.Console.Enabled {
		handlers = append(handlers, newTextHandler(os.Stdout, parseLogLevel(cfg.Console.Level)))
	}
	if cfg.FileOutput.Enabled {
		if cl.file, err = openLogFile(cfg.FileOutput.Path); err != nil {
			return nil, err
		}
		handlers = append(handlers, newJSONHandler(cl.file, parseLogLevel(cfg.FileOutput.Level), tz))
	}

	switch len(handlers) {
	case 0:
		cl.handler = newTextHandler(os.Stdout, cl.defaultLevel)
	case 1:
		cl.handler = handlers[0]
	default:
		cl.handler = &multiHandler{handlers: handlers}
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New(fmt.Errorf("invalid timezone %s: %w", name, err)).
			Component("logger").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return tz, nil
}

func openLogFile(path string) (*BufferedFileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, logDirPermissions); err != nil {
			return nil, errors.New(err).
				Component("logger").
				Category(errors.CategoryFileIO).
				Context("operation", "create_log_dir").
				Build()
		}
	}
	w, err := NewBufferedFileWriter(path)
	if err != nil {
		return nil, errors.New(err).
			Component("logger").
			Category(errors.CategoryFileIO).
			Context("operation", "open_log_file").
			Build()
	}
	return w, nil
}

// Module returns a logger for name. Dotted names inherit the level of the
// closest configured ancestor, so a level set for "camera" also applies
// to "camera.audio" unless that has its own entry.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return &moduleLogger{
		central: cl,
		module:  name,
		logger:  slog.New(cl.handler),
		level:   cl.levelLocked(name),
	}
}

func (cl *CentralLogger) levelFor(module string) slog.Level {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.levelLocked(module)
}

func (cl *CentralLogger) levelLocked(module string) slog.Level {
	module = strings.ToLower(module)
	for module != "" {
		if level, ok := cl.moduleLevels[module]; ok {
			return level
		}
		i := strings.LastIndexByte(module, '.')
		if i < 0 {
			break
		}
		module = module[:i]
	}
	return cl.defaultLevel
}

// Flush pushes buffered file output to the OS
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file. Console output keeps working.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	return err
}

// NewSlogLogger returns a JSON logger writing to w, mainly for tests.
// A nil writer discards output.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		logger: slog.New(newJSONHandler(w, lvl, tz)),
		level:  lvl,
	}
}

// moduleLogger is the Logger handed out by CentralLogger.Module
type moduleLogger struct {
	central *CentralLogger
	module  string
	logger  *slog.Logger
	level   slog.Level
	fields  []Field
}

func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	module := name
	if m.module != "" {
		module = m.module + "." + name
	}
	level := m.level
	if m.central != nil {
		level = m.central.levelFor(module)
	}
	return &moduleLogger{
		central: m.central,
		module:  module,
		logger:  m.logger,
		level:   level,
		fields:  slices.Clone(m.fields),
	}
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.log(traceLevelValue, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.log(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.log(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.log(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.log(slog.LevelError, msg, fields) }

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.log(parseLogLevel(string(level)), msg, fields)
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	next := *m
	next.fields = slices.Concat(m.fields, fields)
	return &next
}

// WithContext adds the trace ID carried by ctx, if any
func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if id := traceIDFrom(ctx); id != "" {
		return m.With(String(traceIDKey, id))
	}
	return m
}

// Flush is a no-op; the CentralLogger owns the file
func (m *moduleLogger) Flush() error {
	return nil
}

func (m *moduleLogger) log(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}
	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for _, f := range m.fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	for _, f := range fields {
		attrs = append(attrs, fieldToAttr(f))
	}
	m.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
