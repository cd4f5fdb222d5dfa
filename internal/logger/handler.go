package logger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/tphakala/camcore/internal/errors"
)

// parseLogLevel maps a config level to slog; unknown values mean info
func parseLogLevel(level string) slog.Level {
	switch LogLevel(level) {
	case LogLevelTrace:
		return traceLevelValue
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replaceLevel prints the custom trace level by name
func replaceLevel(a slog.Attr) slog.Attr {
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == traceLevelValue {
		return slog.String(slog.LevelKey, "TRACE")
	}
	return a
}

// newTextHandler is the console format: text, no timestamps
func newTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch {
			case len(groups) > 0:
				return a
			case a.Key == slog.TimeKey:
				return slog.Attr{}
			case a.Key == slog.LevelKey:
				return replaceLevel(a)
			}
			return a
		},
	})
}

// newJSONHandler is the file format: JSON with RFC3339 timestamps in tz
func newJSONHandler(w io.Writer, level slog.Level, tz *time.Location) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch {
			case len(groups) > 0:
				return a
			case a.Key == slog.TimeKey && tz != nil:
				return slog.String(slog.TimeKey, a.Value.Time().In(tz).Format(time.RFC3339))
			case a.Key == slog.LevelKey:
				return replaceLevel(a)
			}
			return a
		},
	})
}

// fieldToAttr converts a Field. Floats are rounded to three decimals and
// durations are rendered as strings like "1.5s".
func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float32:
		return slog.Float64(f.Key, math.Round(float64(v)*1000)/1000)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.Round(time.Millisecond).String())
	default:
		return slog.Any(f.Key, v)
	}
}

// multiHandler fans records out to the console and file handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

//nolint:gocritic // slog.Handler requires the record by value
func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
