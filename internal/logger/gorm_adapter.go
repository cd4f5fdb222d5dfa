package logger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/camcore/internal/errors"
)

// GormLoggerAdapter routes GORM output through a module logger. Statements
// are logged at trace, so they only appear when the owning module is set
// to "trace" in logging.module_levels.
type GormLoggerAdapter struct {
	log  Logger
	slow time.Duration
}

var _ gormlogger.Interface = (*GormLoggerAdapter)(nil)

// NewGormLoggerAdapter logs statements slower than slow at warn; 0 disables that
func NewGormLoggerAdapter(log Logger, slow time.Duration) *GormLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormLoggerAdapter{log: log, slow: slow}
}

// LogMode is ignored; levels come from the central logger
func (a *GormLoggerAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return a
}

func (a *GormLoggerAdapter) Info(_ context.Context, msg string, data ...any) {
	a.log.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.log.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, data ...any) {
	a.log.Error(fmt.Sprintf(msg, data...))
}

// Trace logs one statement. Lookups that find nothing are normal for the
// media index and stay at trace.
func (a *GormLoggerAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	log := a.log.WithContext(ctx).With(
		String("sql", sql),
		Int64("rows_affected", rows),
		Duration("elapsed", elapsed))

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		log.Warn("query failed", Error(err))
	case a.slow > 0 && elapsed > a.slow:
		log.Warn("slow query", Duration("threshold", a.slow))
	default:
		log.Trace("query")
	}
}
