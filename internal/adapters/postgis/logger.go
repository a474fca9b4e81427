package postgis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQueryThreshold is the duration above which statements are logged as warnings.
const slowQueryThreshold = 5 * time.Second

// gormLogger forwards gorm's SQL log to slog.
type gormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

func newGormLogger(l *slog.Logger) *gormLogger {
	return &gormLogger{logger: l.With("component", "datastore"), level: logger.Warn}
}

// LogMode implements logger.Interface.
func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

// Info implements logger.Interface.
func (g *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Info {
		g.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Warn implements logger.Interface.
func (g *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Warn {
		g.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Error implements logger.Interface.
func (g *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Error {
		g.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace implements logger.Interface.
func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		sql, rows := fc()
		g.logger.ErrorContext(ctx, "statement failed",
			"sql", sql, "rows", rows, "duration", elapsed, "error", err)
	case elapsed > slowQueryThreshold && g.level >= logger.Warn:
		sql, rows := fc()
		g.logger.WarnContext(ctx, "slow statement",
			"sql", sql, "rows", rows, "duration", elapsed)
	case g.level >= logger.Info:
		sql, rows := fc()
		g.logger.DebugContext(ctx, "statement",
			"sql", sql, "rows", rows, "duration", elapsed)
	}
}
