package logger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

// LogrusLogger adapts gorm's logger interface onto logrus. Routine
// statements log at trace because collection runs insert premium records in
// large batches; only slow statements and errors surface by default.
type LogrusLogger struct {
	logger        *logrus.Logger
	slowThreshold time.Duration
}

func NewLogrusLogger() *LogrusLogger {
	return &LogrusLogger{
		logger:        logrus.StandardLogger(),
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *LogrusLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	return &newLogger
}

func (l *LogrusLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Infof(msg, data...)
}

func (l *LogrusLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Warnf(msg, data...)
}

func (l *LogrusLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.logger.WithContext(ctx).Errorf(msg, data...)
}

func (l *LogrusLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := logrus.Fields{
		"elapsed": elapsed,
		"rows":    rows,
		"sql":     sql,
	}

	if err != nil {
		l.logger.WithContext(ctx).WithFields(fields).Error(err)
	} else if elapsed > l.slowThreshold {
		l.logger.WithContext(ctx).WithFields(fields).Warnf("SLOW SQL >= %v", l.slowThreshold)
	} else {
		l.logger.WithContext(ctx).WithFields(fields).Trace("SQL")
	}
}
