package common

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Logger is the logging surface shared by every package. Messages are printf
// style and take the request context first.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...interface{})
	Info(ctx context.Context, msg string, args ...interface{})
	Warn(ctx context.Context, msg string, args ...interface{})
	Error(ctx context.Context, msg string, args ...interface{})
	With(key string, value interface{}) Logger
	Sync() error
}

type implLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger builds a zap backed Logger. format is "console" or "json".
func NewLogger(level, format string) (Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console", "":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = lvl
	cfg.DisableStacktrace = true

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &implLogger{sugar: base.Sugar()}, nil
}

// NopLogger discards everything. Used by tests.
func NopLogger() Logger {
	return &implLogger{sugar: zap.NewNop().Sugar()}
}

func (l *implLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.sugar.Debugf(msg, args...)
}

func (l *implLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.sugar.Infof(msg, args...)
}

func (l *implLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.sugar.Warnf(msg, args...)
}

func (l *implLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.sugar.Errorf(msg, args...)
}

func (l *implLogger) With(key string, value interface{}) Logger {
	return &implLogger{sugar: l.sugar.With(key, value)}
}

func (l *implLogger) Sync() error {
	return l.sugar.Sync()
}
