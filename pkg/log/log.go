// Package log provides the contextual structured logger used throughout the
// station core. It mirrors the logging idiom of the LNS-side stack this
// engine talks to: a logger is attached to a context.Context, fields are
// accumulated with WithField(s), and errors are attached with WithError
// before picking a severity.
package log

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Fields is an ordered key/value field list: alternating keys and values.
type Fields = []interface{}

// Interface is the logger surface the rest of the core depends on.
type Interface interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Interface
	WithFields(fields Fields) Interface
	WithError(err error) Interface
}

type zapLogger struct {
	l *zap.SugaredLogger
}

// New returns a Logger backed by a production zap configuration at the
// given level.
func New(level zapcore.Level) Interface {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{l: z.Sugar()}
}

// Noop returns a Logger that discards everything, for tests.
func Noop() Interface {
	return &zapLogger{l: zap.NewNop().Sugar()}
}

func (z *zapLogger) Debug(msg string) { z.l.Debug(msg) }
func (z *zapLogger) Info(msg string)  { z.l.Info(msg) }
func (z *zapLogger) Warn(msg string)  { z.l.Warn(msg) }
func (z *zapLogger) Error(msg string) { z.l.Error(msg) }
func (z *zapLogger) Fatal(msg string) { z.l.Fatal(msg) }

func (z *zapLogger) Debugf(format string, args ...interface{}) { z.l.Debugf(format, args...) }
func (z *zapLogger) Infof(format string, args ...interface{})  { z.l.Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...interface{})  { z.l.Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...interface{}) { z.l.Errorf(format, args...) }

func (z *zapLogger) WithField(key string, value interface{}) Interface {
	return &zapLogger{l: z.l.With(key, value)}
}

func (z *zapLogger) WithFields(fields Fields) Interface {
	return &zapLogger{l: z.l.With(fields...)}
}

func (z *zapLogger) WithError(err error) Interface {
	return &zapLogger{l: z.l.With("error", err)}
}

type ctxKeyType struct{}

var ctxKey = ctxKeyType{}

// NewContext returns a context carrying the given logger.
func NewContext(ctx context.Context, logger Interface) context.Context {
	return context.WithValue(ctx, ctxKey, logger)
}

// NewContextWithField returns a context carrying the logger from ctx with
// one additional field.
func NewContextWithField(ctx context.Context, key string, value interface{}) context.Context {
	return NewContext(ctx, FromContext(ctx).WithField(key, value))
}

// NewContextWithFields returns a context carrying the logger from ctx with
// additional fields.
func NewContextWithFields(ctx context.Context, fields Fields) context.Context {
	return NewContext(ctx, FromContext(ctx).WithFields(fields))
}

// FromContext returns the logger attached to ctx, or a no-op logger if none
// was attached.
func FromContext(ctx context.Context) Interface {
	if l, ok := ctx.Value(ctxKey).(Interface); ok {
		return l
	}
	return Noop()
}
