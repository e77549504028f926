// Package zaplogger backs telemetry.Logger with go.uber.org/zap.
package zaplogger

import (
	"context"

	"go.uber.org/zap"

	"github.com/massgen-ai/massgen/telemetry"
)

type logger struct {
	z *zap.Logger
}

// New wraps a *zap.Logger as a telemetry.Logger.
func New(z *zap.Logger) telemetry.Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &logger{z: z}
}

func fields(keyvals []any) []zap.Field {
	fs := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		fs = append(fs, zap.Any(key, keyvals[i+1]))
	}
	return fs
}

func (l *logger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.z.Debug(msg, fields(keyvals)...)
}

func (l *logger) Info(_ context.Context, msg string, keyvals ...any) {
	l.z.Info(msg, fields(keyvals)...)
}

func (l *logger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.z.Warn(msg, fields(keyvals)...)
}

func (l *logger) Error(_ context.Context, msg string, keyvals ...any) {
	l.z.Error(msg, fields(keyvals)...)
}
