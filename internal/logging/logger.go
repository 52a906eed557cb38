// Package logging wraps zap in a small structured logger for the
// workbench's services.
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger with context-aware convenience methods.
type Logger struct {
	zap *zap.Logger
}

// Config controls the logger's output format and level.
type Config struct {
	// Level is one of zapcore's level names (debug, info, warn, error).
	Level string
	// Format is "json" (default) or "console".
	Format string
}

// New builds a Logger from cfg. An empty Level defaults to "info"; an
// empty Format defaults to "json".
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewJSONEncoder(encoderCfg)
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level)
	return &Logger{zap: zap.New(core)}, nil
}

// Nop returns a Logger that discards everything, for tests and
// callers that haven't configured logging.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// With returns a Logger with additional constant fields attached.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Info(msg, append(contextFields(ctx), fields...)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Warn(msg, append(contextFields(ctx), fields...)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Error(msg, append(contextFields(ctx), fields...)...)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Debug(msg, append(contextFields(ctx), fields...)...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.zap.Sync() }

type ctxKey struct{}

// WithSessionID attaches a session id to ctx — the one context-carried
// field this module's operations care about, for tying log lines to the
// safety gate's audit trail.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, sessionID)
}

func contextFields(ctx context.Context) []zap.Field {
	if v, ok := ctx.Value(ctxKey{}).(string); ok && v != "" {
		return []zap.Field{zap.String("session_id", v)}
	}
	return nil
}
