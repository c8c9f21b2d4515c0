// Package logger wraps a zap sugared logger shared across the service.
// Request-scoped fields travel in the context.
package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global       *zap.SugaredLogger
	defaultLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() {
	SetLogger(New(defaultLevel))
}

type contextKey struct{}

// New creates a console logger writing to stdout at the given level
func New(level zapcore.LevelEnabler, options ...zap.Option) *zap.SugaredLogger {
	if level == nil {
		level = defaultLevel
	}

	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "message",
		LevelKey:         "level",
		CallerKey:        "caller",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	})

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	return zap.New(core, options...).Sugar()
}

// ParseLevel converts a string such as "debug" or "warn" to a zap level
func ParseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info", "":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// SetLevel changes the level of the global logger
func SetLevel(level zapcore.Level) {
	defaultLevel.SetLevel(level)
}

// Logger returns the global logger
func Logger() *zap.SugaredLogger {
	return global
}

// SetLogger replaces the global logger. Not safe for concurrent use.
func SetLogger(l *zap.SugaredLogger) {
	global = l
}

// Sync flushes buffered entries of the global logger
func Sync() {
	_ = global.Sync()
}

// ToContext returns a context carrying l
func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// WithKV returns a context whose logger has the extra key/value pairs attached
func WithKV(ctx context.Context, kvs ...any) context.Context {
	return ToContext(ctx, FromContext(ctx).With(kvs...))
}

// FromContext returns the logger stored in ctx, or the global logger
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*zap.SugaredLogger); ok && l != nil {
			return l
		}
	}
	return global
}

// DebugKV writes a debug message with key/value pairs
func DebugKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Debugw(message, kvs...)
}

// InfoKV writes an info message with key/value pairs
func InfoKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Infow(message, kvs...)
}

// WarnKV writes a warning with key/value pairs
func WarnKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Warnw(message, kvs...)
}

// ErrorKV writes an error message with key/value pairs
func ErrorKV(ctx context.Context, message string, kvs ...any) {
	FromContext(ctx).Errorw(message, kvs...)
}

// Infof writes a formatted info message
func Infof(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Infof(format, args...)
}

// Warnf writes a formatted warning
func Warnf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Warnf(format, args...)
}

// Fatalf writes a formatted message and exits the process
func Fatalf(ctx context.Context, format string, args ...any) {
	FromContext(ctx).Fatalf(format, args...)
}
