package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger. It discards everything until Init is called,
// so packages can log from tests without setup.
var Log = zap.NewNop()

// Config holds logger configuration
type Config struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Build creates a logger from cfg. An empty level means info; an unknown one
// is an error.
func Build(cfg *Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}
	if cfg.Output == "file" && cfg.FilePath != "" {
		zc.OutputPaths = []string{cfg.FilePath}
		zc.ErrorOutputPaths = []string{cfg.FilePath}
	}

	return zc.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Init builds the process logger from cfg and installs it
func Init(cfg *Config) error {
	built, err := Build(cfg)
	if err != nil {
		return err
	}
	Log = built
	return nil
}

type contextKey struct{}

// WithRequestID attaches a request id for FromContext to pick up
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// FromContext returns the process logger tagged with the request id, if any
func FromContext(ctx context.Context) *zap.Logger {
	if requestID, ok := ctx.Value(contextKey{}).(string); ok {
		return Log.With(zap.String("request_id", requestID))
	}
	return Log
}

// Named returns a child of the process logger for one component
func Named(component string) *zap.Logger {
	return Log.Named(component)
}

// Debug logs at debug level on the process logger
func Debug(msg string, fields ...zap.Field) {
	skipped().Debug(msg, fields...)
}

// Info logs at info level on the process logger
func Info(msg string, fields ...zap.Field) {
	skipped().Info(msg, fields...)
}

// Warn logs at warn level on the process logger
func Warn(msg string, fields ...zap.Field) {
	skipped().Warn(msg, fields...)
}

// Error logs at error level on the process logger
func Error(msg string, fields ...zap.Field) {
	skipped().Error(msg, fields...)
}

// skipped reports the helper's caller rather than the helper
func skipped() *zap.Logger {
	return Log.WithOptions(zap.AddCallerSkip(1))
}

// Sync flushes buffered entries
func Sync() error {
	return Log.Sync()
}
