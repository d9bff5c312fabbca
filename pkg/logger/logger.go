// Package logger provides structured logging for edsync
package logger

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

// contextKey is the type for context keys
type contextKey string

const (
	// RunIDKey is the context key for the run identifier
	RunIDKey contextKey = "run_id"
	// SourceKeyKey is the context key for the source key (school year)
	SourceKeyKey contextKey = "source_key"
	// EndpointKey is the context key for the endpoint path
	EndpointKey contextKey = "endpoint"
)

// Config represents logger configuration
type Config struct {
	Level       string   `yaml:"level" json:"level" mapstructure:"level"`
	Development bool     `yaml:"development" json:"development" mapstructure:"development"`
	Encoding    string   `yaml:"encoding" json:"encoding" mapstructure:"encoding"` // json or console
	OutputPaths []string `yaml:"output_paths" json:"output_paths" mapstructure:"output_paths"`
}

// Init initializes the global logger
func Init(cfg Config) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set replaces the global logger. Tests use it to install zaptest loggers.
func Set(l *zap.Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// newLogger creates a new zap logger
func newLogger(cfg Config) (*zap.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "json"
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// Get returns the global logger
func Get() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	// Create a default logger if not initialized
	if err := Init(Config{Level: "info", Encoding: "json"}); err != nil {
		fallback, _ := zap.NewProduction()
		Set(fallback)
	}
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// WithRun returns a context carrying the run identifier and source key.
func WithRun(ctx context.Context, runID, sourceKey string) context.Context {
	ctx = context.WithValue(ctx, RunIDKey, runID)
	return context.WithValue(ctx, SourceKeyKey, sourceKey)
}

// WithEndpoint returns a context carrying the endpoint path.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, EndpointKey, endpoint)
}

// WithContext returns a logger with context values
func WithContext(ctx context.Context) *zap.Logger {
	logger := Get()

	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		logger = logger.With(zap.String("run_id", runID))
	}

	if sourceKey, ok := ctx.Value(SourceKeyKey).(string); ok {
		logger = logger.With(zap.String("source_key", sourceKey))
	}

	if endpoint, ok := ctx.Value(EndpointKey).(string); ok {
		logger = logger.With(zap.String("endpoint", endpoint))
	}

	return logger
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
	os.Exit(1)
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
