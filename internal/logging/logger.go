// Package logging provides the process-wide structured logger, built on zap.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kyleking/dataverse-agent/internal/config"
)

const (
	// File permissions for log directories and files
	logDirPerm  = 0755
	logFilePerm = 0644

	redacted = "[REDACTED]"
)

// Logger provides structured logging capabilities
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
	file  *os.File
}

// Global logger instance
var (
	globalLogger *Logger
	loggerOnce   sync.Once
	nopLogger    = &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
)

// InitializeLogger initializes the global logger with the given configuration
func InitializeLogger(cfg config.LoggingConfig) error {
	var err error

	loggerOnce.Do(func() {
		globalLogger, err = NewLogger(cfg)
	})

	return err
}

// NewLogger creates a new logger with the given configuration
func NewLogger(cfg config.LoggingConfig) (*Logger, error) {
	var (
		output io.Writer
		file   *os.File
	)

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, errors.New("log file path is required when output is 'file'")
		}

		if err := os.MkdirAll(filepath.Dir(cfg.File), logDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		file = f
		output = f
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := newWithWriter(output, cfg.Level, cfg.Format, cfg.AddSource || strings.EqualFold(cfg.Level, "debug"))
	logger.file = file

	return logger, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return nopLogger
}

func newWithWriter(w io.Writer, level, format string, addCaller bool) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	atomic := zap.NewAtomicLevelAt(parseLogLevel(level))
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), atomic)

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if addCaller {
		opts = append(opts, zap.AddCaller())
	}

	return &Logger{
		zap:   zap.New(core, opts...),
		level: atomic,
	}
}

// parseLogLevel parses a string log level into a zap level
func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level string) bool {
	return l.level.Enabled(parseLogLevel(level))
}

func (l *Logger) derive(fields ...zap.Field) *Logger {
	return &Logger{
		zap:   l.zap.With(fields...),
		level: l.level,
		file:  l.file,
	}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(field(key, value))
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zfields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zfields = append(zfields, field(k, v))
	}

	return l.derive(zfields...)
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}

	return l.derive(zap.Error(err))
}

func field(key string, value interface{}) zap.Field {
	if isRedactKey(key) {
		return zap.String(key, redacted)
	}

	return zap.Any(key, value)
}

func isRedactKey(key string) bool {
	k := strings.ToLower(key)
	for _, marker := range []string{"token", "secret", "authorization", "password", "api_key", "apikey"} {
		if strings.Contains(k, marker) {
			return true
		}
	}

	return false
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.zap.Debug(message)
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level.Enabled(zapcore.DebugLevel) {
		l.zap.Debug(fmt.Sprintf(format, args...))
	}
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.zap.Info(message)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zap.Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.zap.Warn(message)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zap.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message
func (l *Logger) Error(message string) {
	l.zap.Error(message)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zap.Error(fmt.Sprintf(format, args...))
}

// ErrorWithErr logs an error message with an associated error
func (l *Logger) ErrorWithErr(message string, err error) {
	l.zap.Error(message, zap.Error(err))
}

// Close flushes buffered entries and closes any log file
func (l *Logger) Close() error {
	_ = l.zap.Sync()

	if l.file != nil {
		return l.file.Close()
	}

	return nil
}

// Global logging functions that use the global logger

// Debug logs a debug message using the global logger
func Debug(message string) {
	GetLogger().Debug(message)
}

// Debugf logs a formatted debug message using the global logger
func Debugf(format string, args ...interface{}) {
	GetLogger().Debugf(format, args...)
}

// Info logs an info message using the global logger
func Info(message string) {
	GetLogger().Info(message)
}

// Infof logs a formatted info message using the global logger
func Infof(format string, args ...interface{}) {
	GetLogger().Infof(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(message string) {
	GetLogger().Warn(message)
}

// Warnf logs a formatted warning message using the global logger
func Warnf(format string, args ...interface{}) {
	GetLogger().Warnf(format, args...)
}

// Error logs an error message using the global logger
func Error(message string) {
	GetLogger().Error(message)
}

// Errorf logs a formatted error message using the global logger
func Errorf(format string, args ...interface{}) {
	GetLogger().Errorf(format, args...)
}

// ErrorWithErr logs an error message with an associated error using the global logger
func ErrorWithErr(message string, err error) {
	GetLogger().ErrorWithErr(message, err)
}

// WithField adds a field to the global logger context
func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

// WithFields adds multiple fields to the global logger context
func WithFields(fields map[string]interface{}) *Logger {
	return GetLogger().WithFields(fields)
}

// WithError adds an error to the global logger context
func WithError(err error) *Logger {
	return GetLogger().WithError(err)
}

// GetLogger returns the global logger, or a no-op logger before initialization
func GetLogger() *Logger {
	if globalLogger == nil {
		return nopLogger
	}

	return globalLogger
}

// SetupFallbackLogger sets up a basic logger for cases where configuration fails
func SetupFallbackLogger() {
	globalLogger = newWithWriter(os.Stderr, "info", "text", false)
}

// LoggerMiddleware provides a way to wrap functions with logging
func LoggerMiddleware(operation string, fn func() error) error {
	logger := WithField("operation", operation)
	logger.Debug("Starting operation")

	start := time.Now()
	err := fn()
	duration := time.Since(start)

	if err != nil {
		logger.WithField("duration", duration).ErrorWithErr("Operation failed", err)
	} else {
		logger.WithField("duration", duration).Debug("Operation completed successfully")
	}

	return err
}
