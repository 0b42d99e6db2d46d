// logger.go
package logger

import (
	"errors"

	"go.uber.org/zap"
)

// LogLevel represents the configured verbosity of a Logger.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "debug"
	LogLevelInfo   LogLevel = "info"
	LogLevelWarn   LogLevel = "warn"
	LogLevelError  LogLevel = "error"
	LogLevelDPanic LogLevel = "dpanic"
	LogLevelPanic  LogLevel = "panic"
	LogLevelFatal  LogLevel = "fatal"
)

// Logger is the structured logging contract used throughout the module.
// It is satisfied by the zap-backed defaultLogger returned by BuildLogger,
// and may be nil-safe-wrapped by callers that want to no-op in tests.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field) error

	// LogError records a structured failure for one outbound request attempt.
	LogError(event, method, url string, statusCode int, err error, detail string)

	Sync() error
}

// defaultLogger implements Logger on top of a configured zap.Logger.
type defaultLogger struct {
	logger   *zap.Logger
	logLevel LogLevel
}

func (l *defaultLogger) Debug(msg string, fields ...zap.Field) {
	l.logger.Debug(msg, fields...)
}

func (l *defaultLogger) Info(msg string, fields ...zap.Field) {
	l.logger.Info(msg, fields...)
}

func (l *defaultLogger) Warn(msg string, fields ...zap.Field) {
	l.logger.Warn(msg, fields...)
}

// Error logs at error level and returns the wrapped error so call sites can
// write `return nil, log.Error("...", zap.Error(err))`.
func (l *defaultLogger) Error(msg string, fields ...zap.Field) error {
	l.logger.Error(msg, fields...)
	for _, f := range fields {
		if err, ok := f.Interface.(error); ok && f.Key == "error" {
			return err
		}
	}
	return errors.New(msg)
}

func (l *defaultLogger) LogError(event, method, url string, statusCode int, err error, detail string) {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status_code", statusCode),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if detail != "" {
		fields = append(fields, zap.String("detail", detail))
	}
	l.logger.Error("request_error", fields...)
}

func (l *defaultLogger) Sync() error {
	return l.logger.Sync()
}

// NopLogger returns a Logger that discards everything, for use in tests
// that don't care about log output (mirrors how response/success_test.go
// passes a nil logger.Logger into handlers that tolerate it).
func NopLogger() Logger {
	return &defaultLogger{logger: zap.NewNop(), logLevel: LogLevelInfo}
}
