package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestBuildLogger_DefaultsToInfo(t *testing.T) {
	log := BuildLogger(LogLevelInfo, LogOutputHumanReadable, "api.example.com")
	assert.NotNil(t, log)
	log.Info("hello", zap.String("k", "v"))
}

func TestDefaultLogger_ErrorReturnsWrappedError(t *testing.T) {
	log := NopLogger()
	cause := assert.AnError
	err := log.Error("operation failed", zap.Error(cause))
	assert.Equal(t, cause, err)
}

func TestDefaultLogger_ErrorWithoutCauseReturnsMessage(t *testing.T) {
	log := NopLogger()
	err := log.Error("operation failed")
	assert.EqualError(t, err, "operation failed")
}

func TestLogError_DoesNotPanicWithoutCause(t *testing.T) {
	log := NopLogger()
	assert.NotPanics(t, func() {
		log.LogError("probe_failed", "GET", "http://example.com", 0, nil, "")
	})
}
