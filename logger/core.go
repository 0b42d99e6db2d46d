// core.go
package logger

import "go.uber.org/zap/zapcore"

// customCore wraps a zapcore.Core so BuildLogger can attach module-wide
// behavior (field ordering, redaction, etc.) without touching the encoder
// configuration itself. Today it is a transparent delegate; it exists as the
// seam future cross-cutting log processing hangs off of.
type customCore struct {
	zapcore.Core
}

func (c *customCore) With(fields []zapcore.Field) zapcore.Core {
	return &customCore{c.Core.With(fields)}
}

func (c *customCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *customCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, fields)
}
