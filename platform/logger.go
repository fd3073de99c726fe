// Package platform contains the small ambient interfaces (logging) shared
// by every pipeline package, so that none of them needs to import a
// concrete logging backend directly.
package platform

import apexlog "github.com/apex/log"

// Logger is the logger used throughout this module. The interface is
// intentionally narrow so that callers can plug in any backend (or a
// no-op one in tests) without pulling in apex/log's full surface.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)

	// Errorf formats and emits an error message.
	Errorf(format string, v ...any)

	// Error emits an error message.
	Error(message string)
}

// apexLogger adapts the global apex/log logger to [Logger].
type apexLogger struct{}

// Default is the [Logger] backed by apex/log's default handler. CLIs
// should call [apexlog.SetHandler] before using this logger if they
// want something other than the text handler on stderr.
var Default Logger = &apexLogger{}

func (*apexLogger) Debugf(format string, v ...any) { apexlog.Debugf(format, v...) }
func (*apexLogger) Debug(message string)           { apexlog.Debug(message) }
func (*apexLogger) Infof(format string, v ...any)  { apexlog.Infof(format, v...) }
func (*apexLogger) Info(message string)            { apexlog.Info(message) }
func (*apexLogger) Warnf(format string, v ...any)  { apexlog.Warnf(format, v...) }
func (*apexLogger) Warn(message string)            { apexlog.Warn(message) }
func (*apexLogger) Errorf(format string, v ...any) { apexlog.Errorf(format, v...) }
func (*apexLogger) Error(message string)           { apexlog.Error(message) }

var _ Logger = &apexLogger{}

// NullLogger is a [Logger] that discards everything. Useful in tests that
// don't care about log output but still need to satisfy the interface.
type NullLogger struct{}

func (*NullLogger) Debugf(format string, v ...any) {}
func (*NullLogger) Debug(message string)           {}
func (*NullLogger) Infof(format string, v ...any)  {}
func (*NullLogger) Info(message string)            {}
func (*NullLogger) Warnf(format string, v ...any)  {}
func (*NullLogger) Warn(message string)            {}
func (*NullLogger) Errorf(format string, v ...any) {}
func (*NullLogger) Error(message string)           {}

var _ Logger = &NullLogger{}
