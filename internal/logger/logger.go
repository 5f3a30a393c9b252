// Package logger is the agent's operational logging stack: structured
// logrus output to console and/or a rotated file, with optional async
// buffering so logging never stalls the archiving pipeline's workers.
package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Logger is the interface the rest of the agent logs through. Component
// loggers are cheap to derive and safe for concurrent use.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	// Flush forces buffered output to disk; Close flushes and releases
	// the underlying writers. Flush is a no-op for console-only loggers;
	// Close on any logger discards all later output from every logger of
	// the same factory.
	Flush() error
	Close() error
}

// entryLogger adapts a logrus entry to the Logger interface. All derived
// loggers share the factory's core, so Flush/Close act on the real writers
// no matter which derivation they're called on.
type entryLogger struct {
	entry *logrus.Entry
	core  *core
}

func (l *entryLogger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *entryLogger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *entryLogger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *entryLogger) Error(args ...interface{}) { l.entry.Error(args...) }
func (l *entryLogger) Fatal(args ...interface{}) { l.entry.Fatal(args...) }

func (l *entryLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *entryLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *entryLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *entryLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *entryLogger) WithField(key string, value interface{}) Logger {
	return &entryLogger{entry: l.entry.WithField(key, value), core: l.core}
}

func (l *entryLogger) WithFields(fields map[string]interface{}) Logger {
	return &entryLogger{entry: l.entry.WithFields(logrus.Fields(fields)), core: l.core}
}

func (l *entryLogger) WithError(err error) Logger {
	return &entryLogger{entry: l.entry.WithError(err), core: l.core}
}

func (l *entryLogger) Flush() error { return l.core.flush() }
func (l *entryLogger) Close() error { return l.core.close() }

func parseLevel(level string) (logrus.Level, error) {
	switch level {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	case "fatal":
		return logrus.FatalLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("logger: invalid level %q", level)
	}
}
