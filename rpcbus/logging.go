package rpcbus

import (
	"fmt"
	"log"

	"github.com/sirupsen/logrus"
)

// Logger is the canonical protocol for structured logging in the bridge.
// This enables dependency injection of loggers for testability.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// defaultLogger wraps the standard log package.
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *defaultLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *defaultLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *defaultLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

// DefaultLogger returns a logger backed by the standard log package.
func DefaultLogger() Logger {
	return &defaultLogger{}
}

// noopLogger discards all output.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, keysAndValues ...any) {}
func (l *noopLogger) Info(msg string, keysAndValues ...any)  {}
func (l *noopLogger) Warn(msg string, keysAndValues ...any)  {}
func (l *noopLogger) Error(msg string, keysAndValues ...any) {}

// NoopLogger returns a logger that discards all output.
func NoopLogger() Logger {
	return &noopLogger{}
}

// logrusLogger adapts a logrus logger to the Logger protocol.
type logrusLogger struct {
	log logrus.FieldLogger
}

// NewLogrusLogger returns a Logger backed by logrus.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return &logrusLogger{log: l}
}

func (l *logrusLogger) Debug(msg string, keysAndValues ...any) {
	l.log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(toFields(keysAndValues)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, keysAndValues ...any) {
	l.log.WithFields(toFields(keysAndValues)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, keysAndValues ...any) {
	l.log.WithFields(toFields(keysAndValues)).Error(msg)
}

func toFields(keysAndValues []any) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// callbackLogger forwards log records to an application LogFunc.
type callbackLogger struct {
	fn       LogFunc
	fallback Logger
}

// NewCallbackLogger returns a Logger that forwards records to the
// application's log callback, or to the fallback when no callback is set.
func NewCallbackLogger(fn LogFunc, fallback Logger) Logger {
	if fallback == nil {
		fallback = NoopLogger()
	}
	return &callbackLogger{fn: fn, fallback: fallback}
}

func (l *callbackLogger) emit(category, msg string, keysAndValues []any) {
	if l.fn == nil {
		return
	}
	rendered := msg
	if len(keysAndValues) > 0 {
		rendered = msg + " " + renderKV(keysAndValues)
	}
	l.fn("", 0, "", category, rendered)
}

func (l *callbackLogger) Debug(msg string, keysAndValues ...any) {
	if l.fn == nil {
		l.fallback.Debug(msg, keysAndValues...)
		return
	}
	l.emit("debug", msg, keysAndValues)
}

func (l *callbackLogger) Info(msg string, keysAndValues ...any) {
	if l.fn == nil {
		l.fallback.Info(msg, keysAndValues...)
		return
	}
	l.emit("info", msg, keysAndValues)
}

func (l *callbackLogger) Warn(msg string, keysAndValues ...any) {
	if l.fn == nil {
		l.fallback.Warn(msg, keysAndValues...)
		return
	}
	l.emit("warning", msg, keysAndValues)
}

func (l *callbackLogger) Error(msg string, keysAndValues ...any) {
	if l.fn == nil {
		l.fallback.Error(msg, keysAndValues...)
		return
	}
	l.emit("error", msg, keysAndValues)
}

func renderKV(keysAndValues []any) string {
	out := ""
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if out != "" {
			out += " "
		}
		key, _ := keysAndValues[i].(string)
		out += key + "=" + toString(keysAndValues[i+1])
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case interface{ String() string }:
		return t.String()
	case error:
		return t.Error()
	default:
		return fmt.Sprint(v)
	}
}
