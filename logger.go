package netvolstore

import "go.uber.org/zap"

// Logger is the logging interface used throughout this module. It accepts
// simple key/value variadic pairs to keep call sites concise and to decouple
// every package in this module from any particular structured-logging field
// type. Consumers embedding this module supply an implementation (typically
// NewZapLogger) via Option or through the fx graph.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewZapLogger wraps a *zap.SugaredLogger into the Logger interface.
func NewZapLogger(l *zap.SugaredLogger) Logger {
	if l == nil {
		return NewNopLogger()
	}
	return &zapLogger{l}
}

type zapLogger struct{ l *zap.SugaredLogger }

func (z *zapLogger) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z *zapLogger) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z *zapLogger) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
func (z *zapLogger) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }

// NewNopLogger returns a Logger that discards everything, used as the
// default when no logger is supplied.
func NewNopLogger() Logger { return &nopLogger{} }

type nopLogger struct{}

func (n *nopLogger) Debug(_ string, _ ...any) {}
func (n *nopLogger) Info(_ string, _ ...any)  {}
func (n *nopLogger) Warn(_ string, _ ...any)  {}
func (n *nopLogger) Error(_ string, _ ...any) {}
