package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level grades breadcrumbs and captured errors.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Breadcrumb is a structured trace of something the system did, recorded to
// give captured errors context.
type Breadcrumb struct {
	Category string
	Message  string
	Level    Level
	Data     map[string]any
}

// Sink receives breadcrumbs and exception reports. Implementations are
// fire-and-forget: they must never block the caller and never fail the
// operation that reported the event.
type Sink interface {
	AddBreadcrumb(crumb Breadcrumb)
	CaptureException(err error, tags map[string]string, context map[string]any)
}

type nopSink struct{}

func (nopSink) AddBreadcrumb(Breadcrumb) {}

func (nopSink) CaptureException(error, map[string]string, map[string]any) {}

// NewNop returns a sink that discards everything.
func NewNop() Sink {
	return nopSink{}
}

type zapSink struct {
	logger *zap.Logger
}

// NewZapSink returns a sink that records breadcrumbs and exceptions through
// the structured logger.
func NewZapSink(logger *zap.Logger) Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapSink{logger: logger}
}

func (s *zapSink) AddBreadcrumb(crumb Breadcrumb) {
	defer func() { _ = recover() }()
	fields := []zap.Field{
		zap.String("category", crumb.Category),
	}
	if len(crumb.Data) > 0 {
		fields = append(fields, zap.Any("data", crumb.Data))
	}
	s.logger.Log(levelToZap(crumb.Level), crumb.Message, fields...)
}

func (s *zapSink) CaptureException(err error, tags map[string]string, context map[string]any) {
	defer func() { _ = recover() }()
	if err == nil {
		return
	}
	fields := []zap.Field{zap.Error(err)}
	for key, value := range tags {
		fields = append(fields, zap.String(key, value))
	}
	if len(context) > 0 {
		fields = append(fields, zap.Any("context", context))
	}
	s.logger.Error("captured exception", fields...)
}

func levelToZap(level Level) zapcore.Level {
	switch level {
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
