package worker

import (
	"slices"

	"go.uber.org/zap"
)

type fieldLogger struct {
	logger Logger
	fields []zap.Field
}

// WithWorkerName returns a logger that tags every entry with the worker
// name, for tasks that log from inside Setup, Loop and Teardown.
func WithWorkerName(logger Logger, name string) Logger {
	return &fieldLogger{
		logger: logger,
		fields: []zap.Field{zap.String("worker", name)},
	}
}

func (l *fieldLogger) with(fields []zap.Field) []zap.Field {
	return append(slices.Clip(l.fields), fields...)
}

func (l *fieldLogger) Info(msg string, fields ...zap.Field) {
	l.logger.Info(msg, l.with(fields)...)
}

func (l *fieldLogger) Error(msg string, fields ...zap.Field) {
	l.logger.Error(msg, l.with(fields)...)
}

func (l *fieldLogger) Debug(msg string, fields ...zap.Field) {
	l.logger.Debug(msg, l.with(fields)...)
}

func (l *fieldLogger) Warn(msg string, fields ...zap.Field) {
	l.logger.Warn(msg, l.with(fields)...)
}
