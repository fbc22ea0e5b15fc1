package ecs

import (
	"context"
	"runtime/trace"

	"go.uber.org/zap"
)

// NewZapLogger adapts a zap logger to the scheduler Logger interface.
// A nil logger discards everything.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return zapLogger{s: l.Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z zapLogger) With(key string, value any) Logger {
	return zapLogger{s: z.s.With(key, value)}
}

func (z zapLogger) Info(msg string, args ...any) { z.s.Infow(msg, args...) }

func (z zapLogger) Error(msg string, args ...any) { z.s.Errorw(msg, args...) }

// runtimeTracer opens a runtime/trace task per system run.
type runtimeTracer struct{}

func (runtimeTracer) Start(ctx context.Context, name string) (context.Context, TraceSpan) {
	ctx, task := trace.NewTask(ctx, name)
	return ctx, task
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End() {}
