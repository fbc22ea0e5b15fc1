package ecs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewZapLogger(zap.New(core)).With("system", "harmonic_trap")

	logger.Info("system summary", "rows", 600)
	logger.Error("system failed", "error", errors.New("boom"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if first["system"] != "harmonic_trap" || first["rows"] != int64(600) {
		t.Fatalf("unexpected fields %v", first)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %v", entries[1].Level)
	}
}

func TestNilZapLoggerDiscards(t *testing.T) {
	logger := NewZapLogger(nil)
	logger.With("k", "v").Info("dropped")
}

func TestLoggingObserverThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	obs := newLoggingObserver(NewZapLogger(zap.New(core)), ObservationLogFormatKeyValue)
	obs.SystemCompleted(SystemSummary{System: "integrate_velocity", Set: "physics", Duration: time.Millisecond, Rows: 6})

	if logs.FilterMessage("system summary").Len() != 1 {
		t.Fatalf("expected one summary entry, got %v", logs.All())
	}
}

func TestRuntimeTracerSpans(t *testing.T) {
	ctx, span := runtimeTracer{}.Start(context.Background(), "system:integrate_position")
	if ctx == nil || span == nil {
		t.Fatalf("expected a context and span")
	}
	span.End()

	ctx2, noop := noopTracer{}.Start(ctx, "ignored")
	if ctx2 != ctx {
		t.Fatalf("noop tracer must return the caller's context")
	}
	noop.End()
}
