package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	ecs "github.com/DangerosoDavo/verletecs"
	"github.com/DangerosoDavo/verletecs/internal/config"
	"github.com/DangerosoDavo/verletecs/verlet"
)

func TestInstrumentationForToggles(t *testing.T) {
	inst, collector := instrumentationFor(config.SchedulerConfig{}, nil)
	if collector != nil || inst.Observation.EnablePrometheus || inst.Observation.EnableSigNoz || inst.Observation.EnableStructuredLogging {
		t.Fatalf("observers enabled by default: %+v", inst.Observation)
	}

	var spans bytes.Buffer
	inst, collector = instrumentationFor(config.SchedulerConfig{
		Metrics:       true,
		LogSummaries:  true,
		SummaryFormat: "kv",
		SigNoz:        true,
		SigNozService: "bench",
	}, &spans)
	obs := inst.Observation
	if collector == nil || !obs.EnablePrometheus || obs.PrometheusCollector != collector {
		t.Fatalf("prometheus not wired: %+v", obs)
	}
	if !obs.EnableStructuredLogging || obs.LoggingFormat != ecs.ObservationLogFormatKeyValue {
		t.Fatalf("summary logging not wired: %+v", obs)
	}
	if !obs.EnableSigNoz || obs.SigNozOptions == nil || obs.SigNozOptions.Writer != &spans || obs.SigNozOptions.ServiceName != "bench" {
		t.Fatalf("signoz not wired: %+v", obs)
	}
}

func TestObserversSeeEveryVerletSystem(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var spans bytes.Buffer
	inst, _ := instrumentationFor(config.SchedulerConfig{
		LogSummaries:  true,
		SummaryFormat: "json",
		SigNoz:        true,
		SigNozService: "verletbench",
	}, &spans)

	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	defer scheduler.Close()
	if _, err := verlet.Setup(world, scheduler, verlet.Options{Particles: 12}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := scheduler.Builder().
		WithWorkers(2).
		WithLogger(ecs.NewZapLogger(zap.New(core))).
		WithInstrumentation(inst).
		Build(world); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := scheduler.AdvanceOneTick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if n := logs.Len(); n != 3 {
		t.Fatalf("expected 3 summary entries, got %d: %v", n, logs.All())
	}
	lines := strings.Split(strings.TrimSpace(spans.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 spans, got %d: %q", len(lines), spans.String())
	}
	var span map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &span); err != nil {
		t.Fatalf("decode span: %v", err)
	}
	if span["service_name"] != "verletbench" || span["name"] != "system:"+verlet.IntegratePositionName {
		t.Fatalf("unexpected span %v", span)
	}
}
