package ecs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestPrometheusSystemCollectorWritesMetrics(t *testing.T) {
	collector := NewPrometheusSystemCollector(&PrometheusCollectorOptions{
		DurationBuckets: []time.Duration{time.Millisecond, 10 * time.Millisecond},
	})
	cimpl, ok := collector.(*PrometheusSystemCollector)
	if !ok {
		t.Fatalf("expected PrometheusSystemCollector implementation")
	}

	collector.ObserveSystem(SystemSummary{
		System:   "integrate_position",
		Set:      "physics",
		Tick:     42,
		Duration: 5 * time.Millisecond,
		Rows:     600,
		Batches:  6,
	})
	collector.ObserveSystem(SystemSummary{System: "integrate_position", Set: "physics", Skipped: true})

	var buf bytes.Buffer
	if err := cimpl.WriteMetrics(&buf); err != nil {
		t.Fatalf("write metrics: %v", err)
	}
	metrics := buf.String()
	for _, want := range []string{
		`ecs_system_duration_seconds_count{system="integrate_position",set="physics"} 2.000000`,
		`ecs_system_rows_total{system="integrate_position",set="physics"} 600.000000`,
		`ecs_system_batches_total{system="integrate_position",set="physics"} 6.000000`,
		`ecs_system_skipped_total{system="integrate_position",set="physics"} 1.000000`,
		`le="0.010000"`,
	} {
		if !strings.Contains(metrics, want) {
			t.Fatalf("expected %q in %q", want, metrics)
		}
	}
}

func TestSigNozSpanExporterWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewSigNozSpanExporter(&SigNozOptions{Writer: &buf, ServiceName: "ecs-test"})

	exporter.ExportSystem(SystemSummary{
		System:        "harmonic_trap",
		Tick:          13,
		Duration:      10 * time.Millisecond,
		ResourceReads: []string{"timestep"},
	})

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["name"] != "system:harmonic_trap" {
		t.Fatalf("unexpected span name: %v", payload["name"])
	}
	attrs, ok := payload["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes missing in payload: %v", payload)
	}
	if attrs["system"] != "harmonic_trap" {
		t.Fatalf("unexpected system attribute: %v", attrs["system"])
	}
}

type capturedLog struct {
	msg  string
	args []any
}

type captureLogger struct {
	lines *[]capturedLog
}

func (l captureLogger) With(string, any) Logger { return l }
func (l captureLogger) Info(msg string, args ...any) {
	*l.lines = append(*l.lines, capturedLog{msg: msg, args: args})
}
func (l captureLogger) Error(msg string, args ...any) {
	*l.lines = append(*l.lines, capturedLog{msg: msg, args: args})
}

func TestLoggingObserverFormats(t *testing.T) {
	var lines []capturedLog
	logger := captureLogger{lines: &lines}

	newLoggingObserver(logger, ObservationLogFormatJSON).SystemCompleted(SystemSummary{System: "s", Rows: 3})
	var payload map[string]any
	if err := json.Unmarshal([]byte(lines[0].msg), &payload); err != nil {
		t.Fatalf("json log line: %v", err)
	}
	if payload["rows"] != float64(3) {
		t.Fatalf("unexpected rows: %v", payload["rows"])
	}

	newLoggingObserver(logger, ObservationLogFormatKeyValue).SystemCompleted(SystemSummary{System: "s"})
	if lines[1].msg != "system summary" {
		t.Fatalf("unexpected key/value message: %q", lines[1].msg)
	}
}

func TestBuildObserverChainComposes(t *testing.T) {
	var lines []capturedLog
	chain := buildObserverChain(captureLogger{lines: &lines}, InstrumentationConfig{
		EnableMetrics: true,
		Observation:   ObservationSettings{EnableStructuredLogging: true},
	})
	if _, ok := chain.(compositeObserver); !ok {
		t.Fatalf("expected composite observer, got %T", chain)
	}
	if _, ok := buildObserverChain(nil, InstrumentationConfig{}).(noopObserver); !ok {
		t.Fatalf("expected noop observer without instrumentation")
	}
}
