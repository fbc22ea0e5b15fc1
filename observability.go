package ecs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type noopObserver struct{}

func (noopObserver) SystemCompleted(SystemSummary) {}

type compositeObserver struct {
	observers []SchedulerObserver
}

func (c compositeObserver) SystemCompleted(summary SystemSummary) {
	for _, observer := range c.observers {
		observer.SystemCompleted(summary)
	}
}

type loggingObserver struct {
	logger Logger
	format ObservationLogFormat
}

func newLoggingObserver(logger Logger, format ObservationLogFormat) SchedulerObserver {
	if logger == nil {
		return noopObserver{}
	}
	if format != ObservationLogFormatKeyValue {
		format = ObservationLogFormatJSON
	}
	return loggingObserver{logger: logger, format: format}
}

func (o loggingObserver) SystemCompleted(summary SystemSummary) {
	switch o.format {
	case ObservationLogFormatKeyValue:
		o.logKeyValue(summary)
	default:
		o.logJSON(summary)
	}
}

func (o loggingObserver) logJSON(summary SystemSummary) {
	payload := summaryAttributes(summary)
	payload["duration_ms"] = float64(summary.Duration) / float64(time.Millisecond)
	if summary.Error != nil {
		payload["error"] = summary.Error.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.With("system", summary.System).Error("system summary marshal error", "err", err)
		return
	}
	o.logger.Info(string(data))
}

func (o loggingObserver) logKeyValue(summary SystemSummary) {
	args := []any{
		"set", summary.Set,
		"stage", summary.Stage,
		"tick", summary.Tick,
		"duration", summary.Duration,
		"rows", summary.Rows,
		"batches", summary.Batches,
		"skipped", summary.Skipped,
		"component_reads", strings.Join(convertComponentTypes(summary.ComponentReads), ","),
		"component_writes", strings.Join(convertComponentTypes(summary.ComponentWrites), ","),
		"resource_reads", strings.Join(summary.ResourceReads, ","),
		"resource_writes", strings.Join(summary.ResourceWrites, ","),
	}
	if summary.Error != nil {
		args = append(args, "error", summary.Error.Error())
	}
	o.logger.With("system", summary.System).Info("system summary", args...)
}

// summaryAttributes is the attribute set shared by the JSON log and span encodings.
func summaryAttributes(summary SystemSummary) map[string]any {
	return map[string]any{
		"system":           summary.System,
		"set":              summary.Set,
		"stage":            summary.Stage,
		"tick":             summary.Tick,
		"rows":             summary.Rows,
		"batches":          summary.Batches,
		"skipped":          summary.Skipped,
		"component_reads":  summary.ComponentReads,
		"component_writes": summary.ComponentWrites,
		"resource_reads":   summary.ResourceReads,
		"resource_writes":  summary.ResourceWrites,
	}
}

type prometheusObserver struct {
	collector PrometheusCollector
}

func (o prometheusObserver) SystemCompleted(summary SystemSummary) {
	o.collector.ObserveSystem(summary)
}

type sigNozObserver struct {
	exporter SigNozExporter
}

func (o sigNozObserver) SystemCompleted(summary SystemSummary) {
	o.exporter.ExportSystem(summary)
}

func convertComponentTypes(types []ComponentType) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

func buildObserverChain(logger Logger, cfg InstrumentationConfig) SchedulerObserver {
	var observers []SchedulerObserver

	if cfg.Observer != nil {
		observers = append(observers, cfg.Observer)
	}

	obs := cfg.Observation

	if obs.EnableStructuredLogging {
		structuredLogger := obs.StructuredLogger
		if structuredLogger == nil {
			structuredLogger = logger
		}
		observers = append(observers, newLoggingObserver(structuredLogger, obs.LoggingFormat))
	}

	if obs.EnablePrometheus || cfg.EnableMetrics {
		collector := obs.PrometheusCollector
		if collector == nil {
			collector = NewPrometheusSystemCollector(obs.PrometheusOptions)
		}
		observers = append(observers, prometheusObserver{collector: collector})
	}

	if obs.EnableSigNoz {
		exporter := obs.SigNozExporter
		if exporter == nil {
			exporter = NewSigNozSpanExporter(obs.SigNozOptions)
		}
		observers = append(observers, sigNozObserver{exporter: exporter})
	}

	switch len(observers) {
	case 0:
		return noopObserver{}
	case 1:
		return observers[0]
	default:
		return compositeObserver{observers: observers}
	}
}

// PrometheusSystemCollector aggregates system summaries and renders them in
// the Prometheus text exposition format.
type PrometheusSystemCollector struct {
	options *PrometheusCollectorOptions
	mu      sync.Mutex
	samples map[prometheusKey]*prometheusSample
}

type prometheusKey struct {
	System string
	Set    string
}

func (k prometheusKey) labels() string {
	return fmt.Sprintf("system=%q,set=%q", k.System, k.Set)
}

type prometheusSample struct {
	durationSum   float64
	durationCount float64
	buckets       []float64
	rows          float64
	batches       float64
	skipped       float64
	errors        float64
}

func NewPrometheusSystemCollector(opts *PrometheusCollectorOptions) PrometheusCollector {
	if opts == nil {
		opts = &PrometheusCollectorOptions{}
	}
	return &PrometheusSystemCollector{
		options: opts,
		samples: make(map[prometheusKey]*prometheusSample),
	}
}

func (c *PrometheusSystemCollector) ObserveSystem(summary SystemSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := prometheusKey{System: summary.System, Set: summary.Set}
	sample, ok := c.samples[key]
	if !ok {
		sample = &prometheusSample{}
		if buckets := c.options.DurationBuckets; len(buckets) > 0 {
			sample.buckets = make([]float64, len(buckets))
		}
		c.samples[key] = sample
	}
	durSeconds := summary.Duration.Seconds()
	sample.durationSum += durSeconds
	sample.durationCount++
	for i := range sample.buckets {
		if durSeconds <= c.options.DurationBuckets[i].Seconds() {
			sample.buckets[i]++
		}
	}
	sample.rows += float64(summary.Rows)
	sample.batches += float64(summary.Batches)
	if summary.Skipped {
		sample.skipped++
	}
	if summary.Error != nil {
		sample.errors++
	}

	if writer := c.options.Writer; writer != nil {
		_ = c.writeMetricsLocked(writer)
	}
}

func (c *PrometheusSystemCollector) WriteMetrics(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeMetricsLocked(w)
}

func (c *PrometheusSystemCollector) writeMetricsLocked(w io.Writer) error {
	if w == nil {
		return nil
	}
	keys := make([]prometheusKey, 0, len(c.samples))
	for key := range c.samples {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].System == keys[j].System {
			return keys[i].Set < keys[j].Set
		}
		return keys[i].System < keys[j].System
	})

	var buf bytes.Buffer
	buf.WriteString("# HELP ecs_system_duration_seconds System execution duration.\n")
	buf.WriteString("# TYPE ecs_system_duration_seconds summary\n")
	for _, key := range keys {
		sample := c.samples[key]
		labels := key.labels()
		fmt.Fprintf(&buf, "ecs_system_duration_seconds_sum{%s} %f\n", labels, sample.durationSum)
		fmt.Fprintf(&buf, "ecs_system_duration_seconds_count{%s} %f\n", labels, sample.durationCount)
		for i, bucket := range sample.buckets {
			le := c.options.DurationBuckets[i].Seconds()
			fmt.Fprintf(&buf, "ecs_system_duration_seconds_bucket{%s,le=\"%.6f\"} %f\n", labels, le, bucket)
		}
	}

	counters := []struct {
		name, help string
		value      func(*prometheusSample) float64
	}{
		{"ecs_system_rows_total", "Rows processed per system.", func(s *prometheusSample) float64 { return s.rows }},
		{"ecs_system_batches_total", "Batches dispatched per system.", func(s *prometheusSample) float64 { return s.batches }},
		{"ecs_system_skipped_total", "Ticks a system was skipped.", func(s *prometheusSample) float64 { return s.skipped }},
		{"ecs_system_errors_total", "System error count.", func(s *prometheusSample) float64 { return s.errors }},
	}
	for _, counter := range counters {
		fmt.Fprintf(&buf, "# HELP %s %s\n", counter.name, counter.help)
		fmt.Fprintf(&buf, "# TYPE %s counter\n", counter.name)
		for _, key := range keys {
			fmt.Fprintf(&buf, "%s{%s} %f\n", counter.name, key.labels(), counter.value(c.samples[key]))
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// SigNozSpanExporter writes one JSON span per system run.
type SigNozSpanExporter struct {
	opts *SigNozOptions
	mu   sync.Mutex
}

func NewSigNozSpanExporter(opts *SigNozOptions) SigNozExporter {
	if opts == nil {
		opts = &SigNozOptions{}
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "ecs-scheduler"
	}
	return &SigNozSpanExporter{opts: opts}
}

func (e *SigNozSpanExporter) ExportSystem(summary SystemSummary) {
	if e.opts.Writer == nil {
		return
	}
	span := map[string]any{
		"service_name": e.opts.ServiceName,
		"name":         "system:" + summary.System,
		"timestamp":    time.Now().UnixNano(),
		"duration_ms":  float64(summary.Duration) / float64(time.Millisecond),
		"attributes":   summaryAttributes(summary),
	}
	if summary.Error != nil {
		span["error"] = summary.Error.Error()
	}
	payload, err := json.Marshal(span)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.opts.Writer.Write(append(payload, '\n'))
}
