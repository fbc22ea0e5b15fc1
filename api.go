package ecs

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// Scheduler orders registered systems and advances the world one tick at a time.
type Scheduler interface {
	AddSystem(sys System) error
	Tick(ctx context.Context, dt time.Duration) error
	AdvanceOneTick(ctx context.Context) error
	Run(ctx context.Context, steps int, dt time.Duration) error
	RunWithTrace(ctx context.Context, w io.Writer, fn func() error) error
	Order() []string
	Stages() [][]string
	State(name string) (SystemState, bool)
	TickIndex() uint64
	Builder() SchedulerBuilder
	Close()
}

// SchedulerBuilder configures scheduler options prior to construction.
type SchedulerBuilder interface {
	WithWorkers(count int) SchedulerBuilder
	WithBatchSize(size int) SchedulerBuilder
	WithParallelSystems(enabled bool) SchedulerBuilder
	WithErrorPolicy(name string, policy ErrorPolicy) SchedulerBuilder
	WithInstrumentation(cfg InstrumentationConfig) SchedulerBuilder
	WithLogger(logger Logger) SchedulerBuilder
	Build(world *World) (Scheduler, error)
}

// TickInterval controls how frequently a system runs.
type TickInterval struct {
	Every  uint32
	Offset uint32
}

// ErrorPolicy defines how the scheduler responds to system failures.
type ErrorPolicy uint8

const (
	ErrorPolicyAbort ErrorPolicy = iota
	ErrorPolicyContinue
	ErrorPolicyRetry
)

// SystemState tracks a system's progress through one scheduler pass.
type SystemState uint32

const (
	SystemUnscheduled SystemState = iota
	SystemReady
	SystemRunning
	SystemDone
)

func (s SystemState) String() string {
	switch s {
	case SystemUnscheduled:
		return "unscheduled"
	case SystemReady:
		return "ready"
	case SystemRunning:
		return "running"
	case SystemDone:
		return "done"
	default:
		return "unknown"
	}
}

// InstrumentationConfig configures logging, tracing, and metrics sinks.
type InstrumentationConfig struct {
	EnableTrace   bool
	EnableMetrics bool
	Observer      SchedulerObserver
	Observation   ObservationSettings
}

// ObservationSettings toggles built-in observer integrations.
type ObservationSettings struct {
	EnableStructuredLogging bool
	LoggingFormat           ObservationLogFormat
	StructuredLogger        Logger
	EnablePrometheus        bool
	PrometheusCollector     PrometheusCollector
	PrometheusOptions       *PrometheusCollectorOptions
	EnableSigNoz            bool
	SigNozExporter          SigNozExporter
	SigNozOptions           *SigNozOptions
}

// ObservationLogFormat controls structured logging encoding.
type ObservationLogFormat uint8

const (
	ObservationLogFormatJSON ObservationLogFormat = iota
	ObservationLogFormatKeyValue
)

// SchedulerObserver receives a summary after every system run.
type SchedulerObserver interface {
	SystemCompleted(summary SystemSummary)
}

// PrometheusCollector handles system summaries for Prometheus-style metrics.
type PrometheusCollector interface {
	ObserveSystem(summary SystemSummary)
}

type PrometheusCollectorOptions struct {
	Writer          io.Writer
	DurationBuckets []time.Duration
}

// SigNozExporter handles system summaries for SigNoz platforms.
type SigNozExporter interface {
	ExportSystem(summary SystemSummary)
}

type SigNozOptions struct {
	Writer      io.Writer
	ServiceName string
}

// SystemSummary captures execution metadata for one system run.
type SystemSummary struct {
	System          string
	Set             string
	Stage           int
	Tick            uint64
	Duration        time.Duration
	Rows            int
	Batches         int
	Skipped         bool
	Error           error
	ComponentReads  []ComponentType
	ComponentWrites []ComponentType
	ResourceReads   []string
	ResourceWrites  []string
}

// System represents executable logic scheduled once per tick.
type System interface {
	Descriptor() SystemDescriptor
	Run(ctx context.Context, exec ExecutionContext) SystemResult
}

// SystemDescriptor declares a system's label, data access and ordering.
// Declarations are read once at registration and never re-read.
type SystemDescriptor struct {
	Name      string
	Set       string
	Reads     []ComponentType
	Writes    []ComponentType
	Without   []ComponentType
	Resources []ResourceAccess
	After     []string
	Before    []string
	Tags      []string
	RunEvery  TickInterval
	BatchSize int
}

// SystemResult indicates how a system behaved during execution.
type SystemResult struct {
	Skipped bool
	Err     error
}

// SystemFunc adapts a plain function into a System.
type SystemFunc struct {
	Desc SystemDescriptor
	Fn   func(ctx context.Context, exec ExecutionContext) error
}

func (s SystemFunc) Descriptor() SystemDescriptor { return s.Desc }

func (s SystemFunc) Run(ctx context.Context, exec ExecutionContext) SystemResult {
	if s.Fn == nil {
		return SystemResult{Skipped: true}
	}
	return SystemResult{Err: s.Fn(ctx, exec)}
}

// ExecutionContext supplies a system with scoped access to the world.
type ExecutionContext interface {
	World() *World
	TimeDelta() time.Duration
	TickIndex() uint64
	Logger() Logger
	Defer(cmd Command)
	Query() *Query
	BatchSize() int
	ParallelFor(ctx context.Context, body func(row int)) error
	ParallelBatches(ctx context.Context, body func(b Batch) error) error
	Resource(name string) (any, error)
	SetResource(name string, value any) error
}

// World encapsulates entity/component storage and resources.
type World struct {
	registry  *EntityRegistry
	storage   StorageProvider
	resources ResourceContainer
	version   atomic.Uint64
	locked    atomic.Bool
}

// StorageProvider manages component storage backends.
type StorageProvider interface {
	RegisterComponent(ComponentType, StorageStrategy) error
	Store(ComponentType) (ComponentStore, error)
	View(ComponentType) (ComponentView, error)
	Types() []ComponentType
	Borrow(ComponentType, AccessMode) (release func(), err error)
	Apply(*World, []Command) error
}

// StorageStrategy describes how a component type is stored internally.
type StorageStrategy interface {
	Name() string
	NewStore(ComponentType) ComponentStore
}

// ComponentType identifies a component column.
type ComponentType string

// ComponentValue pairs a component type with the value inserted for it.
type ComponentValue struct {
	Type  ComponentType
	Value any
}

// Value builds a ComponentValue for Insert and Spawn.
func Value(t ComponentType, v any) ComponentValue {
	return ComponentValue{Type: t, Value: v}
}

// ResourceAccess declares mutable or immutable access to a resource.
type ResourceAccess struct {
	Name string
	Mode AccessMode
}

// AccessMode indicates read or write intent on a component or resource.
type AccessMode uint8

const (
	AccessModeRead AccessMode = iota
	AccessModeWrite
)

func (m AccessMode) String() string {
	if m == AccessModeWrite {
		return "write"
	}
	return "read"
}

// ComponentStore permits read/write access to component instances.
type ComponentStore interface {
	ComponentView
	Set(EntityID, any) error
	Remove(EntityID) bool
	Clear()
}

// ComponentView exposes read-only access to a column.
//
// Entities returns the column's members in row order; the slice is owned by
// the store and is only stable until the next structural change.
// Slot returns the index into the typed value slice holding the entity's value.
type ComponentView interface {
	ComponentType() ComponentType
	Len() int
	Has(EntityID) bool
	Get(EntityID) (any, bool)
	Iterate(func(EntityID, any) bool)
	Entities() []EntityID
	Slot(EntityID) (int, bool)
	Mutable() bool
}

// TypedColumn is implemented by stores that keep their values in a dense []T.
type TypedColumn[T any] interface {
	ComponentView
	Values() []T
}

// Command represents a deferred mutation applied outside system execution.
type Command interface {
	Apply(world *World) error
}

// Logger captures structured log output from systems.
type Logger interface {
	With(key string, value any) Logger
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// ResourceContainer holds shared resources accessible to systems.
type ResourceContainer interface {
	Get(name string) (any, bool)
	Set(name string, value any)
	Delete(name string)
	Range(func(string, any) bool)
}

// Tracer coordinates tracing spans for observability tooling.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, TraceSpan)
}

// TraceSpan represents an active tracing region.
type TraceSpan interface {
	End()
}
