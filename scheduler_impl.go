package ecs

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"runtime/trace"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultBatchSize = 1024

// NewScheduler constructs a scheduler bound to the provided world.
func NewScheduler(world *World) (Scheduler, error) {
	if world == nil {
		world = NewWorld()
	}
	s := &basicScheduler{
		world:         world,
		byName:        make(map[string]*systemEntry),
		pool:          NewCommandBufferPool(),
		logger:        NewZapLogger(nil),
		tracer:        noopTracer{},
		errorPolicies: make(map[string]ErrorPolicy),
		batchSize:     defaultBatchSize,
		observer:      noopObserver{},
	}
	s.applyInstrumentation(InstrumentationConfig{})
	return s, nil
}

type basicScheduler struct {
	mu              sync.RWMutex
	world           *World
	entries         []*systemEntry
	byName          map[string]*systemEntry
	plan            *schedulePlan
	pool            *CommandBufferPool
	dispatcher      *Dispatcher
	workers         int
	batchSize       int
	parallel        bool
	logger          Logger
	tracer          Tracer
	instrumentation InstrumentationConfig
	observer        SchedulerObserver
	errorPolicies   map[string]ErrorPolicy
	tickIndex       uint64
}

// systemEntry is a registered system with its declarations flattened into sets.
type systemEntry struct {
	index          int
	name           string
	system         System
	desc           SystemDescriptor
	policy         ErrorPolicy
	batchSize      int
	query          *Query
	reads          map[ComponentType]struct{}
	writes         map[ComponentType]struct{}
	resourceReads  map[string]struct{}
	resourceWrites map[string]struct{}
	state          atomic.Uint32
}

func (e *systemEntry) setState(state SystemState) { e.state.Store(uint32(state)) }

func (e *systemEntry) State() SystemState { return SystemState(e.state.Load()) }

// schedulePlan is the validated execution order produced by build.
type schedulePlan struct {
	order  []*systemEntry
	stages [][]*systemEntry
}

type schedulerBuilder struct {
	scheduler *basicScheduler
}

// Builder returns a builder that can mutate the scheduler configuration.
func (s *basicScheduler) Builder() SchedulerBuilder {
	return &schedulerBuilder{scheduler: s}
}

func (b *schedulerBuilder) WithWorkers(count int) SchedulerBuilder {
	b.scheduler.mu.Lock()
	b.scheduler.workers = max(count, 0)
	b.scheduler.plan = nil
	b.scheduler.mu.Unlock()
	return b
}

func (b *schedulerBuilder) WithBatchSize(size int) SchedulerBuilder {
	b.scheduler.mu.Lock()
	b.scheduler.batchSize = size
	b.scheduler.plan = nil
	b.scheduler.mu.Unlock()
	return b
}

func (b *schedulerBuilder) WithParallelSystems(enabled bool) SchedulerBuilder {
	b.scheduler.mu.Lock()
	b.scheduler.parallel = enabled
	b.scheduler.plan = nil
	b.scheduler.mu.Unlock()
	return b
}

// WithErrorPolicy sets the policy for a system name or set label.
func (b *schedulerBuilder) WithErrorPolicy(name string, policy ErrorPolicy) SchedulerBuilder {
	b.scheduler.mu.Lock()
	if policy != ErrorPolicyAbort {
		b.scheduler.errorPolicies[name] = policy
	} else {
		delete(b.scheduler.errorPolicies, name)
	}
	b.scheduler.plan = nil
	b.scheduler.mu.Unlock()
	return b
}

func (b *schedulerBuilder) WithInstrumentation(cfg InstrumentationConfig) SchedulerBuilder {
	b.scheduler.mu.Lock()
	b.scheduler.applyInstrumentation(cfg)
	b.scheduler.mu.Unlock()
	return b
}

func (b *schedulerBuilder) WithLogger(logger Logger) SchedulerBuilder {
	b.scheduler.mu.Lock()
	if logger == nil {
		logger = NewZapLogger(nil)
	}
	b.scheduler.logger = logger
	b.scheduler.applyInstrumentation(b.scheduler.instrumentation)
	b.scheduler.mu.Unlock()
	return b
}

// Build validates the registered systems and freezes the execution plan.
func (b *schedulerBuilder) Build(world *World) (Scheduler, error) {
	s := b.scheduler
	s.mu.Lock()
	defer s.mu.Unlock()
	if world != nil && world != s.world {
		s.world = world
		s.plan = nil
	}
	if _, err := s.buildLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *basicScheduler) applyInstrumentation(cfg InstrumentationConfig) {
	s.instrumentation = cfg
	if cfg.EnableTrace {
		s.tracer = runtimeTracer{}
	} else {
		s.tracer = noopTracer{}
	}
	s.observer = buildObserverChain(s.logger, cfg)
}

// AddSystem registers a system. Its declarations are validated immediately and
// a registration that would close a dependency cycle is rejected.
func (s *basicScheduler) AddSystem(sys System) error {
	if sys == nil {
		return fmt.Errorf("ecs: nil system")
	}
	desc := sys.Descriptor()
	if desc.Name == "" {
		return fmt.Errorf("ecs: system requires non-empty name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.world != nil && s.world.Locked() {
		return fmt.Errorf("%w: add system %s", ErrWorldLocked, desc.Name)
	}
	if _, exists := s.byName[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSystem, desc.Name)
	}

	entry, err := newSystemEntry(len(s.entries), sys, desc)
	if err != nil {
		return err
	}

	candidate := append(append([]*systemEntry(nil), s.entries...), entry)
	graph, _ := resolveEdges(candidate, true)
	if _, stuck := graph.topologicalOrder(); len(stuck) > 0 {
		return fmt.Errorf("%w: adding %s closes a cycle through %s", ErrCyclicDependency, desc.Name, entryNames(candidate, stuck))
	}

	s.entries = candidate
	s.byName[desc.Name] = entry
	s.plan = nil
	return nil
}

func newSystemEntry(index int, sys System, desc SystemDescriptor) (*systemEntry, error) {
	if desc.BatchSize < 0 {
		return nil, fmt.Errorf("%w: system %s declares batch size %d", ErrInvalidBatchSize, desc.Name, desc.BatchSize)
	}
	entry := &systemEntry{
		index:          index,
		name:           desc.Name,
		system:         sys,
		desc:           desc,
		reads:          make(map[ComponentType]struct{}, len(desc.Reads)),
		writes:         make(map[ComponentType]struct{}, len(desc.Writes)),
		resourceReads:  make(map[string]struct{}),
		resourceWrites: make(map[string]struct{}),
	}
	for _, comp := range desc.Writes {
		if _, ok := entry.writes[comp]; ok {
			return nil, fmt.Errorf("%w: %s writes component %s multiple times", ErrDuplicateWriteAccess, desc.Name, comp)
		}
		entry.writes[comp] = struct{}{}
	}
	for _, comp := range desc.Reads {
		if _, ok := entry.writes[comp]; !ok {
			entry.reads[comp] = struct{}{}
		}
	}
	for _, res := range desc.Resources {
		if res.Name == "" {
			continue
		}
		if res.Mode == AccessModeWrite {
			if _, ok := entry.resourceWrites[res.Name]; ok {
				return nil, fmt.Errorf("%w: %s writes resource %s multiple times", ErrDuplicateWriteAccess, desc.Name, res.Name)
			}
			entry.resourceWrites[res.Name] = struct{}{}
			delete(entry.resourceReads, res.Name)
			continue
		}
		if _, ok := entry.resourceWrites[res.Name]; !ok {
			entry.resourceReads[res.Name] = struct{}{}
		}
	}
	return entry, nil
}

func (s *basicScheduler) resolvePolicy(e *systemEntry) ErrorPolicy {
	if policy, ok := s.errorPolicies[e.name]; ok {
		return policy
	}
	if e.desc.Set != "" {
		if policy, ok := s.errorPolicies[e.desc.Set]; ok {
			return policy
		}
	}
	return ErrorPolicyAbort
}

// buildLocked resolves dependencies, validates access and prepares the
// dispatcher. The result is cached until configuration changes.
func (s *basicScheduler) buildLocked() (*schedulePlan, error) {
	if s.plan != nil {
		return s.plan, nil
	}
	if s.batchSize <= 0 {
		return nil, fmt.Errorf("%w: scheduler default %d", ErrInvalidBatchSize, s.batchSize)
	}

	graph, err := resolveEdges(s.entries, false)
	if err != nil {
		return nil, err
	}
	order, stuck := graph.topologicalOrder()
	if len(stuck) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrCyclicDependency, entryNames(s.entries, stuck))
	}

	for _, e := range s.entries {
		query, err := NewQuery(s.world, Access{Reads: e.desc.Reads, Writes: e.desc.Writes, Without: e.desc.Without})
		if err != nil {
			return nil, fmt.Errorf("ecs: system %s: %w", e.name, err)
		}
		e.query = query
		e.policy = s.resolvePolicy(e)
		e.batchSize = e.desc.BatchSize
		if e.batchSize == 0 {
			e.batchSize = s.batchSize
		}
	}

	plan := &schedulePlan{order: make([]*systemEntry, 0, len(order))}
	for _, i := range order {
		plan.order = append(plan.order, s.entries[i])
	}

	if s.parallel {
		reach := graph.reachability(order)
		for i := range s.entries {
			for j := i + 1; j < len(s.entries); j++ {
				if reach[i][j] || reach[j][i] {
					continue
				}
				if what, ok := accessConflict(s.entries[i], s.entries[j]); ok {
					return nil, fmt.Errorf("%w: %s and %s are unordered and both access %s", ErrAccessConflict, s.entries[i].name, s.entries[j].name, what)
				}
			}
		}
		depth := graph.depths(order)
		for _, e := range plan.order {
			d := depth[e.index]
			for len(plan.stages) <= d {
				plan.stages = append(plan.stages, nil)
			}
			plan.stages[d] = append(plan.stages[d], e)
		}
		for _, stage := range plan.stages {
			sort.Slice(stage, func(a, b int) bool { return stage[a].index < stage[b].index })
		}
	} else {
		for _, e := range plan.order {
			plan.stages = append(plan.stages, []*systemEntry{e})
		}
	}

	workers := s.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if s.dispatcher == nil || s.dispatcher.Workers() != workers {
		if s.dispatcher != nil {
			s.dispatcher.Close()
		}
		s.dispatcher = NewDispatcher(workers)
	}

	s.plan = plan
	return plan, nil
}

func (s *basicScheduler) ensurePlan() (*schedulePlan, error) {
	s.mu.RLock()
	plan := s.plan
	s.mu.RUnlock()
	if plan != nil {
		return plan, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked()
}

// tickRun carries per-tick state shared by every system run.
type tickRun struct {
	world      *World
	dt         time.Duration
	tick       uint64
	logger     Logger
	tracer     Tracer
	observer   SchedulerObserver
	dispatcher *Dispatcher
	pending    *CommandBuffer
}

// Tick runs every system once in dependency order, then applies deferred
// commands and recycles freed entity identifiers.
func (s *basicScheduler) Tick(ctx context.Context, dt time.Duration) error {
	plan, err := s.ensurePlan()
	if err != nil {
		return err
	}

	s.mu.RLock()
	run := &tickRun{
		world:      s.world,
		dt:         dt,
		tick:       s.tickIndex,
		logger:     s.logger,
		tracer:     s.tracer,
		observer:   s.observer,
		dispatcher: s.dispatcher,
	}
	s.mu.RUnlock()

	if err := run.world.lock(); err != nil {
		return err
	}
	run.pending = s.pool.Get()
	defer s.pool.Put(run.pending)

	for _, e := range plan.order {
		e.setState(SystemUnscheduled)
	}
	var runErr error
	for idx, stage := range plan.stages {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := s.runStage(ctx, run, idx, stage); err != nil {
			runErr = err
			break
		}
	}
	run.world.unlock()
	if runErr != nil {
		return runErr
	}

	// Systems have already written in place, so the tick completes even when
	// a deferred command fails.
	var applyErr error
	if commands := run.pending.Drain(); len(commands) > 0 {
		if err := run.world.ApplyCommands(commands); err != nil {
			applyErr = fmt.Errorf("ecs: apply deferred commands: %w", err)
		}
	}
	run.world.Maintain()

	s.mu.Lock()
	s.tickIndex++
	s.mu.Unlock()
	return applyErr
}

// AdvanceOneTick runs a single pass with a zero time delta.
func (s *basicScheduler) AdvanceOneTick(ctx context.Context) error {
	return s.Tick(ctx, 0)
}

type systemOutcome struct {
	summary SystemSummary
	err     error
}

func (s *basicScheduler) runStage(ctx context.Context, run *tickRun, stageIdx int, stage []*systemEntry) error {
	for _, e := range stage {
		e.setState(SystemReady)
	}
	outcomes := make([]systemOutcome, len(stage))
	buffers := make([]*CommandBuffer, len(stage))
	for i := range buffers {
		buffers[i] = s.pool.Get()
	}
	defer func() {
		for _, buf := range buffers {
			s.pool.Put(buf)
		}
	}()

	var waitErr error
	if len(stage) == 1 {
		outcomes[0] = s.runSystem(ctx, run, stageIdx, stage[0], buffers[0])
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, e := range stage {
			g.Go(func() error {
				outcomes[i] = s.runSystem(gctx, run, stageIdx, e, buffers[i])
				if outcomes[i].err != nil && e.policy != ErrorPolicyContinue {
					return outcomes[i].err
				}
				return nil
			})
		}
		waitErr = g.Wait()
	}

	var firstErr error
	for i, e := range stage {
		out := outcomes[i]
		run.observer.SystemCompleted(out.summary)
		if out.err != nil {
			if e.policy == ErrorPolicyContinue {
				run.logger.Error("system error", "system", e.name, "err", out.err)
				continue
			}
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		run.pending.Extend(buffers[i].Drain())
	}
	if waitErr != nil {
		return waitErr
	}
	return firstErr
}

func (s *basicScheduler) runSystem(ctx context.Context, run *tickRun, stageIdx int, e *systemEntry, buf *CommandBuffer) systemOutcome {
	summary := SystemSummary{
		System:          e.name,
		Set:             e.desc.Set,
		Stage:           stageIdx,
		Tick:            run.tick,
		ComponentReads:  componentSetToSlice(e.reads),
		ComponentWrites: componentSetToSlice(e.writes),
		ResourceReads:   stringSetToSlice(e.resourceReads),
		ResourceWrites:  stringSetToSlice(e.resourceWrites),
	}
	fail := func(err error) systemOutcome {
		summary.Error = err
		return systemOutcome{summary: summary, err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if !shouldRunTick(run.tick, e.desc.RunEvery) {
		e.setState(SystemDone)
		summary.Skipped = true
		return systemOutcome{summary: summary}
	}

	e.setState(SystemRunning)
	defer e.setState(SystemDone)

	release, err := e.query.Acquire()
	if err != nil {
		return fail(fmt.Errorf("ecs: system %s: %w", e.name, err))
	}
	defer release()
	if err := e.query.Resolve(); err != nil {
		return fail(fmt.Errorf("ecs: system %s: %w", e.name, err))
	}

	logger := run.logger.With("system", e.name)
	exec := &systemExecutionContext{
		world:      run.world,
		dt:         run.dt,
		tick:       run.tick,
		logger:     logger,
		entry:      e,
		dispatcher: run.dispatcher,
		commands:   buf,
	}

	spanCtx, span := run.tracer.Start(ctx, e.name)
	defer span.End()

	start := time.Now()
	snapshot := buf.Snapshot()
	result := invokeSystem(spanCtx, e, exec)
	if result.Err != nil && e.policy == ErrorPolicyRetry {
		logger.Error("system failed, retrying", "err", result.Err)
		buf.Restore(snapshot)
		exec.rows, exec.batches = 0, 0
		result = invokeSystem(spanCtx, e, exec)
		if result.Err == nil {
			logger.Info("system retry succeeded")
		}
	}
	summary.Duration = time.Since(start)
	summary.Rows = exec.rows
	summary.Batches = exec.batches
	summary.Skipped = result.Skipped

	if result.Err != nil {
		buf.Restore(snapshot)
		return fail(fmt.Errorf("ecs: system %s failed: %w", e.name, result.Err))
	}
	return systemOutcome{summary: summary}
}

func invokeSystem(ctx context.Context, e *systemEntry, exec ExecutionContext) (result SystemResult) {
	defer func() {
		if r := recover(); r != nil {
			result = SystemResult{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return e.system.Run(ctx, exec)
}

func componentSetToSlice(set map[ComponentType]struct{}) []ComponentType {
	if len(set) == 0 {
		return nil
	}
	out := make([]ComponentType, 0, len(set))
	for comp := range set {
		out = append(out, comp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func stringSetToSlice(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for val := range set {
		out = append(out, val)
	}
	sort.Strings(out)
	return out
}

func shouldRunTick(tick uint64, interval TickInterval) bool {
	every := uint64(interval.Every)
	if every == 0 {
		return true
	}
	offset := uint64(interval.Offset % interval.Every)
	return (tick+offset)%every == 0
}

func (s *basicScheduler) Run(ctx context.Context, steps int, dt time.Duration) error {
	for i := 0; i < steps; i++ {
		if err := s.Tick(ctx, dt); err != nil {
			return err
		}
	}
	return nil
}

func (s *basicScheduler) RunWithTrace(ctx context.Context, w io.Writer, fn func() error) error {
	s.mu.RLock()
	enabled := s.instrumentation.EnableTrace
	s.mu.RUnlock()
	if enabled && w != nil {
		if err := trace.Start(w); err != nil {
			return err
		}
		defer trace.Stop()
	}
	return fn()
}

// Order returns system names in execution order, or nil if the plan is invalid.
func (s *basicScheduler) Order() []string {
	plan, err := s.ensurePlan()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(plan.order))
	for _, e := range plan.order {
		names = append(names, e.name)
	}
	return names
}

// Stages returns the groups of systems that may run together.
func (s *basicScheduler) Stages() [][]string {
	plan, err := s.ensurePlan()
	if err != nil {
		return nil
	}
	out := make([][]string, 0, len(plan.stages))
	for _, stage := range plan.stages {
		names := make([]string, 0, len(stage))
		for _, e := range stage {
			names = append(names, e.name)
		}
		out = append(out, names)
	}
	return out
}

func (s *basicScheduler) State(name string) (SystemState, bool) {
	s.mu.RLock()
	e, ok := s.byName[name]
	s.mu.RUnlock()
	if !ok {
		return SystemUnscheduled, false
	}
	return e.State(), true
}

func (s *basicScheduler) TickIndex() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tickIndex
}

func (s *basicScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatcher != nil {
		s.dispatcher.Close()
		s.dispatcher = nil
	}
	s.plan = nil
}

// systemExecutionContext is handed to a system for the duration of one run.
type systemExecutionContext struct {
	world      *World
	dt         time.Duration
	tick       uint64
	logger     Logger
	entry      *systemEntry
	dispatcher *Dispatcher
	commands   *CommandBuffer
	rows       int
	batches    int
}

func (c *systemExecutionContext) World() *World { return c.world }

func (c *systemExecutionContext) TimeDelta() time.Duration { return c.dt }

func (c *systemExecutionContext) TickIndex() uint64 { return c.tick }

func (c *systemExecutionContext) Logger() Logger { return c.logger }

func (c *systemExecutionContext) Defer(cmd Command) { c.commands.Push(cmd) }

func (c *systemExecutionContext) Query() *Query { return c.entry.query }

func (c *systemExecutionContext) BatchSize() int { return c.entry.batchSize }

func (c *systemExecutionContext) ParallelFor(ctx context.Context, body func(row int)) error {
	return c.ParallelBatches(ctx, func(b Batch) error {
		for i := b.Start; i < b.End; i++ {
			body(i)
		}
		return nil
	})
}

func (c *systemExecutionContext) ParallelBatches(ctx context.Context, body func(b Batch) error) error {
	q := c.entry.query
	if err := q.Resolve(); err != nil {
		return err
	}
	n, size := q.Len(), c.entry.batchSize
	c.rows += n
	if n > 0 {
		c.batches += (n + size - 1) / size
	}
	return c.dispatcher.RunBatches(ctx, n, size, body)
}

func (c *systemExecutionContext) Resource(name string) (any, error) {
	_, reads := c.entry.resourceReads[name]
	_, writes := c.entry.resourceWrites[name]
	if !reads && !writes {
		return nil, fmt.Errorf("%w: system %s did not declare resource %s", ErrUndeclaredAccess, c.entry.name, name)
	}
	value, ok := c.world.resources.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	return value, nil
}

func (c *systemExecutionContext) SetResource(name string, value any) error {
	if _, ok := c.entry.resourceWrites[name]; !ok {
		return fmt.Errorf("%w: system %s did not declare write access to resource %s", ErrUndeclaredAccess, c.entry.name, name)
	}
	c.world.resources.Set(name, value)
	return nil
}
