package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	ecs "github.com/DangerosoDavo/verletecs"
	"github.com/DangerosoDavo/verletecs/internal/arkbench"
	"github.com/DangerosoDavo/verletecs/internal/config"
	"github.com/DangerosoDavo/verletecs/internal/scripting"
	"github.com/DangerosoDavo/verletecs/verlet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML config file")
	backendFlag := flag.String("backend", "", "comma separated backends, overrides the config (verletecs, ark)")
	profileMode := flag.String("profile", "", "profile mode, overrides the config (cpu, mem, trace)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *backendFlag != "" {
		cfg.Benchmark.Backends = strings.Split(*backendFlag, ",")
	}
	if *profileMode != "" {
		cfg.Profile.Mode = *profileMode
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if stop := startProfile(cfg.Profile); stop != nil {
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, closeLaw, err := simulationOptions(cfg.Simulation, log)
	if err != nil {
		return err
	}
	defer closeLaw()

	log.Info("benchmark configured",
		zap.String("variant", string(opts.Variant)),
		zap.Int("particles", opts.Scenario.Count()),
		zap.Int("steps", cfg.Simulation.Steps),
		zap.Int("runs", cfg.Simulation.Runs),
		zap.Int("batch_size", opts.BatchSize),
		zap.String("force_law", opts.ForceLaw.Name()),
		zap.Strings("backends", cfg.Benchmark.Backends),
	)

	for _, name := range cfg.Benchmark.Backends {
		var b backend
		switch name {
		case "ark":
			b = arkBackend{}
		default:
			b = ecsBackend{scheduler: cfg.Scheduler, log: log}
		}
		if err := benchmark(ctx, name, b, opts, cfg.Simulation, log); err != nil {
			return err
		}
	}
	return nil
}

// simulationOptions resolves the workload, loading the scenario and force
// script when configured. The returned func releases the force law.
func simulationOptions(sim config.SimulationConfig, log *zap.Logger) (verlet.Options, func(), error) {
	opts := verlet.Options{
		Variant:   verlet.Variant(sim.Variant),
		Particles: sim.Particles,
		DT:        sim.DT,
		BatchSize: sim.BatchSize,
	}
	if sim.Scenario != "" {
		scenario, err := verlet.LoadScenario(sim.Scenario)
		if err != nil {
			return opts, nil, err
		}
		opts.Scenario = scenario
	}
	closeLaw := func() {}
	if sim.ForceScript != "" {
		script, err := scripting.LoadForceScript(sim.ForceScript, log.Named("lua"))
		if err != nil {
			return opts, nil, err
		}
		opts.ForceLaw = script
		closeLaw = script.Close
	}
	resolved, err := opts.Resolve()
	if err != nil {
		closeLaw()
		return opts, nil, err
	}
	return resolved, closeLaw, nil
}

// backend prepares a fresh simulation for one timed run.
type backend interface {
	Prepare(opts verlet.Options) (step func(ctx context.Context, steps int) error, release func(), err error)
}

type ecsBackend struct {
	scheduler config.SchedulerConfig
	log       *zap.Logger
}

func (b ecsBackend) Prepare(opts verlet.Options) (func(context.Context, int) error, func(), error) {
	world := ecs.NewWorld()
	scheduler, err := ecs.NewScheduler(world)
	if err != nil {
		return nil, nil, err
	}
	if _, err := verlet.Setup(world, scheduler, opts); err != nil {
		scheduler.Close()
		return nil, nil, err
	}
	instrumentation, collector := instrumentationFor(b.scheduler, os.Stderr)
	_, err = scheduler.Builder().
		WithWorkers(b.scheduler.Workers).
		WithParallelSystems(b.scheduler.ParallelSystems).
		WithLogger(ecs.NewZapLogger(b.log.Named("ecs"))).
		WithInstrumentation(instrumentation).
		Build(world)
	if err != nil {
		scheduler.Close()
		return nil, nil, err
	}
	release := func() {
		if w, ok := collector.(interface{ WriteMetrics(io.Writer) error }); ok {
			if err := w.WriteMetrics(os.Stderr); err != nil {
				b.log.Warn("write metrics", zap.Error(err))
			}
		}
		scheduler.Close()
	}
	step := func(ctx context.Context, steps int) error {
		return scheduler.Run(ctx, steps, 0)
	}
	return step, release, nil
}

// instrumentationFor maps the scheduler config onto observer settings. SigNoz
// spans go to spans; the Prometheus collector is returned so its metrics can
// be written once a run is released.
func instrumentationFor(cfg config.SchedulerConfig, spans io.Writer) (ecs.InstrumentationConfig, ecs.PrometheusCollector) {
	instrumentation := ecs.InstrumentationConfig{EnableTrace: cfg.Trace}
	obs := &instrumentation.Observation
	var collector ecs.PrometheusCollector
	if cfg.Metrics {
		collector = ecs.NewPrometheusSystemCollector(nil)
		obs.EnablePrometheus = true
		obs.PrometheusCollector = collector
	}
	if cfg.LogSummaries {
		obs.EnableStructuredLogging = true
		if cfg.SummaryFormat == "kv" {
			obs.LoggingFormat = ecs.ObservationLogFormatKeyValue
		}
	}
	if cfg.SigNoz {
		obs.EnableSigNoz = true
		obs.SigNozOptions = &ecs.SigNozOptions{Writer: spans, ServiceName: cfg.SigNozService}
	}
	return instrumentation, collector
}

type arkBackend struct{}

func (arkBackend) Prepare(opts verlet.Options) (func(context.Context, int) error, func(), error) {
	sim, err := arkbench.New(opts)
	if err != nil {
		return nil, nil, err
	}
	step := func(ctx context.Context, steps int) error {
		for i := 0; i < steps; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := sim.Step(); err != nil {
				return err
			}
		}
		return nil
	}
	return step, func() {}, nil
}

// benchmark prepares every run concurrently, then times them one after another.
func benchmark(ctx context.Context, name string, b backend, opts verlet.Options, sim config.SimulationConfig, log *zap.Logger) error {
	type prepared struct {
		step    func(context.Context, int) error
		release func()
	}
	runs := make([]prepared, sim.Runs)
	g := new(errgroup.Group)
	for i := range runs {
		g.Go(func() error {
			step, release, err := b.Prepare(opts)
			if err != nil {
				return fmt.Errorf("%s run %d: %w", name, i, err)
			}
			runs[i] = prepared{step: step, release: release}
			return nil
		})
	}
	err := g.Wait()
	defer func() {
		for _, r := range runs {
			if r.release != nil {
				r.release()
			}
		}
	}()
	if err != nil {
		return err
	}

	fmt.Printf("== %s ==\n", name)
	var total time.Duration
	for i, r := range runs {
		fmt.Println("Starting simulation.")
		start := time.Now()
		if err := r.step(ctx, sim.Steps); err != nil {
			return fmt.Errorf("%s run %d: %w", name, i, err)
		}
		dur := time.Since(start)
		fmt.Printf("Finished in %v\n", dur)
		log.Debug("run finished", zap.String("backend", name), zap.Int("run", i), zap.Duration("duration", dur))
		total += dur
	}
	fmt.Printf("Total loop time: %v\n", total)
	fmt.Printf("Avg loop time: %v\n", total/time.Duration(len(runs)))
	return nil
}

func startProfile(cfg config.ProfileConfig) func() {
	path := profile.ProfilePath(cfg.Path)
	var p interface{ Stop() }
	switch strings.ToLower(cfg.Mode) {
	case "cpu":
		p = profile.Start(profile.CPUProfile, path, profile.NoShutdownHook)
	case "mem":
		p = profile.Start(profile.MemProfileAllocs, path, profile.NoShutdownHook)
	case "trace":
		p = profile.Start(profile.TraceProfile, path, profile.NoShutdownHook)
	default:
		return nil
	}
	return p.Stop
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
