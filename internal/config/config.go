package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Benchmark  BenchmarkConfig  `toml:"benchmark"`
	Logging    LoggingConfig    `toml:"logging"`
	Profile    ProfileConfig    `toml:"profile"`
}

type SimulationConfig struct {
	Particles   int     `toml:"particles"`
	Steps       int     `toml:"steps"`
	Runs        int     `toml:"runs"`
	DT          float64 `toml:"dt"`           // 0 = take the scenario's timestep
	BatchSize   int     `toml:"batch_size"`   // 0 = particles/6
	Variant     string  `toml:"variant"`      // bevy, specs, legion, trap-first, simple
	Scenario    string  `toml:"scenario"`     // YAML file; empty = default population
	ForceScript string  `toml:"force_script"` // Lua file; empty = built-in harmonic law
}

type SchedulerConfig struct {
	Workers         int    `toml:"workers"` // 0 = GOMAXPROCS
	ParallelSystems bool   `toml:"parallel_systems"`
	Trace           bool   `toml:"trace"`
	Metrics         bool   `toml:"metrics"`        // Prometheus text on stderr after each run
	LogSummaries    bool   `toml:"log_summaries"`  // one log entry per system run
	SummaryFormat   string `toml:"summary_format"` // "json" or "kv"
	SigNoz          bool   `toml:"signoz"`         // JSON spans on stderr
	SigNozService   string `toml:"signoz_service"`
}

type BenchmarkConfig struct {
	Backends []string `toml:"backends"` // "verletecs", "ark"
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ProfileConfig struct {
	Mode string `toml:"mode"` // "", "cpu", "mem", "trace"
	Path string `toml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default mirrors the bevy benchmark: 6000 particles, 1000 steps, 5 runs.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Particles: 6000,
			Steps:     1000,
			Runs:      5,
			Variant:   "bevy",
		},
		Scheduler: SchedulerConfig{
			SummaryFormat: "json",
			SigNozService: "verletbench",
		},
		Benchmark: BenchmarkConfig{
			Backends: []string{"verletecs"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Profile: ProfileConfig{
			Path: ".",
		},
	}
}

func (c *Config) Validate() error {
	s := c.Simulation
	switch {
	case s.Particles < 0:
		return fmt.Errorf("simulation.particles must not be negative, got %d", s.Particles)
	case s.Steps <= 0:
		return fmt.Errorf("simulation.steps must be positive, got %d", s.Steps)
	case s.Runs <= 0:
		return fmt.Errorf("simulation.runs must be positive, got %d", s.Runs)
	case s.DT < 0:
		return fmt.Errorf("simulation.dt must not be negative, got %v", s.DT)
	case s.BatchSize < 0:
		return fmt.Errorf("simulation.batch_size must not be negative, got %d", s.BatchSize)
	case c.Scheduler.Workers < 0:
		return fmt.Errorf("scheduler.workers must not be negative, got %d", c.Scheduler.Workers)
	}
	if len(c.Benchmark.Backends) == 0 {
		return fmt.Errorf("benchmark.backends is empty")
	}
	for _, b := range c.Benchmark.Backends {
		switch b {
		case "verletecs", "ark":
		default:
			return fmt.Errorf("unknown backend %q", b)
		}
	}
	switch c.Scheduler.SummaryFormat {
	case "", "json", "kv":
	default:
		return fmt.Errorf("unknown scheduler.summary_format %q", c.Scheduler.SummaryFormat)
	}
	switch strings.ToLower(c.Profile.Mode) {
	case "", "cpu", "mem", "trace":
	default:
		return fmt.Errorf("unknown profile mode %q", c.Profile.Mode)
	}
	return nil
}
