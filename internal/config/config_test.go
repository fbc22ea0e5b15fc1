package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "verletbench.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[simulation]
particles = 600
variant = "legion"

[scheduler]
workers = 4
log_summaries = true
summary_format = "kv"
signoz = true

[benchmark]
backends = ["verletecs", "ark"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Simulation.Particles != 600 || cfg.Simulation.Variant != "legion" {
		t.Fatalf("simulation not overridden: %+v", cfg.Simulation)
	}
	if cfg.Simulation.Steps != 1000 || cfg.Simulation.Runs != 5 {
		t.Fatalf("defaults lost: %+v", cfg.Simulation)
	}
	if cfg.Scheduler.Workers != 4 {
		t.Fatalf("workers = %d, want 4", cfg.Scheduler.Workers)
	}
	if !cfg.Scheduler.LogSummaries || cfg.Scheduler.SummaryFormat != "kv" || !cfg.Scheduler.SigNoz {
		t.Fatalf("observation toggles not loaded: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.SigNozService != "verletbench" {
		t.Fatalf("signoz service default lost: %q", cfg.Scheduler.SigNozService)
	}
	if !reflect.DeepEqual(cfg.Benchmark.Backends, []string{"verletecs", "ark"}) {
		t.Fatalf("backends = %v", cfg.Benchmark.Backends)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("logging default lost: %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"steps":   "[simulation]\nsteps = 0\n",
		"backend": "[benchmark]\nbackends = [\"flecs\"]\n",
		"profile": "[profile]\nmode = \"block\"\n",
		"syntax":  "[simulation\n",
		"workers": "[scheduler]\nworkers = -2\n",
		"summary": "[scheduler]\nsummary_format = \"xml\"\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "verletbench.toml"))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if cfg.Simulation.Variant == "" {
		t.Fatalf("sample config should name a variant")
	}
}
