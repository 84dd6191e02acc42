package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Addr != DefaultAddr {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.MaxConcurrentModels != DefaultMaxConcurrentModels {
		t.Errorf("max models = %d", cfg.MaxConcurrentModels)
	}
	if cfg.BasePort != DefaultBasePort || cfg.PortRange != DefaultPortRange {
		t.Errorf("port window = %d/%d", cfg.BasePort, cfg.PortRange)
	}
	if cfg.PollInterval != 2*time.Second || cfg.HealthInterval != 5*time.Second {
		t.Errorf("intervals = %v/%v", cfg.PollInterval, cfg.HealthInterval)
	}
	if cfg.SampleCapacity != DefaultSampleCapacity {
		t.Errorf("sample capacity = %d", cfg.SampleCapacity)
	}
	if cfg.PressureThresholdPct != 85 || cfg.TargetUsedPct != 75 {
		t.Errorf("pressure window = %v/%v", cfg.PressureThresholdPct, cfg.TargetUsedPct)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{Addr: ":9000", MaxConcurrentModels: 5, SampleCapacity: 10}
	cfg.ApplyDefaults()
	if cfg.Addr != ":9000" || cfg.MaxConcurrentModels != 5 || cfg.SampleCapacity != 10 {
		t.Errorf("explicit values overridden: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
addr: ":9090"
max_concurrent_models: 2
base_port: 9000
gpu_type: A100
cors_enabled: true
cors_origins:
  - https://dashboard.example.com
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.MaxConcurrentModels != 2 || cfg.BasePort != 9000 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.GPUType != "A100" {
		t.Errorf("gpu type = %q", cfg.GPUType)
	}
	if !cfg.CORSEnabled || len(cfg.CORSOrigins) != 1 {
		t.Errorf("cors = %v %v", cfg.CORSEnabled, cfg.CORSOrigins)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "addr": ":7000",
  "probe_failure_threshold": 4,
  "overage_tolerance_pct": 15.5
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7000" || cfg.ProbeFailureThreshold != 4 || cfg.OverageTolerancePct != 15.5 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
addr = ":6000"
poll_interval = "3s"
optimization_window = "2m"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":6000" {
		t.Errorf("addr = %q", cfg.Addr)
	}
	if cfg.PollInterval != 3*time.Second || cfg.OptimizationWindow != 2*time.Minute {
		t.Errorf("durations = %v/%v", cfg.PollInterval, cfg.OptimizationWindow)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "config.ini", "addr=:1234")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
