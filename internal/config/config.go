package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon. Zero values mean
// "unspecified" and are replaced by defaults in ApplyDefaults.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// Deployment limits.
	MaxConcurrentModels int `json:"max_concurrent_models" yaml:"max_concurrent_models" toml:"max_concurrent_models"`
	BasePort            int `json:"base_port" yaml:"base_port" toml:"base_port"`
	PortRange           int `json:"port_range" yaml:"port_range" toml:"port_range"`

	// Hub credential used when a deploy request omits one.
	HubCredential string `json:"hub_credential" yaml:"hub_credential" toml:"hub_credential"`
	// GPU type override; detected from the driver when empty.
	GPUType string `json:"gpu_type" yaml:"gpu_type" toml:"gpu_type"`
	// Directory holding per-GPU-type engine config files (T4.yaml, ...).
	EngineConfigDir string `json:"engine_config_dir" yaml:"engine_config_dir" toml:"engine_config_dir"`

	// Background loop cadence.
	PollInterval   time.Duration `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	HealthInterval time.Duration `json:"health_interval" yaml:"health_interval" toml:"health_interval"`

	// Sampler.
	SampleCapacity int `json:"sample_capacity" yaml:"sample_capacity" toml:"sample_capacity"`

	// Health probing.
	ProbeFailureThreshold int `json:"probe_failure_threshold" yaml:"probe_failure_threshold" toml:"probe_failure_threshold"`

	// Optimization tuning. Percent values are 0-100.
	OptimizationWindow   time.Duration `json:"optimization_window" yaml:"optimization_window" toml:"optimization_window"`
	MinOptimizeSamples   int           `json:"min_optimize_samples" yaml:"min_optimize_samples" toml:"min_optimize_samples"`
	OverageTolerancePct  float64       `json:"overage_tolerance_pct" yaml:"overage_tolerance_pct" toml:"overage_tolerance_pct"`
	PressureThresholdPct float64       `json:"pressure_threshold_pct" yaml:"pressure_threshold_pct" toml:"pressure_threshold_pct"`
	TargetUsedPct        float64       `json:"target_used_pct" yaml:"target_used_pct" toml:"target_used_pct"`

	// Streaming.
	StreamInterval    time.Duration `json:"stream_interval" yaml:"stream_interval" toml:"stream_interval"`
	StreamMaxLifetime time.Duration `json:"stream_max_lifetime" yaml:"stream_max_lifetime" toml:"stream_max_lifetime"`

	// CORS (opt-in).
	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultAddr                = ":8080"
	DefaultMaxConcurrentModels = 3
	DefaultBasePort            = 8000
	DefaultPortRange           = 1000
	DefaultSampleCapacity      = 100
	DefaultProbeFailures       = 3
	DefaultMinOptimizeSamples  = 5
)

// ApplyDefaults fills unset fields in place.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxConcurrentModels <= 0 {
		c.MaxConcurrentModels = DefaultMaxConcurrentModels
	}
	if c.BasePort <= 0 {
		c.BasePort = DefaultBasePort
	}
	if c.PortRange <= 0 {
		c.PortRange = DefaultPortRange
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Second
	}
	if c.SampleCapacity <= 0 {
		c.SampleCapacity = DefaultSampleCapacity
	}
	if c.ProbeFailureThreshold <= 0 {
		c.ProbeFailureThreshold = DefaultProbeFailures
	}
	if c.OptimizationWindow <= 0 {
		c.OptimizationWindow = time.Minute
	}
	if c.MinOptimizeSamples <= 0 {
		c.MinOptimizeSamples = DefaultMinOptimizeSamples
	}
	if c.OverageTolerancePct <= 0 {
		c.OverageTolerancePct = 10
	}
	if c.PressureThresholdPct <= 0 {
		c.PressureThresholdPct = 85
	}
	if c.TargetUsedPct <= 0 {
		c.TargetUsedPct = 75
	}
	if c.StreamInterval <= 0 {
		c.StreamInterval = time.Second
	}
	if c.StreamMaxLifetime <= 0 {
		c.StreamMaxLifetime = 30 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
