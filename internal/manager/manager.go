package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"blackboxd/internal/engineconfig"
	"blackboxd/internal/hub"
	"blackboxd/internal/runtime"
	"blackboxd/pkg/types"
)

// DeployState tracks where a deployment sits in its lifecycle.
type DeployState string

const (
	StateDeploying DeployState = "deploying"
	StateRunning   DeployState = "running"
	StateDegraded  DeployState = "degraded"
	StateStopped   DeployState = "stopped"
)

// HealthProber checks liveness of a vLLM engine on a local port.
type HealthProber interface {
	Health(ctx context.Context, port int) error
}

// usageSample is one per-model usage reading with its capture time.
type usageSample struct {
	at  time.Time
	pct float64
}

// Deployment is the registry's record of one managed model.
type Deployment struct {
	ModelID           string
	ContainerID       string
	ContainerName     string
	Port              int
	State             DeployState
	GPUType           string
	PID               int
	MaxGPUUtilization float64
	CreatedAt         time.Time

	credential    string
	samples       []usageSample
	sampleHead    int
	sampleCount   int
	peakPercent   float64
	probeFailures int
}

// snapshotSample is one aggregate snapshot reading kept for windowed stats.
type snapshotSample struct {
	at          time.Time
	usedBytes   float64
	usedPercent float64
	kvBytes     float64
	hitRate     float64
	reqRunning  float64
	reqWaiting  float64
	perModel    map[string]float64
}

// Config carries the tunables and collaborators the manager needs.
type Config struct {
	MaxConcurrentModels   int
	BasePort              int
	PortRange             int
	SampleCapacity        int
	ProbeFailureThreshold int
	OptimizationWindow    time.Duration
	MinOptimizeSamples    int
	OverageTolerancePct   float64
	PressureThresholdPct  float64
	TargetUsedPct         float64
	HubCredential         string
	GPUType               string
	LaunchTimeout         time.Duration

	Runtime runtime.ContainerRuntime
	Hub     hub.Validator
	Prober  HealthProber
	Engines *engineconfig.Store

	// DetectGPUType resolves the local GPU model when neither the request
	// nor the config names one. May be nil.
	DetectGPUType func() string

	Logger zerolog.Logger
}

// Manager owns the deployment registry, the usage sample rings and the
// orchestration of deploy, spindown, health and optimization.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu          sync.RWMutex
	deployments map[string]*Deployment
	ports       map[int]string

	snapMu    sync.RWMutex
	snapshots []snapshotSample
	snapHead  int
	snapCount int
	latest    *types.VRAMSnapshot
}

// New builds a Manager from cfg. Zero tunables fall back to safe defaults.
func New(cfg Config) *Manager {
	if cfg.MaxConcurrentModels <= 0 {
		cfg.MaxConcurrentModels = 3
	}
	if cfg.BasePort <= 0 {
		cfg.BasePort = 8000
	}
	if cfg.PortRange <= 0 {
		cfg.PortRange = 1000
	}
	if cfg.SampleCapacity <= 0 {
		cfg.SampleCapacity = 100
	}
	if cfg.ProbeFailureThreshold <= 0 {
		cfg.ProbeFailureThreshold = 3
	}
	if cfg.OptimizationWindow <= 0 {
		cfg.OptimizationWindow = 5 * time.Minute
	}
	if cfg.MinOptimizeSamples <= 0 {
		cfg.MinOptimizeSamples = 5
	}
	if cfg.OverageTolerancePct <= 0 {
		cfg.OverageTolerancePct = 10
	}
	if cfg.PressureThresholdPct <= 0 {
		cfg.PressureThresholdPct = 85
	}
	if cfg.TargetUsedPct <= 0 {
		cfg.TargetUsedPct = 75
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 2 * time.Minute
	}
	return &Manager{
		cfg:         cfg,
		log:         cfg.Logger.With().Str("component", "manager").Logger(),
		deployments: make(map[string]*Deployment),
		ports:       make(map[int]string),
		snapshots:   make([]snapshotSample, cfg.SampleCapacity),
	}
}

func (d *Deployment) recordSample(at time.Time, pct float64, capacity int) {
	if len(d.samples) < capacity {
		d.samples = append(d.samples, usageSample{at: at, pct: pct})
	} else {
		d.samples[d.sampleHead] = usageSample{at: at, pct: pct}
	}
	d.sampleHead = (d.sampleHead + 1) % capacity
	if d.sampleCount < capacity {
		d.sampleCount++
	}
	if pct > d.peakPercent {
		d.peakPercent = pct
	}
}

// windowSamples returns the usage readings newer than cutoff.
func (d *Deployment) windowSamples(cutoff time.Time) []float64 {
	out := make([]float64, 0, d.sampleCount)
	for i := 0; i < d.sampleCount; i++ {
		s := d.samples[i]
		if !s.at.Before(cutoff) {
			out = append(out, s.pct)
		}
	}
	return out
}
