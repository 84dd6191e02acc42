package manager

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"blackboxd/internal/runtime"
	"blackboxd/internal/stats"
	"blackboxd/pkg/types"
)

// optimizeCandidate is a deployment whose windowed average exceeds its
// configured memory budget.
type optimizeCandidate struct {
	modelID    string
	overage    float64
	windowAvg  float64
	peak       float64
	budgetPct  float64
	gpuType    string
	credential string
	port       int
}

// Optimize inspects aggregate memory pressure and restarts over-budget
// deployments with a tightened gpu-memory-utilization, worst first, until
// the projected usage drops below the target or no candidates remain. A
// restart that fails leaves the model stopped and is reported in the
// message; remaining candidates are still processed.
func (m *Manager) Optimize(ctx context.Context) types.OptimizeResponse {
	usedPct := m.latestUsedPercent()
	if usedPct < m.cfg.PressureThresholdPct {
		return types.OptimizeResponse{
			Success:         true,
			Optimized:       false,
			RestartedModels: []string{},
			Message: fmt.Sprintf("no memory pressure: %.1f%% used, threshold %.0f%%",
				usedPct, m.cfg.PressureThresholdPct),
		}
	}

	candidates := m.overBudgetCandidates()
	if len(candidates) == 0 {
		return types.OptimizeResponse{
			Success:         true,
			Optimized:       false,
			RestartedModels: []string{},
			Message: fmt.Sprintf("memory pressure at %.1f%% but no deployment exceeds its budget",
				usedPct),
		}
	}

	restarted := []string{}
	var failures []string
	// No snapshot arrives while the pass runs, so fold each restart's
	// expected release (its windowed overage) into the pressure estimate
	// instead of re-reading the same stale snapshot.
	projected := usedPct
	for _, c := range candidates {
		if projected <= m.cfg.TargetUsedPct {
			break
		}
		if err := m.restartTightened(ctx, c); err != nil {
			m.log.Error().Err(err).Str("model", c.modelID).Msg("optimization restart failed")
			failures = append(failures, fmt.Sprintf("%s: %v", c.modelID, err))
			continue
		}
		optimizeRestartsTotal.Inc()
		restarted = append(restarted, c.modelID)
		projected -= c.overage
	}

	msg := fmt.Sprintf("restarted %d of %d over-budget deployments", len(restarted), len(candidates))
	if len(failures) > 0 {
		msg += "; failed: " + strings.Join(failures, ", ")
	}
	return types.OptimizeResponse{
		Success:         true,
		Optimized:       true,
		RestartedModels: restarted,
		Message:         msg,
	}
}

func (m *Manager) latestUsedPercent() float64 {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	if m.latest == nil || !m.latest.Available {
		return 0
	}
	return m.latest.UsedPercent
}

// overBudgetCandidates lists running deployments whose windowed average
// usage exceeds budget plus tolerance, worst overage first, ties broken by
// model id.
func (m *Manager) overBudgetCandidates() []optimizeCandidate {
	cutoff := time.Now().Add(-m.cfg.OptimizationWindow)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []optimizeCandidate
	for _, d := range m.deployments {
		if d.State != StateRunning && d.State != StateDegraded {
			continue
		}
		window := d.windowSamples(cutoff)
		if len(window) < m.cfg.MinOptimizeSamples {
			continue
		}
		avg := stats.Avg(window)

		budgetPct := d.MaxGPUUtilization * 100
		allowed := budgetPct * (1 + m.cfg.OverageTolerancePct/100)
		if avg <= allowed {
			continue
		}
		out = append(out, optimizeCandidate{
			modelID:    d.ModelID,
			overage:    avg - allowed,
			windowAvg:  avg,
			peak:       d.peakPercent,
			budgetPct:  budgetPct,
			gpuType:    d.GPUType,
			credential: d.credential,
			port:       d.Port,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].overage != out[j].overage {
			return out[i].overage > out[j].overage
		}
		return out[i].modelID < out[j].modelID
	})
	return out
}

// restartTightened spins the deployment down and redeploys it with a config
// whose gpu-memory-utilization is tightened to the observed peak.
func (m *Manager) restartTightened(ctx context.Context, c optimizeCandidate) error {
	if _, err := m.Spindown(ctx, c.modelID); err != nil {
		return err
	}

	target := c.peak / 100
	if target == 0 {
		target = c.windowAvg / 100
	}
	base := m.cfg.Engines.PathFor(c.gpuType)
	configPath, err := m.cfg.Engines.WriteAdjusted(base, runtime.ContainerName(c.modelID), target)
	if err != nil {
		m.log.Warn().Err(err).Str("model", c.modelID).Msg("adjusted config write failed, redeploying with base config")
		configPath = base
	}

	return m.redeploy(ctx, c, configPath)
}

func (m *Manager) redeploy(ctx context.Context, c optimizeCandidate, configPath string) error {
	d, err := m.reserve(c.modelID, c.port)
	if err != nil {
		return err
	}

	launchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.LaunchTimeout)
	defer cancel()

	spec := runtime.LaunchSpec{
		ModelID:       c.modelID,
		ContainerName: runtime.ContainerName(c.modelID),
		HostPort:      d.Port,
		Credential:    c.credential,
		ConfigPath:    configPath,
	}
	ct, err := m.cfg.Runtime.Launch(launchCtx, spec)
	if err != nil {
		m.release(d)
		return launchError{modelID: c.modelID, cause: err}
	}

	m.mu.Lock()
	if cur, ok := m.deployments[c.modelID]; !ok || cur != d {
		m.mu.Unlock()
		m.teardownContainer(launchCtx, ct.ID)
		return ErrNotFound(c.modelID)
	}
	d.ContainerID = ct.ID
	d.ContainerName = spec.ContainerName
	d.PID = ct.PID
	d.State = StateRunning
	d.GPUType = c.gpuType
	d.MaxGPUUtilization = m.cfg.Engines.MaxGPUUtilization(configPath)
	d.CreatedAt = time.Now()
	d.credential = c.credential
	m.mu.Unlock()

	m.log.Info().
		Str("model", c.modelID).
		Float64("gpu_memory_utilization", d.MaxGPUUtilization).
		Msg("deployment restarted with tightened config")
	return nil
}
