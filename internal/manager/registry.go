package manager

import (
	"sort"

	"blackboxd/internal/telemetry"
	"blackboxd/pkg/types"
)

// activeLocked counts deployments holding a slot. Caller holds m.mu.
func (m *Manager) activeLocked() int {
	n := 0
	for _, d := range m.deployments {
		if d.State != StateStopped {
			n++
		}
	}
	return n
}

// reserve checks capacity, picks a port and records a Deploying placeholder
// so the slot and port stay held across the container launch.
func (m *Manager) reserve(modelID string, preferredPort int) (*Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.deployments[modelID]; ok && d.State != StateStopped {
		return nil, ErrCapacity("model %s is already deployed on port %d", modelID, d.Port)
	}
	if m.activeLocked() >= m.cfg.MaxConcurrentModels {
		return nil, ErrCapacity("max concurrent models reached (%d)", m.cfg.MaxConcurrentModels)
	}

	port, err := m.allocatePortLocked(preferredPort)
	if err != nil {
		return nil, err
	}

	d := &Deployment{
		ModelID: modelID,
		Port:    port,
		State:   StateDeploying,
	}
	m.deployments[modelID] = d
	m.ports[port] = modelID
	return d, nil
}

// allocatePortLocked returns preferred if it is inside the range and free,
// otherwise the first free port scanning up from the base. Caller holds m.mu.
func (m *Manager) allocatePortLocked(preferred int) (int, error) {
	base, limit := m.cfg.BasePort, m.cfg.BasePort+m.cfg.PortRange
	if preferred >= base && preferred < limit {
		if _, taken := m.ports[preferred]; !taken {
			return preferred, nil
		}
	}
	for p := base; p < limit; p++ {
		if _, taken := m.ports[p]; !taken {
			return p, nil
		}
	}
	return 0, ErrCapacity("no free port in range %d-%d", base, limit-1)
}

// release drops a reservation that never became a running deployment.
func (m *Manager) release(d *Deployment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.deployments[d.ModelID]; ok && cur == d {
		delete(m.deployments, d.ModelID)
		delete(m.ports, d.Port)
	}
}

// resolve finds a deployment by model id, container name or container id.
func (m *Manager) resolveLocked(target string) *Deployment {
	if d, ok := m.deployments[target]; ok {
		return d
	}
	for _, d := range m.deployments {
		if d.ContainerName == target || d.ContainerID == target {
			return d
		}
	}
	return nil
}

// Targets lists running deployments for the telemetry collector.
func (m *Manager) Targets() []telemetry.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]telemetry.Target, 0, len(m.deployments))
	for _, d := range m.deployments {
		if d.State != StateRunning && d.State != StateDegraded {
			continue
		}
		out = append(out, telemetry.Target{ModelID: d.ModelID, Port: d.Port, PID: d.PID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// ListModels builds the registry view served by GET /models.
func (m *Manager) ListModels() types.ModelsResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()

	models := make([]types.DeployedModelInfo, 0, len(m.deployments))
	running := 0
	for _, d := range m.deployments {
		if d.State == StateRunning {
			running++
		}
		models = append(models, types.DeployedModelInfo{
			ModelID:           d.ModelID,
			ContainerID:       d.ContainerID,
			ContainerName:     d.ContainerName,
			Port:              d.Port,
			State:             string(d.State),
			Running:           d.State == StateRunning,
			GPUType:           d.GPUType,
			PID:               d.PID,
			MaxGPUUtilization: d.MaxGPUUtilization,
			PeakUsagePercent:  d.peakPercent,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ModelID < models[j].ModelID })

	return types.ModelsResponse{
		Models:     models,
		Total:      len(models),
		Running:    running,
		MaxAllowed: m.cfg.MaxConcurrentModels,
	}
}
