package manager

import (
	"context"
	"strings"
	"time"

	"blackboxd/internal/runtime"
	"blackboxd/pkg/types"
)

// Deploy validates req against the hub, reserves a slot and port, launches
// a vLLM container and commits the deployment. Failures leave the registry
// exactly as it was: validation happens before any reservation and a failed
// launch releases the reservation.
func (m *Manager) Deploy(ctx context.Context, req types.DeployRequest) (types.DeployedModelInfo, error) {
	modelID := strings.TrimSpace(req.ModelID)
	if modelID == "" {
		return types.DeployedModelInfo{}, ErrValidation("model_id is required")
	}

	credential := req.Credential
	if credential == "" {
		credential = m.cfg.HubCredential
	}

	info, err := m.cfg.Hub.Validate(ctx, modelID, credential)
	if err != nil {
		return types.DeployedModelInfo{}, ErrValidation("%v", err)
	}
	if info.Gated && credential == "" {
		return types.DeployedModelInfo{}, ErrValidation("model %s is gated and requires a credential", modelID)
	}

	gpuType := req.GPUType
	if gpuType == "" {
		gpuType = m.cfg.GPUType
	}
	if gpuType == "" && m.cfg.DetectGPUType != nil {
		gpuType = m.cfg.DetectGPUType()
	}

	d, err := m.reserve(modelID, req.Port)
	if err != nil {
		return types.DeployedModelInfo{}, err
	}

	configPath := m.cfg.Engines.PathFor(gpuType)
	maxUtil := m.cfg.Engines.MaxGPUUtilization(configPath)

	// The launch outlives the request: once the slot is reserved a client
	// disconnect must not orphan a half-started container.
	launchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.LaunchTimeout)
	defer cancel()

	spec := runtime.LaunchSpec{
		ModelID:       modelID,
		ContainerName: runtime.ContainerName(modelID),
		HostPort:      d.Port,
		Credential:    credential,
		ConfigPath:    configPath,
	}
	ct, err := m.cfg.Runtime.Launch(launchCtx, spec)
	if err != nil {
		m.release(d)
		return types.DeployedModelInfo{}, launchError{modelID: modelID, cause: err}
	}

	m.mu.Lock()
	if cur, ok := m.deployments[modelID]; !ok || cur != d {
		m.mu.Unlock()
		// A concurrent spindown dropped the reservation while the
		// container was starting. The container must not outlive its
		// registry entry.
		m.teardownContainer(launchCtx, ct.ID)
		return types.DeployedModelInfo{}, ErrNotFound(modelID)
	}
	d.ContainerID = ct.ID
	d.ContainerName = spec.ContainerName
	d.PID = ct.PID
	d.State = StateRunning
	d.GPUType = gpuType
	d.MaxGPUUtilization = maxUtil
	d.CreatedAt = time.Now()
	d.credential = credential
	out := types.DeployedModelInfo{
		ModelID:           d.ModelID,
		ContainerID:       d.ContainerID,
		ContainerName:     d.ContainerName,
		Port:              d.Port,
		State:             string(d.State),
		Running:           true,
		GPUType:           d.GPUType,
		PID:               d.PID,
		MaxGPUUtilization: d.MaxGPUUtilization,
	}
	m.mu.Unlock()

	m.log.Info().
		Str("model", modelID).
		Str("container", out.ContainerID).
		Int("port", out.Port).
		Msg("model deployed")
	return out, nil
}

// Spindown stops and removes the container behind target (a model id,
// container name or container id) and deletes the registry entry. An
// unknown target returns notFoundError with the registry untouched.
func (m *Manager) Spindown(ctx context.Context, target string) (types.SpindownResponse, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return types.SpindownResponse{}, ErrValidation("model_id or container_id is required")
	}

	m.mu.Lock()
	d := m.resolveLocked(target)
	if d == nil {
		m.mu.Unlock()
		return types.SpindownResponse{}, ErrNotFound(target)
	}
	d.State = StateStopped
	delete(m.deployments, d.ModelID)
	delete(m.ports, d.Port)
	ref := d.ContainerID
	if ref == "" {
		ref = d.ContainerName
	}
	modelID := d.ModelID
	m.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.LaunchTimeout)
	defer cancel()
	m.teardownContainer(stopCtx, ref)

	m.log.Info().Str("model", modelID).Str("container", ref).Msg("model spun down")
	return types.SpindownResponse{
		Success: true,
		Message: "spun down " + modelID,
		Target:  modelID,
	}, nil
}

// teardownContainer stops and removes a container, logging failures rather
// than returning them. An empty ref is a deployment that never got a
// container; the in-flight launch tears its own container down.
func (m *Manager) teardownContainer(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := m.cfg.Runtime.Stop(ctx, ref); err != nil {
		m.log.Warn().Err(err).Str("container", ref).Msg("container stop failed")
	}
	if err := m.cfg.Runtime.Remove(ctx, ref); err != nil {
		m.log.Warn().Err(err).Str("container", ref).Msg("container remove failed")
	}
}
