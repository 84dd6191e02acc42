package types

// DeployRequest is the payload for POST /deploy.
type DeployRequest struct {
	// Hub identifier of the model to deploy, e.g. "TinyLlama/TinyLlama-1.1B-Chat-v1.0".
	ModelID string `json:"model_id"`
	// Hub access token. Required when the model is access-gated; falls back
	// to the server's configured credential when omitted.
	Credential string `json:"credential,omitempty"`
	// Preferred host port. Zero means auto-assign.
	Port int `json:"port,omitempty"`
	// GPU type override (A100, H100, L40, T4). Detected when omitted.
	GPUType string `json:"gpu_type,omitempty"`
}

// DeployResponse is returned by POST /deploy.
type DeployResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ContainerID string `json:"container_id,omitempty"`
	Port        int    `json:"port,omitempty"`
}

// SpindownRequest is the payload for POST /spindown. Either a model id or a
// container name/id identifies the target.
type SpindownRequest struct {
	ModelID     string `json:"model_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
}

// SpindownResponse is returned by POST /spindown.
type SpindownResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// DeployedModelInfo summarizes one registry entry for GET /models.
type DeployedModelInfo struct {
	ModelID       string  `json:"model_id"`
	ContainerID   string  `json:"container_id"`
	ContainerName string  `json:"container_name"`
	Port          int     `json:"port"`
	State         string  `json:"state"`
	Running       bool    `json:"running"`
	GPUType       string  `json:"gpu_type,omitempty"`
	PID           int     `json:"pid,omitempty"`
	// Configured share of total VRAM this deployment may use, 0-1.
	MaxGPUUtilization float64 `json:"max_gpu_utilization"`
	PeakUsagePercent  float64 `json:"peak_usage_percent"`
}

// ModelsResponse is returned by GET /models.
type ModelsResponse struct {
	Models     []DeployedModelInfo `json:"models"`
	Total      int                 `json:"total"`
	Running    int                 `json:"running"`
	MaxAllowed int                 `json:"max_allowed"`
}

// OptimizeResponse is returned by POST /optimize.
type OptimizeResponse struct {
	Success         bool     `json:"success"`
	Optimized       bool     `json:"optimized"`
	RestartedModels []string `json:"restarted_models"`
	Message         string   `json:"message"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
