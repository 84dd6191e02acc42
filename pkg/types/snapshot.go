package types

// VRAMSnapshot is a point-in-time view of GPU memory produced by one
// telemetry poll. It is immutable once built; the next poll replaces it
// wholesale.
type VRAMSnapshot struct {
	// Whether the GPU driver answered this poll. When false the numeric
	// fields are zeroed and DriverError explains why.
	Available   bool   `json:"available"`
	DriverError string `json:"driver_error,omitempty"`

	TotalBytes    uint64  `json:"total_bytes"`
	UsedBytes     uint64  `json:"used_bytes"`
	FreeBytes     uint64  `json:"free_bytes"`
	ReservedBytes uint64  `json:"reserved_bytes"`
	UsedPercent   float64 `json:"used_percent"`

	TotalBlocks     int     `json:"total_blocks"`
	AllocatedBlocks int     `json:"allocated_blocks"`
	ActiveBlocks    int     `json:"active_blocks"`
	FreeBlocks      int     `json:"free_blocks"`

	FragmentationRatio float64 `json:"fragmentation_ratio"`

	UsedKVCacheBytes   uint64  `json:"used_kv_cache_bytes"`
	PrefixCacheHitRate float64 `json:"prefix_cache_hit_rate"`

	NumRequestsRunning float64 `json:"num_requests_running"`
	NumRequestsWaiting float64 `json:"num_requests_waiting"`

	Processes []ProcessMemory `json:"processes"`
	Threads   []ThreadInfo    `json:"threads"`
	Blocks    []MemoryBlock   `json:"blocks"`
	Models    []ModelVRAMInfo `json:"models"`

	TimestampUnix int64 `json:"timestamp_unix"`
}

// MemoryBlock is one tracked unit of GPU memory. Blocks are derived fresh
// on every poll and never persisted across polls.
type MemoryBlock struct {
	BlockID   int    `json:"block_id"`
	Address   uint64 `json:"address"`
	Size      uint64 `json:"size"`
	Type      string `json:"type"`
	Allocated bool   `json:"allocated"`
	Utilized  bool   `json:"utilized"`
	// Owning deployment, when the block could be attributed.
	ModelID string `json:"model_id,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// ProcessMemory is one OS process holding GPU memory.
type ProcessMemory struct {
	PID           int    `json:"pid"`
	Name          string `json:"name"`
	UsedBytes     uint64 `json:"used_bytes"`
	ReservedBytes uint64 `json:"reserved_bytes"`
}

// ThreadInfo is a lightweight view of a GPU-owning process thread.
type ThreadInfo struct {
	ThreadID       int    `json:"thread_id"`
	AllocatedBytes uint64 `json:"allocated_bytes"`
	State          string `json:"state"`
}

// ModelVRAMInfo is the per-deployment slice of a snapshot.
type ModelVRAMInfo struct {
	ModelID            string  `json:"model_id"`
	Port               int     `json:"port"`
	AllocatedVRAMBytes uint64  `json:"allocated_vram_bytes"`
	UsedKVCacheBytes   uint64  `json:"used_kv_cache_bytes"`
	UsagePercent       float64 `json:"usage_percent"`
}

// AggregatedStats summarizes a set of samples. Computed on demand, never
// stored.
type AggregatedStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// AggregatedVRAMInfo is returned by GET /vram/aggregated.
type AggregatedVRAMInfo struct {
	TotalVRAMBytes     uint64                     `json:"total_vram_bytes"`
	WindowSeconds      int                        `json:"window_seconds"`
	SampleCount        int                        `json:"sample_count"`
	UsedBytes          AggregatedStats            `json:"used_bytes"`
	UsedPercent        AggregatedStats            `json:"used_percent"`
	UsedKVCacheBytes   AggregatedStats            `json:"used_kv_cache_bytes"`
	PrefixCacheHitRate AggregatedStats            `json:"prefix_cache_hit_rate"`
	RequestsRunning    AggregatedStats            `json:"num_requests_running"`
	RequestsWaiting    AggregatedStats            `json:"num_requests_waiting"`
	Models             []ModelVRAMInfo            `json:"models"`
	PerModelUsage      map[string]AggregatedStats `json:"per_model_usage,omitempty"`
}
