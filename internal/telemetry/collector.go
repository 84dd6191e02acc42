package telemetry

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"blackboxd/internal/vllm"
	"blackboxd/pkg/types"
)

// Target is a running deployment the collector attributes memory to.
type Target struct {
	ModelID string
	Port    int
	PID     int
}

// TargetLister exposes the running deployments. Implemented by the manager
// registry.
type TargetLister interface {
	Targets() []Target
}

// EngineMetricsSource scrapes one inference server's metrics. Implemented by
// the vllm client.
type EngineMetricsSource interface {
	Metrics(ctx context.Context, port int) (vllm.EngineMetrics, error)
}

// fallbackBlockSize is used when a deployment exposes block counts before
// any memory could be attributed to it. 16 KiB is vLLM's typical block size.
const fallbackBlockSize = 16 * 1024

// Collector assembles VRAM snapshots from the driver, the OS process table
// and the per-deployment engine metrics.
type Collector struct {
	querier DeviceQuerier
	engines EngineMetricsSource
	targets TargetLister
	log     zerolog.Logger
}

func NewCollector(q DeviceQuerier, e EngineMetricsSource, t TargetLister, log zerolog.Logger) *Collector {
	return &Collector{
		querier: q,
		engines: e,
		targets: t,
		log:     log.With().Str("component", "collector").Logger(),
	}
}

// Collect builds a snapshot of current hardware/OS state. It never fails:
// a driver error yields a degraded snapshot with Available=false so that
// telemetry trouble cannot propagate as request failures.
func (c *Collector) Collect(ctx context.Context) types.VRAMSnapshot {
	snap := types.VRAMSnapshot{
		TimestampUnix: time.Now().Unix(),
		Processes:     []types.ProcessMemory{},
		Threads:       []types.ThreadInfo{},
		Blocks:        []types.MemoryBlock{},
		Models:        []types.ModelVRAMInfo{},
	}

	total, used, free, err := c.querier.DeviceMemory(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("driver query failed, returning degraded snapshot")
		snap.DriverError = err.Error()
		return snap
	}
	snap.Available = true
	snap.TotalBytes = total
	snap.UsedBytes = used
	snap.FreeBytes = free
	snap.ReservedBytes = used
	if total > 0 {
		snap.UsedPercent = 100 * float64(used) / float64(total)
		snap.FragmentationRatio = 1 - float64(free)/float64(total)
	}

	procs, err := c.querier.ComputeProcesses(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("process query failed")
	}
	for _, p := range procs {
		if p.Name == "" || p.Name == "unknown" {
			p.Name = processName(p.PID)
		}
		snap.Processes = append(snap.Processes, p)
		snap.Threads = append(snap.Threads, types.ThreadInfo{
			ThreadID:       p.PID,
			AllocatedBytes: p.UsedBytes,
			State:          processState(p.PID),
		})
	}

	c.attributeModels(ctx, &snap)
	return snap
}

// attributeModels matches processes and engine metrics to registered
// deployments and derives per-model usage plus the synthetic block map.
// Attribution is best effort: unattributed memory is redistributed.
func (c *Collector) attributeModels(ctx context.Context, snap *types.VRAMSnapshot) {
	targets := c.targets.Targets()
	if len(targets) == 0 {
		return
	}

	// Per-model allocated bytes via process identity.
	alloc := make(map[string]uint64, len(targets))
	var matched uint64
	for _, t := range targets {
		for _, p := range snap.Processes {
			if p.PID == t.PID && t.PID > 0 {
				alloc[t.ModelID] += p.UsedBytes
				matched += p.UsedBytes
			}
		}
	}

	var totalKV uint64
	var allocatedBlocks, utilizedBlocks int
	var hitRateSum float64
	var hitRateN int
	var reqRunning, reqWaiting float64

	for _, t := range targets {
		info := types.ModelVRAMInfo{ModelID: t.ModelID, Port: t.Port, AllocatedVRAMBytes: alloc[t.ModelID]}

		em, err := c.engines.Metrics(ctx, t.Port)
		if err != nil {
			c.log.Debug().Err(err).Str("model", t.ModelID).Msg("engine metrics unavailable")
		}
		if em.Available {
			reqRunning += em.RequestsRunning
			reqWaiting += em.RequestsWaiting
		}
		if em.Available && em.NumGPUBlocks > 0 {
			blockSize := em.BlockSizeBytes
			if info.AllocatedVRAMBytes > 0 {
				blockSize = info.AllocatedVRAMBytes / uint64(em.NumGPUBlocks)
			}
			if blockSize == 0 {
				blockSize = fallbackBlockSize
			}
			utilized := int(math.Round(float64(em.NumGPUBlocks) * em.KVCacheUsage))
			if utilized > em.NumGPUBlocks {
				utilized = em.NumGPUBlocks
			}
			kvUsed := uint64(float64(em.NumGPUBlocks) * float64(blockSize) * em.KVCacheUsage)
			if info.AllocatedVRAMBytes > 0 && kvUsed > info.AllocatedVRAMBytes {
				kvUsed = info.AllocatedVRAMBytes
			}
			info.UsedKVCacheBytes = kvUsed
			totalKV += kvUsed

			for i := 0; i < em.NumGPUBlocks; i++ {
				snap.Blocks = append(snap.Blocks, types.MemoryBlock{
					BlockID:   i,
					Size:      blockSize,
					Type:      "kv_cache",
					Allocated: true,
					Utilized:  i < utilized,
					ModelID:   t.ModelID,
					Port:      t.Port,
				})
			}
			allocatedBlocks += em.NumGPUBlocks
			utilizedBlocks += utilized

			if em.PrefixCacheHitRate > 0 {
				hitRateSum += em.PrefixCacheHitRate
				hitRateN++
			}
		}
		snap.Models = append(snap.Models, info)
	}

	// If process matching explains less than half of used VRAM, spread the
	// remainder across deployments, weighted by KV usage when known.
	if snap.UsedBytes > 0 && matched < snap.UsedBytes/2 {
		remaining := snap.UsedBytes - matched
		if totalKV > 0 {
			for i := range snap.Models {
				m := &snap.Models[i]
				if m.UsedKVCacheBytes > 0 {
					share := float64(m.UsedKVCacheBytes) / float64(totalKV)
					m.AllocatedVRAMBytes += uint64(float64(remaining) * share)
				}
			}
		} else if len(snap.Models) > 0 {
			per := remaining / uint64(len(snap.Models))
			for i := range snap.Models {
				snap.Models[i].AllocatedVRAMBytes += per
			}
		}
	}

	for i := range snap.Models {
		if snap.TotalBytes > 0 {
			snap.Models[i].UsagePercent = 100 * float64(snap.Models[i].AllocatedVRAMBytes) / float64(snap.TotalBytes)
		}
	}

	snap.TotalBlocks = allocatedBlocks
	snap.AllocatedBlocks = allocatedBlocks
	snap.ActiveBlocks = utilizedBlocks
	snap.FreeBlocks = allocatedBlocks - utilizedBlocks
	snap.UsedKVCacheBytes = totalKV
	snap.NumRequestsRunning = reqRunning
	snap.NumRequestsWaiting = reqWaiting
	if hitRateN > 0 {
		snap.PrefixCacheHitRate = hitRateSum / float64(hitRateN)
	}
}
