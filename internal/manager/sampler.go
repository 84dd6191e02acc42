package manager

import (
	"time"

	"blackboxd/internal/stats"
	"blackboxd/pkg/types"
)

// ObserveSnapshot records one telemetry snapshot: it becomes the latest
// served view, feeds the windowed aggregation ring and appends a usage
// sample to every deployment it mentions. Degraded snapshots update the
// latest view but contribute no samples.
func (m *Manager) ObserveSnapshot(snap types.VRAMSnapshot) {
	m.snapMu.Lock()
	m.latest = &snap
	if snap.Available {
		sample := snapshotSample{
			at:          time.Unix(snap.TimestampUnix, 0),
			usedBytes:   float64(snap.UsedBytes),
			usedPercent: snap.UsedPercent,
			kvBytes:     float64(snap.UsedKVCacheBytes),
			hitRate:     snap.PrefixCacheHitRate,
			reqRunning:  snap.NumRequestsRunning,
			reqWaiting:  snap.NumRequestsWaiting,
			perModel:    make(map[string]float64, len(snap.Models)),
		}
		for _, mi := range snap.Models {
			sample.perModel[mi.ModelID] = mi.UsagePercent
		}
		m.snapshots[m.snapHead] = sample
		m.snapHead = (m.snapHead + 1) % len(m.snapshots)
		if m.snapCount < len(m.snapshots) {
			m.snapCount++
		}
	}
	m.snapMu.Unlock()

	if !snap.Available {
		return
	}

	m.mu.Lock()
	at := time.Unix(snap.TimestampUnix, 0)
	for _, mi := range snap.Models {
		if d, ok := m.deployments[mi.ModelID]; ok && d.State != StateStopped {
			d.recordSample(at, mi.UsagePercent, m.cfg.SampleCapacity)
		}
	}
	m.mu.Unlock()

	updateVRAMMetrics(snap, m.ListModels())
}

// LatestSnapshot returns the most recent telemetry snapshot, or a degraded
// placeholder when no poll has completed yet.
func (m *Manager) LatestSnapshot() types.VRAMSnapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	if m.latest == nil {
		return types.VRAMSnapshot{
			DriverError:   "no telemetry collected yet",
			Processes:     []types.ProcessMemory{},
			Threads:       []types.ThreadInfo{},
			Blocks:        []types.MemoryBlock{},
			Models:        []types.ModelVRAMInfo{},
			TimestampUnix: time.Now().Unix(),
		}
	}
	return *m.latest
}

// Ready reports whether at least one telemetry poll has completed.
func (m *Manager) Ready() bool {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.latest != nil
}

// Aggregated summarizes the snapshot samples captured during the last
// windowSeconds. Windows are clamped to 1..3600 seconds.
func (m *Manager) Aggregated(windowSeconds int) types.AggregatedVRAMInfo {
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	if windowSeconds > 3600 {
		windowSeconds = 3600
	}
	cutoff := time.Now().Add(-time.Duration(windowSeconds) * time.Second)

	m.snapMu.RLock()
	var (
		usedBytes, usedPct, kvBytes, hitRate, running, waiting []float64
		perModel                                               = make(map[string][]float64)
	)
	for i := 0; i < m.snapCount; i++ {
		s := m.snapshots[i]
		if s.at.Before(cutoff) {
			continue
		}
		usedBytes = append(usedBytes, s.usedBytes)
		usedPct = append(usedPct, s.usedPercent)
		kvBytes = append(kvBytes, s.kvBytes)
		hitRate = append(hitRate, s.hitRate)
		running = append(running, s.reqRunning)
		waiting = append(waiting, s.reqWaiting)
		for id, pct := range s.perModel {
			perModel[id] = append(perModel[id], pct)
		}
	}
	var latest *types.VRAMSnapshot
	if m.latest != nil {
		cp := *m.latest
		latest = &cp
	}
	m.snapMu.RUnlock()

	out := types.AggregatedVRAMInfo{
		WindowSeconds:      windowSeconds,
		SampleCount:        len(usedPct),
		UsedBytes:          stats.Aggregate(usedBytes),
		UsedPercent:        stats.Aggregate(usedPct),
		UsedKVCacheBytes:   stats.Aggregate(kvBytes),
		PrefixCacheHitRate: stats.Aggregate(hitRate),
		RequestsRunning:    stats.Aggregate(running),
		RequestsWaiting:    stats.Aggregate(waiting),
		Models:             []types.ModelVRAMInfo{},
	}
	if latest != nil {
		out.TotalVRAMBytes = latest.TotalBytes
		out.Models = latest.Models
	}
	if len(perModel) > 0 {
		out.PerModelUsage = make(map[string]types.AggregatedStats, len(perModel))
		for id, vals := range perModel {
			out.PerModelUsage[id] = stats.Aggregate(vals)
		}
	}
	return out
}
