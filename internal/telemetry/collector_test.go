package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"blackboxd/internal/vllm"
	"blackboxd/pkg/types"
)

type fakeQuerier struct {
	total, used, free uint64
	memErr            error
	procs             []types.ProcessMemory
	name              string
}

func (f *fakeQuerier) DeviceMemory(context.Context) (uint64, uint64, uint64, error) {
	if f.memErr != nil {
		return 0, 0, 0, f.memErr
	}
	return f.total, f.used, f.free, nil
}

func (f *fakeQuerier) ComputeProcesses(context.Context) ([]types.ProcessMemory, error) {
	return f.procs, nil
}

func (f *fakeQuerier) DeviceName(context.Context) (string, error) { return f.name, nil }

type fakeTargets struct{ targets []Target }

func (f *fakeTargets) Targets() []Target { return f.targets }

type fakeEngines struct {
	metrics map[int]vllm.EngineMetrics
}

func (f *fakeEngines) Metrics(_ context.Context, port int) (vllm.EngineMetrics, error) {
	if m, ok := f.metrics[port]; ok {
		return m, nil
	}
	return vllm.EngineMetrics{}, errors.New("unreachable")
}

const gib = uint64(1024 * 1024 * 1024)

func newTestCollector(q DeviceQuerier, e EngineMetricsSource, t TargetLister) *Collector {
	return NewCollector(q, e, t, zerolog.Nop())
}

func TestCollectDegradedOnDriverFailure(t *testing.T) {
	q := &fakeQuerier{memErr: errors.New("driver not loaded")}
	c := newTestCollector(q, &fakeEngines{}, &fakeTargets{})
	snap := c.Collect(context.Background())
	if snap.Available {
		t.Fatalf("expected degraded snapshot")
	}
	if snap.TotalBytes != 0 || snap.UsedBytes != 0 {
		t.Fatalf("degraded snapshot should be zeroed: %+v", snap)
	}
	if snap.DriverError == "" {
		t.Fatalf("expected driver error message")
	}
	if snap.Processes == nil || snap.Blocks == nil || snap.Models == nil {
		t.Fatalf("slices must be non-nil for JSON clients")
	}
}

func TestCollectTotalsAndFragmentation(t *testing.T) {
	q := &fakeQuerier{total: 16 * gib, used: 12 * gib, free: 4 * gib}
	c := newTestCollector(q, &fakeEngines{}, &fakeTargets{})
	snap := c.Collect(context.Background())
	if !snap.Available {
		t.Fatalf("expected available snapshot")
	}
	if snap.UsedPercent != 75 {
		t.Fatalf("used percent=%v", snap.UsedPercent)
	}
	if snap.FragmentationRatio != 0.75 {
		t.Fatalf("fragmentation=%v", snap.FragmentationRatio)
	}
}

func TestCollectAttributesByPID(t *testing.T) {
	q := &fakeQuerier{
		total: 16 * gib, used: 8 * gib, free: 8 * gib,
		procs: []types.ProcessMemory{
			{PID: 101, Name: "python3", UsedBytes: 6 * gib},
			{PID: 202, Name: "other", UsedBytes: 2 * gib},
		},
	}
	engines := &fakeEngines{metrics: map[int]vllm.EngineMetrics{
		8000: {Available: true, NumGPUBlocks: 4, KVCacheUsage: 0.5, PrefixCacheHitRate: 40},
	}}
	targets := &fakeTargets{targets: []Target{{ModelID: "m1", Port: 8000, PID: 101}}}
	c := newTestCollector(q, engines, targets)

	snap := c.Collect(context.Background())
	if len(snap.Models) != 1 {
		t.Fatalf("models=%d", len(snap.Models))
	}
	m := snap.Models[0]
	if m.AllocatedVRAMBytes != 6*gib {
		t.Fatalf("allocated=%d", m.AllocatedVRAMBytes)
	}
	if m.UsagePercent != 37.5 {
		t.Fatalf("usage percent=%v", m.UsagePercent)
	}
	if len(snap.Blocks) != 4 {
		t.Fatalf("blocks=%d", len(snap.Blocks))
	}
	utilized := 0
	for _, b := range snap.Blocks {
		if b.ModelID != "m1" || b.Type != "kv_cache" || !b.Allocated {
			t.Fatalf("bad block: %+v", b)
		}
		if b.Utilized {
			utilized++
		}
	}
	if utilized != 2 {
		t.Fatalf("utilized blocks=%d want 2", utilized)
	}
	if snap.ActiveBlocks != 2 || snap.FreeBlocks != 2 || snap.AllocatedBlocks != 4 {
		t.Fatalf("block totals wrong: %+v", snap)
	}
	if snap.PrefixCacheHitRate != 40 {
		t.Fatalf("hit rate=%v", snap.PrefixCacheHitRate)
	}
}

func TestCollectRedistributesUnattributedMemory(t *testing.T) {
	// No pid matches: the full used amount is split evenly between models.
	q := &fakeQuerier{total: 16 * gib, used: 8 * gib, free: 8 * gib}
	targets := &fakeTargets{targets: []Target{
		{ModelID: "a", Port: 8000, PID: 0},
		{ModelID: "b", Port: 8001, PID: 0},
	}}
	c := newTestCollector(q, &fakeEngines{}, targets)

	snap := c.Collect(context.Background())
	if len(snap.Models) != 2 {
		t.Fatalf("models=%d", len(snap.Models))
	}
	for _, m := range snap.Models {
		if m.AllocatedVRAMBytes != 4*gib {
			t.Fatalf("model %s allocated=%d want even split", m.ModelID, m.AllocatedVRAMBytes)
		}
		if m.UsagePercent != 25 {
			t.Fatalf("model %s usage=%v", m.ModelID, m.UsagePercent)
		}
	}
}

func TestGPUTypeFromName(t *testing.T) {
	cases := map[string]string{
		"NVIDIA A100-SXM4-80GB": "A100",
		"NVIDIA H100 PCIe":      "H100",
		"NVIDIA L40S":           "L40",
		"Tesla T4":              "T4",
		"GeForce RTX 4090":      "T4",
	}
	for name, want := range cases {
		if got := GPUTypeFromName(name); got != want {
			t.Fatalf("GPUTypeFromName(%q)=%q want %q", name, got, want)
		}
	}
}
