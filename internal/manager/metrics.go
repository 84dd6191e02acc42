package manager

import (
	"github.com/prometheus/client_golang/prometheus"

	"blackboxd/pkg/types"
)

var (
	vramTotalBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blackbox",
		Subsystem: "vram",
		Name:      "total_bytes",
		Help:      "Total GPU memory in bytes",
	})

	vramUsedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blackbox",
		Subsystem: "vram",
		Name:      "used_bytes",
		Help:      "Used GPU memory in bytes",
	})

	vramUsedPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blackbox",
		Subsystem: "vram",
		Name:      "used_percent",
		Help:      "Used GPU memory as a percentage of total",
	})

	vramFragmentation = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blackbox",
		Subsystem: "vram",
		Name:      "fragmentation_ratio",
		Help:      "1 - free/total at the last telemetry poll",
	})

	modelVRAMPercent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "blackbox",
		Subsystem: "vram",
		Name:      "model_used_percent",
		Help:      "Per-model attributed GPU memory as a percentage of total",
	}, []string{"model_id"})

	deployedModels = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blackbox",
		Subsystem: "models",
		Name:      "deployed",
		Help:      "Deployments currently holding a slot",
	})

	driverFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blackbox",
		Subsystem: "telemetry",
		Name:      "driver_failures_total",
		Help:      "Telemetry polls that produced a degraded snapshot",
	})

	probeFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blackbox",
		Subsystem: "health",
		Name:      "probe_failures_total",
		Help:      "Failed engine health probes",
	}, []string{"model_id"})

	optimizeRestartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "blackbox",
		Subsystem: "optimize",
		Name:      "restarts_total",
		Help:      "Model restarts issued by the optimization pass",
	})
)

func init() {
	prometheus.MustRegister(
		vramTotalBytes, vramUsedBytes, vramUsedPercent, vramFragmentation,
		modelVRAMPercent, deployedModels,
		driverFailuresTotal, probeFailuresTotal, optimizeRestartsTotal,
	)
}

func updateVRAMMetrics(snap types.VRAMSnapshot, models types.ModelsResponse) {
	if !snap.Available {
		driverFailuresTotal.Inc()
		return
	}
	vramTotalBytes.Set(float64(snap.TotalBytes))
	vramUsedBytes.Set(float64(snap.UsedBytes))
	vramUsedPercent.Set(snap.UsedPercent)
	vramFragmentation.Set(snap.FragmentationRatio)
	deployedModels.Set(float64(models.Total))

	modelVRAMPercent.Reset()
	for _, mi := range snap.Models {
		modelVRAMPercent.WithLabelValues(mi.ModelID).Set(mi.UsagePercent)
	}
}
