// Package stats computes windowed summary statistics over usage samples.
// It is stateless: callers own the sample histories.
package stats

import (
	"math"
	"sort"

	"blackboxd/pkg/types"
)

// Aggregate summarizes values into {min,max,avg,p95,p99,count}. An empty
// input yields the zero value, never an error.
func Aggregate(values []float64) types.AggregatedStats {
	if len(values) == 0 {
		return types.AggregatedStats{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	return types.AggregatedStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   sum / float64(len(sorted)),
		P95:   percentile(sorted, 0.95),
		P99:   percentile(sorted, 0.99),
		Count: len(sorted),
	}
}

// Avg returns the arithmetic mean, or 0 for an empty slice.
func Avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// percentile applies the nearest-rank method on an already sorted slice:
// rank = ceil(p * n), 1-based, clamped to [1, n].
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
