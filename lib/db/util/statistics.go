package util

import (
	"math"
	"sort"
)

// ----------------------------------------------------------------------------
// Summary statistics
// ----------------------------------------------------------------------------

// Stats summarizes a sample of values
type Stats struct {
	Count        int     `json:"count"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	P99          float64 `json:"p99"`
	StdDeviation float64 `json:"std_deviation"`
}

// NewStats computes the summary of values. values is sorted in place.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sort.Float64s(values)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sumSquaredDiffs float64
	for _, v := range values {
		sumSquaredDiffs += (v - mean) * (v - mean)
	}

	return Stats{
		Count:        len(values),
		Min:          values[0],
		Max:          values[len(values)-1],
		Mean:         mean,
		Median:       percentile(values, 50),
		P99:          percentile(values, 99),
		StdDeviation: math.Sqrt(sumSquaredDiffs / float64(len(values))),
	}
}

// percentile returns the nearest-rank percentile of sorted values
func percentile(sorted []float64, p int) float64 {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// DistributionStats rates how evenly entries are spread over shards
type DistributionStats struct {
	Stats
	// Quality is 1 for a perfectly even distribution and approaches 0 if all
	// entries are in one shard.
	Quality float64 `json:"quality"`
}

// NewDistributionStats computes the distribution quality of the given shard sizes
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(append([]float64(nil), shardSizes...))

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}
	minMaxRatio := 1.0
	if stats.Max > 0 {
		minMaxRatio = stats.Min / stats.Max
	}

	return DistributionStats{
		Stats:   stats,
		Quality: (1.0-math.Min(1.0, cv))*0.5 + minMaxRatio*0.5,
	}
}
