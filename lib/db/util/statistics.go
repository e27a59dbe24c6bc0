package util

import (
	"math"

	"github.com/rcrowley/go-metrics"
)

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes mean, population standard deviation, min and max of values
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Min: values[0], Max: values[0], MinMaxRatio: 1}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))

	var squares float64
	for _, v := range values {
		squares += (v - s.Mean) * (v - s.Mean)
	}
	s.StdDeviation = math.Sqrt(squares / float64(len(values)))

	if s.Max > 0 {
		s.MinMaxRatio = s.Min / s.Max
	}
	return s
}

type DistributionStats struct {
	Stats
	// DistributionQuality is 1 for perfectly even shards and approaches 0 for skewed ones
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats rates how evenly records are spread over shards
func NewDistributionStats(shardSizes []float64) DistributionStats {
	stats := NewStats(shardSizes)

	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5,
	}
}

// RecordSizes samples the encoded size of stored records.
// It keeps a uniform reservoir of at most sampleSize values.
type RecordSizes struct {
	histogram metrics.Histogram
}

func NewRecordSizes(sampleSize int) *RecordSizes {
	return &RecordSizes{
		histogram: metrics.NewHistogram(metrics.NewUniformSample(max(sampleSize, 1))),
	}
}

// Add records the size of one record
func (r *RecordSizes) Add(size int) {
	r.histogram.Update(int64(size))
}

// Count returns the number of recorded sizes
func (r *RecordSizes) Count() int64 {
	return r.histogram.Count()
}

// Mean returns the average record size
func (r *RecordSizes) Mean() int {
	return int(r.histogram.Mean())
}

// Percentile returns the size below which p (0..1) of the samples fall
func (r *RecordSizes) Percentile(p float64) int {
	return int(r.histogram.Percentile(p))
}

// EstimateBytes estimates the size of n records (60% median, 40% mean) plus a per record overhead
func (r *RecordSizes) EstimateBytes(n int, overhead int) int {
	if r.Count() == 0 {
		return 0
	}
	perRecord := (r.Percentile(0.5)*60+r.Mean()*40)/100 + overhead
	return n * perRecord
}
