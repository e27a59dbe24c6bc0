package util

import (
	"math"
	"testing"
)

func TestHashString(t *testing.T) {
	if HashString("node-1", 0) != HashString("node-1", 0) {
		t.Fatal("hash is not deterministic")
	}
	if HashString("node-1", 0) == HashString("node-2", 0) {
		t.Error("different names should hash differently")
	}
	if HashString("key", 1) == HashString("key", 2) {
		t.Error("the seed should change the hash")
	}
	if ReplicaID("node-1") == 0 {
		t.Error("replica id 0 is reserved")
	}
}

func TestNewStats(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Stats
	}{
		{"empty", nil, Stats{}},
		{"single", []float64{4}, Stats{Min: 4, Max: 4, Mean: 4, MinMaxRatio: 1}},
		{"spread", []float64{2, 4, 4, 4, 5, 5, 7, 9}, Stats{StdDeviation: 2, Min: 2, Max: 9, Mean: 5, MinMaxRatio: 2.0 / 9}},
		{"zeros", []float64{0, 0}, Stats{MinMaxRatio: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewStats(tt.values)
			if math.Abs(got.StdDeviation-tt.want.StdDeviation) > 1e-9 ||
				got.Min != tt.want.Min || got.Max != tt.want.Max || got.Mean != tt.want.Mean ||
				math.Abs(got.MinMaxRatio-tt.want.MinMaxRatio) > 1e-9 {
				t.Errorf("NewStats(%v) = %+v, want %+v", tt.values, got, tt.want)
			}
		})
	}
}

func TestDistributionQuality(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if even.DistributionQuality != 1 {
		t.Errorf("even shards: quality = %v, want 1", even.DistributionQuality)
	}
	skewed := NewDistributionStats([]float64{0, 0, 0, 40})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("skewed shards should rate worse than even ones (%v)", skewed.DistributionQuality)
	}
}

func TestRecordSizes(t *testing.T) {
	sizes := NewRecordSizes(100)
	if sizes.EstimateBytes(10, 8) != 0 {
		t.Error("estimate without samples should be 0")
	}
	for i := 0; i < 50; i++ {
		sizes.Add(100)
	}
	if sizes.Count() != 50 {
		t.Errorf("count = %d, want 50", sizes.Count())
	}
	if sizes.Mean() != 100 || sizes.Percentile(0.5) != 100 {
		t.Errorf("mean = %d, median = %d, want 100", sizes.Mean(), sizes.Percentile(0.5))
	}
	if got := sizes.EstimateBytes(10, 8); got != 1080 {
		t.Errorf("estimate = %d, want 1080", got)
	}
}
