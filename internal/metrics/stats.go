package metrics

import (
	"math"
	"slices"
)

// BucketWidthMs is the width of a throughput bucket.
const BucketWidthMs int64 = 10_000

// Percentile returns the nearest-rank percentile p (0..1) of an ascending
// slice: sorted[ceil(p*n)-1], clamped to the slice bounds. Returns 0 for an
// empty slice.
func Percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(n))) - 1
	idx = max(0, min(n-1, idx))
	return sorted[idx]
}

// LatencyStats summarizes a set of latency samples in milliseconds.
type LatencyStats struct {
	Count  int
	Mean   float64
	Median int64
	P95    int64
	P99    int64
	Min    int64
	Max    int64
}

// ComputeLatencyStats sorts samples in place and computes the summary.
func ComputeLatencyStats(samples []int64) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	slices.Sort(samples)

	var sum float64
	for _, v := range samples {
		sum += float64(v)
	}

	return LatencyStats{
		Count:  len(samples),
		Mean:   sum / float64(len(samples)),
		Median: Percentile(samples, 0.50),
		P95:    Percentile(samples, 0.95),
		P99:    Percentile(samples, 0.99),
		Min:    samples[0],
		Max:    samples[len(samples)-1],
	}
}

// Bucket is the number of acks within one fixed-width window.
type Bucket struct {
	StartMs    int64
	Count      int64
	Throughput float64 // acks per second
}

// ComputeBuckets groups ack timestamps into widthMs windows anchored at
// startMs. Non-positive timestamps are skipped and empty windows are omitted.
// Buckets are returned in ascending start order.
func ComputeBuckets(acksMs []int64, startMs, widthMs int64) []Bucket {
	if widthMs <= 0 {
		widthMs = BucketWidthMs
	}

	counts := make(map[int64]int64)
	for _, ack := range acksMs {
		if ack <= 0 {
			continue
		}
		offset := ack - startMs
		idx := offset / widthMs
		if offset < 0 && offset%widthMs != 0 {
			idx--
		}
		counts[startMs+idx*widthMs]++
	}

	starts := make([]int64, 0, len(counts))
	for s := range counts {
		starts = append(starts, s)
	}
	slices.Sort(starts)

	widthSec := float64(widthMs) / 1000
	buckets := make([]Bucket, 0, len(starts))
	for _, s := range starts {
		c := counts[s]
		buckets = append(buckets, Bucket{StartMs: s, Count: c, Throughput: float64(c) / widthSec})
	}
	return buckets
}
