// Package benchmark derives the site's expected CTR for each search position.
package benchmark

import (
	"math"
	"time"

	"github.com/jonathan/ctr-optimizer/internal/config"
	"github.com/jonathan/ctr-optimizer/internal/types"
)

type bucketTotals struct {
	impressions int64
	clicks      int64
	snapshots   int
}

// Compute builds a position-bucketed CTR curve from the given snapshots.
//
// Each bucket's expected CTR is the impression-weighted mean CTR of the pages
// whose average position rounds into it. Buckets with fewer than
// MinBucketImpressions inherit the value of the nearest qualifying bucket,
// preferring the better position on a tie. The curve is then forced to be
// non-increasing as position worsens.
func Compute(snapshots []types.PageMetricSnapshot, th config.Thresholds, now time.Time) (*types.Benchmark, error) {
	maxBucket := th.MaxBucket
	if maxBucket < 1 {
		maxBucket = 1
	}

	totals := make([]bucketTotals, maxBucket+1) // index 0 unused
	var total int64
	for _, s := range snapshots {
		if s.Impressions <= 0 || s.Position <= 0 {
			continue
		}
		b := types.BucketFor(s.Position, maxBucket)
		totals[b].impressions += s.Impressions
		totals[b].clicks += s.Clicks
		totals[b].snapshots++
		total += s.Impressions
	}

	if total < th.MinTotalImpressions || total == 0 {
		return nil, &InsufficientDataError{TotalImpressions: total, Required: th.MinTotalImpressions}
	}

	qualifying := make([]int, 0, maxBucket)
	for b := 1; b <= maxBucket; b++ {
		if totals[b].impressions > 0 && totals[b].impressions >= th.MinBucketImpressions {
			qualifying = append(qualifying, b)
		}
	}
	if len(qualifying) == 0 {
		return nil, &InsufficientDataError{
			TotalImpressions: total,
			Required:         th.MinTotalImpressions,
			Message:          "no position bucket reaches the minimum sample size",
		}
	}

	buckets := make([]types.CtrBenchmark, 0, maxBucket)
	for b := 1; b <= maxBucket; b++ {
		src := nearestQualifying(b, qualifying)
		t := totals[src]
		buckets = append(buckets, types.CtrBenchmark{
			Bucket:        b,
			ExpectedCTR:   float64(t.clicks) / float64(t.impressions),
			SampleSize:    totals[b].impressions,
			SnapshotCount: totals[b].snapshots,
			Smoothed:      src != b,
			ComputedAt:    now,
		})
	}

	enforceMonotone(buckets)

	return &types.Benchmark{Buckets: buckets}, nil
}

// nearestQualifying returns the qualifying bucket closest to b; the lower bucket wins ties.
// qualifying must be sorted ascending and non-empty.
func nearestQualifying(b int, qualifying []int) int {
	best := qualifying[0]
	bestDist := math.MaxInt
	for _, q := range qualifying {
		d := q - b
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = q, d
		}
	}
	return best
}

// enforceMonotone clamps each bucket to at most the bucket above it.
func enforceMonotone(buckets []types.CtrBenchmark) {
	for i := 1; i < len(buckets); i++ {
		if buckets[i].ExpectedCTR > buckets[i-1].ExpectedCTR {
			buckets[i].ExpectedCTR = buckets[i-1].ExpectedCTR
			buckets[i].Smoothed = true
		}
	}
}
