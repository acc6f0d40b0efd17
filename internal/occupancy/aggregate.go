// Package occupancy turns per-frame detections into free/occupied tallies.
package occupancy

import (
	"math"
	"time"

	"github.com/beststop/parking-server/pkg/types"
)

// Aggregate tallies one frame's detections.
//
// Every detection is counted; confidence filtering happens at the detector call and the
// threshold is only recorded on the result. Detections of unknown class are kept out of
// Total and reported in UnknownCount, so FreePct+OccupiedPct is 100 whenever Total > 0.
func Aggregate(detections []types.Detection, threshold float64) types.AggregateResult {
	var free, occupied, unknown int
	for _, d := range detections {
		switch d.Class {
		case types.SpotFree:
			free++
		case types.SpotOccupied:
			occupied++
		default:
			unknown++
		}
	}

	freePct, occupiedPct := Percentages(free, occupied)
	return types.AggregateResult{
		FreePct:       freePct,
		OccupiedPct:   occupiedPct,
		Total:         free + occupied,
		FreeCount:     free,
		OccupiedCount: occupied,
		UnknownCount:  unknown,
		Threshold:     threshold,
	}
}

// Percentages returns the free and occupied shares of free+occupied, rounded to two
// decimals. Both are 0 when there is nothing to divide by.
func Percentages(free, occupied int) (freePct, occupiedPct float64) {
	total := free + occupied
	if total <= 0 {
		return 0, 0
	}
	freePct = Round2(float64(free) / float64(total) * 100)
	occupiedPct = Round2(float64(occupied) / float64(total) * 100)
	return freePct, occupiedPct
}

// Round2 rounds to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Stamp returns r labelled with its source and publish time.
func Stamp(r types.AggregateResult, source string, ts time.Time) types.AggregateResult {
	r.Source = source
	r.Timestamp = ts
	return r
}
