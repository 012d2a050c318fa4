/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"math"
	"sort"

	"github.com/friendsincode/volund_bench/internal/models"
)

// timeEps is the tolerance for treating two timestamps as equal.
const timeEps = 1e-9

// BuildStepWaveform samples the resolver at every boundary time and
// canonicalizes the result. The final boundary is sampled twice so the
// waveform closes even when the last boundary introduced no interval.
// Empty boundary input yields the two-point zero waveform.
func BuildStepWaveform(intervals []SteadyInterval, boundaries []float64) []models.StepPoint {
	if len(boundaries) == 0 {
		return []models.StepPoint{{TimeMs: 0, State: 0}, {TimeMs: 0, State: 0}}
	}

	sorted := dedupeSorted(boundaries)

	pts := make([]models.StepPoint, 0, len(sorted)+1)
	for _, t := range sorted {
		pts = append(pts, models.StepPoint{TimeMs: t, State: StateAt(t, intervals, 0)})
	}
	last := sorted[len(sorted)-1]
	pts = append(pts, models.StepPoint{TimeMs: last, State: StateAt(last, intervals, 0)})

	return NormalizeStepPoints(pts)
}

// NormalizeStepPoints sorts, merges equal timestamps keeping the later
// sample, and collapses runs of equal state down to the transition
// points plus the final point. A single surviving point is duplicated so
// the minimum-two-point invariant holds.
func NormalizeStepPoints(points []models.StepPoint) []models.StepPoint {
	if len(points) == 0 {
		return nil
	}

	pts := make([]models.StepPoint, len(points))
	copy(pts, points)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].TimeMs < pts[j].TimeMs })

	merged := pts[:0]
	for _, p := range pts {
		if len(merged) > 0 && math.Abs(merged[len(merged)-1].TimeMs-p.TimeMs) < timeEps {
			merged[len(merged)-1] = p
		} else {
			merged = append(merged, p)
		}
	}

	compact := make([]models.StepPoint, 0, len(merged))
	for i, p := range merged {
		if len(compact) == 0 {
			compact = append(compact, p)
			continue
		}
		isLast := i == len(merged)-1
		if p.State != compact[len(compact)-1].State || isLast {
			compact = append(compact, p)
		}
	}

	if len(compact) == 1 {
		compact = append(compact, compact[0])
	}
	return compact
}

// ShiftStepPoints returns a copy of points with shiftMs added to every
// timestamp.
func ShiftStepPoints(points []models.StepPoint, shiftMs float64) []models.StepPoint {
	out := make([]models.StepPoint, len(points))
	for i, p := range points {
		out[i] = models.StepPoint{TimeMs: p.TimeMs + shiftMs, State: p.State}
	}
	return out
}

func dedupeSorted(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	out := sorted[:0]
	for _, v := range sorted {
		if len(out) == 0 || math.Abs(out[len(out)-1]-v) >= timeEps {
			out = append(out, v)
		}
	}
	return out
}
