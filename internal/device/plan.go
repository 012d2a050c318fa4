/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package device

import (
	"fmt"
	"math"
	"sort"

	"github.com/friendsincode/volund_bench/internal/models"
)

// PlanPoint is one cleaned sample of a single channel, in whole
// milliseconds.
type PlanPoint struct {
	TimeMs int64
	State  int
}

// PlanEntry is one output transition of the merged plan.
type PlanEntry struct {
	TimeMs int64
	GPIO   int
	State  int
}

// CleanPoints canonicalizes one channel's step points for execution:
// timestamps round to whole milliseconds, points sort by (time, state),
// and only the first point of each equal-state run survives. An empty
// channel becomes the single off point, and a channel that does not
// start at zero gets an off point prepended so the pin has a defined
// level from the start of the run.
func CleanPoints(points []models.StepPoint) []PlanPoint {
	pts := make([]PlanPoint, 0, len(points))
	for _, p := range points {
		state := 0
		if p.State != 0 {
			state = 1
		}
		pts = append(pts, PlanPoint{TimeMs: int64(math.Round(p.TimeMs)), State: state})
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].TimeMs != pts[j].TimeMs {
			return pts[i].TimeMs < pts[j].TimeMs
		}
		return pts[i].State < pts[j].State
	})

	cleaned := pts[:0]
	last := -1
	for _, p := range pts {
		if p.State != last {
			cleaned = append(cleaned, p)
			last = p.State
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, PlanPoint{TimeMs: 0, State: 0})
	}
	if cleaned[0].TimeMs > 0 {
		cleaned = append([]PlanPoint{{TimeMs: 0, State: 0}}, cleaned...)
	}
	return cleaned
}

// BuildPlan flattens a profile into the globally ordered output plan.
// Each enabled position contributes its isolator and DUT channels at
// row-delay/offset shifts; each enabled auxiliary output contributes
// its own channel unshifted. The sort is stable, so entries sharing a
// timestamp keep their channel order. Validation happens before any
// entry is produced.
func BuildPlan(p *models.Profile) ([]PlanEntry, error) {
	if p == nil {
		return nil, fmt.Errorf("nil profile")
	}
	enabled := p.EnabledPositions()
	if len(enabled) == 0 {
		return nil, fmt.Errorf("no positions enabled")
	}

	rowDelay := int64(math.Round(p.RowDelayMs))
	isoPts := CleanPoints(p.IsolatorWaveformPoints)
	dutPts := CleanPoints(p.DUTWaveformPoints)

	var plan []PlanEntry
	for idx, pos := range enabled {
		baseShift := int64(idx) * rowDelay
		dutOffset := int64(math.Round(pos.DUTOffsetMs))

		for _, pt := range isoPts {
			plan = append(plan, PlanEntry{TimeMs: pt.TimeMs + baseShift, GPIO: pos.IsolatorGPIO, State: pt.State})
		}
		for _, pt := range dutPts {
			plan = append(plan, PlanEntry{TimeMs: pt.TimeMs + baseShift + dutOffset, GPIO: pos.DUTGPIO, State: pt.State})
		}
	}

	for _, out := range p.AuxiliaryOutputs {
		if !out.Enabled || out.Name == "" {
			continue
		}
		for _, pt := range CleanPoints(p.AuxiliaryWaveforms[out.Name]) {
			plan = append(plan, PlanEntry{TimeMs: pt.TimeMs, GPIO: out.GPIO, State: pt.State})
		}
	}

	sort.SliceStable(plan, func(i, j int) bool { return plan[i].TimeMs < plan[j].TimeMs })
	return plan, nil
}
