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

// DisplayPoint is one sample of a display-only waveform. Values are in
// [0, 1]; between points the plot interpolates linearly, which is what
// renders rise/fall windows as ramps.
type DisplayPoint struct {
	TimeMs float64
	Value  float64
}

// RampWindow is a [Start, End) window rendered as a linear transition.
type RampWindow struct {
	Start float64
	End   float64
}

// ApplyRamps overlays rise and fall windows on a step waveform for
// display. Rise windows are applied in ascending start order before any
// fall window; the order matters when windows overlap. The result is
// never consumed by the executor. Windows with End <= Start are ignored.
func ApplyRamps(base []models.StepPoint, rises, falls []RampWindow) []DisplayPoint {
	if len(base) == 0 {
		return nil
	}

	display := make([]DisplayPoint, 0, len(base))
	for _, p := range base {
		display = append(display, DisplayPoint{TimeMs: p.TimeMs, Value: float64(p.State)})
	}
	sort.SliceStable(display, func(i, j int) bool { return display[i].TimeMs < display[j].TimeMs })
	display = mergeDuplicateTimesKeepLast(display)

	ordered := func(windows []RampWindow) []RampWindow {
		out := make([]RampWindow, len(windows))
		copy(out, windows)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
		return out
	}

	for _, w := range ordered(rises) {
		display = overlayRamp(display, w, 0.0, 1.0)
	}
	for _, w := range ordered(falls) {
		display = overlayRamp(display, w, 1.0, 0.0)
	}
	return display
}

// overlayRamp drops every sample inside the window, inserts the two
// window-endpoint samples, and restores ordering.
func overlayRamp(display []DisplayPoint, w RampWindow, v0, v1 float64) []DisplayPoint {
	if w.End <= w.Start {
		return display
	}

	out := make([]DisplayPoint, 0, len(display)+2)
	for _, p := range display {
		if p.TimeMs < w.Start || p.TimeMs > w.End {
			out = append(out, p)
		}
	}
	out = append(out, DisplayPoint{TimeMs: w.Start, Value: v0}, DisplayPoint{TimeMs: w.End, Value: v1})

	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeMs < out[j].TimeMs })
	return mergeDuplicateTimesKeepLast(out)
}

// ShiftDisplayPoints returns a copy of points with shiftMs added to
// every timestamp.
func ShiftDisplayPoints(points []DisplayPoint, shiftMs float64) []DisplayPoint {
	out := make([]DisplayPoint, len(points))
	for i, p := range points {
		out[i] = DisplayPoint{TimeMs: p.TimeMs + shiftMs, Value: p.Value}
	}
	return out
}

func mergeDuplicateTimesKeepLast(points []DisplayPoint) []DisplayPoint {
	out := points[:0]
	for _, p := range points {
		if len(out) > 0 && math.Abs(out[len(out)-1].TimeMs-p.TimeMs) < timeEps {
			out[len(out)-1] = p
		} else {
			out = append(out, p)
		}
	}
	return out
}
