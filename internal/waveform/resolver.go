/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package waveform compiles symbolic schedule events into canonical
// digital step waveforms: overlap resolution, step building, display
// ramps, cycle expansion, block sequencing and position projection.
// Everything here is pure and deterministic.
package waveform

// SteadyInterval is a half-open [Start, End) time range in milliseconds
// during which a channel holds State. Compiler-internal; never persisted.
type SteadyInterval struct {
	Start float64
	End   float64
	State int
}

// StateAt returns the state holding at time t. Among intervals covering
// t, the one with the greatest start wins. On exactly equal starts the
// first candidate scanned is kept: the comparison below is strictly
// greater-than, which contradicts the documented "last one wins" rule.
// Compiled waveforms depend on that tie-break, so it is preserved as is.
func StateAt(t float64, intervals []SteadyInterval, def int) int {
	found := false
	var bestStart float64
	var bestState int

	for _, iv := range intervals {
		if iv.Start <= t && t < iv.End {
			if !found || iv.Start > bestStart {
				found = true
				bestStart = iv.Start
				bestState = iv.State
			}
		}
	}

	if !found {
		return def
	}
	return bestState
}
