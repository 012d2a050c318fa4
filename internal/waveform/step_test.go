/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"math"
	"testing"

	"github.com/friendsincode/volund_bench/internal/models"
)

func stepPointsEqual(t *testing.T, got, want []models.StepPoint) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("point count = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if math.Abs(got[i].TimeMs-want[i].TimeMs) > timeEps || got[i].State != want[i].State {
			t.Fatalf("point %d = (%v,%d), want (%v,%d)", i, got[i].TimeMs, got[i].State, want[i].TimeMs, want[i].State)
		}
	}
}

func TestBuildStepWaveformBasic(t *testing.T) {
	intervals := []SteadyInterval{
		{Start: 0, End: 100, State: 1},
		{Start: 100, End: 200, State: 0},
	}
	got := BuildStepWaveform(intervals, []float64{0, 100, 200})

	stepPointsEqual(t, got, []models.StepPoint{
		{TimeMs: 0, State: 1},
		{TimeMs: 100, State: 0},
		{TimeMs: 200, State: 0},
	})
}

func TestBuildStepWaveformEmptyBoundaries(t *testing.T) {
	got := BuildStepWaveform(nil, nil)
	stepPointsEqual(t, got, []models.StepPoint{{TimeMs: 0, State: 0}, {TimeMs: 0, State: 0}})
}

func TestBuildStepWaveformMinimality(t *testing.T) {
	// A long run of equal-state boundaries must collapse to the
	// transition points plus the closing sample.
	intervals := []SteadyInterval{{Start: 50, End: 400, State: 1}}
	got := BuildStepWaveform(intervals, []float64{0, 50, 100, 150, 200, 300, 400})

	stepPointsEqual(t, got, []models.StepPoint{
		{TimeMs: 0, State: 0},
		{TimeMs: 50, State: 1},
		{TimeMs: 400, State: 0},
	})
	for i := 1; i < len(got)-1; i++ {
		if got[i].State == got[i-1].State {
			t.Fatalf("consecutive equal states at index %d: %v", i, got)
		}
	}
}

func TestBuildStepWaveformDeterministic(t *testing.T) {
	intervals := []SteadyInterval{
		{Start: 0, End: 300, State: 1},
		{Start: 300, End: 500, State: 0},
	}
	boundaries := []float64{0, 300, 500}

	a := BuildStepWaveform(intervals, boundaries)
	b := BuildStepWaveform(intervals, boundaries)
	stepPointsEqual(t, a, b)
}

func TestNormalizeStepPointsMergesDuplicateTimes(t *testing.T) {
	got := NormalizeStepPoints([]models.StepPoint{
		{TimeMs: 0, State: 0},
		{TimeMs: 100, State: 0},
		{TimeMs: 100, State: 1},
		{TimeMs: 200, State: 1},
	})

	// The later sample at t=100 wins.
	stepPointsEqual(t, got, []models.StepPoint{
		{TimeMs: 0, State: 0},
		{TimeMs: 100, State: 1},
		{TimeMs: 200, State: 1},
	})
}

func TestNormalizeStepPointsSinglePointFloor(t *testing.T) {
	got := NormalizeStepPoints([]models.StepPoint{{TimeMs: 42, State: 1}})
	stepPointsEqual(t, got, []models.StepPoint{{TimeMs: 42, State: 1}, {TimeMs: 42, State: 1}})
}

func TestNormalizeStepPointsKeepsFinalPoint(t *testing.T) {
	// The final point survives even when its state equals its
	// predecessor's, so the waveform keeps its closing timestamp.
	got := NormalizeStepPoints([]models.StepPoint{
		{TimeMs: 0, State: 1},
		{TimeMs: 100, State: 1},
		{TimeMs: 500, State: 1},
	})
	stepPointsEqual(t, got, []models.StepPoint{{TimeMs: 0, State: 1}, {TimeMs: 500, State: 1}})
}

func TestShiftStepPointsCopies(t *testing.T) {
	in := []models.StepPoint{{TimeMs: 0, State: 1}, {TimeMs: 10, State: 0}}
	got := ShiftStepPoints(in, 50)

	stepPointsEqual(t, got, []models.StepPoint{{TimeMs: 50, State: 1}, {TimeMs: 60, State: 0}})
	if in[0].TimeMs != 0 {
		t.Fatalf("input mutated: %v", in)
	}
}
