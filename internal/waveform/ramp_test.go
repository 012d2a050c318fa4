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

func displayPointsEqual(t *testing.T, got, want []DisplayPoint) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("point count = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if math.Abs(got[i].TimeMs-want[i].TimeMs) > timeEps || math.Abs(got[i].Value-want[i].Value) > timeEps {
			t.Fatalf("point %d = (%v,%v), want (%v,%v)", i, got[i].TimeMs, got[i].Value, want[i].TimeMs, want[i].Value)
		}
	}
}

func TestApplyRampsNoWindowsIsIdentity(t *testing.T) {
	base := []models.StepPoint{{TimeMs: 0, State: 0}, {TimeMs: 100, State: 1}, {TimeMs: 200, State: 0}}
	got := ApplyRamps(base, nil, nil)

	displayPointsEqual(t, got, []DisplayPoint{
		{TimeMs: 0, Value: 0},
		{TimeMs: 100, Value: 1},
		{TimeMs: 200, Value: 0},
	})
}

func TestApplyRampsRiseReplacesStep(t *testing.T) {
	// The instantaneous 0->1 edge at t=100 sits inside the rise window,
	// so it is replaced by the window endpoints.
	base := []models.StepPoint{{TimeMs: 0, State: 0}, {TimeMs: 100, State: 1}, {TimeMs: 300, State: 0}}
	got := ApplyRamps(base, []RampWindow{{Start: 80, End: 120}}, nil)

	displayPointsEqual(t, got, []DisplayPoint{
		{TimeMs: 0, Value: 0},
		{TimeMs: 80, Value: 0},
		{TimeMs: 120, Value: 1},
		{TimeMs: 300, Value: 0},
	})
}

func TestApplyRampsFallAfterRise(t *testing.T) {
	base := []models.StepPoint{{TimeMs: 0, State: 0}, {TimeMs: 100, State: 1}, {TimeMs: 300, State: 0}}
	got := ApplyRamps(base,
		[]RampWindow{{Start: 80, End: 120}},
		[]RampWindow{{Start: 280, End: 320}})

	displayPointsEqual(t, got, []DisplayPoint{
		{TimeMs: 0, Value: 0},
		{TimeMs: 80, Value: 0},
		{TimeMs: 120, Value: 1},
		{TimeMs: 280, Value: 1},
		{TimeMs: 320, Value: 0},
	})
}

func TestApplyRampsIgnoresEmptyWindow(t *testing.T) {
	base := []models.StepPoint{{TimeMs: 0, State: 0}, {TimeMs: 100, State: 1}}
	got := ApplyRamps(base, []RampWindow{{Start: 50, End: 50}}, nil)

	displayPointsEqual(t, got, []DisplayPoint{{TimeMs: 0, Value: 0}, {TimeMs: 100, Value: 1}})
}

func TestApplyRampsEmptyBase(t *testing.T) {
	if got := ApplyRamps(nil, []RampWindow{{Start: 0, End: 10}}, nil); got != nil {
		t.Fatalf("ApplyRamps(nil) = %v, want nil", got)
	}
}
