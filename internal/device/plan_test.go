/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package device

import (
	"testing"

	"github.com/friendsincode/volund_bench/internal/models"
)

func planPointsEqual(t *testing.T, got, want []PlanPoint) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("point count = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("point %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCleanPointsTransitionsOnly(t *testing.T) {
	got := CleanPoints([]models.StepPoint{
		{TimeMs: 0, State: 0},
		{TimeMs: 100, State: 0},
		{TimeMs: 100, State: 1},
		{TimeMs: 200, State: 1},
		{TimeMs: 300, State: 0},
	})

	planPointsEqual(t, got, []PlanPoint{{0, 0}, {100, 1}, {300, 0}})
}

func TestCleanPointsRoundsToWholeMillis(t *testing.T) {
	got := CleanPoints([]models.StepPoint{
		{TimeMs: 0.4, State: 1},
		{TimeMs: 99.6, State: 0},
	})

	planPointsEqual(t, got, []PlanPoint{{0, 1}, {100, 0}})
}

func TestCleanPointsPrefixesOffPoint(t *testing.T) {
	got := CleanPoints([]models.StepPoint{{TimeMs: 10, State: 1}})
	planPointsEqual(t, got, []PlanPoint{{0, 0}, {10, 1}})
}

func TestCleanPointsEmpty(t *testing.T) {
	planPointsEqual(t, CleanPoints(nil), []PlanPoint{{0, 0}})
}

func buildPlanProfile() *models.Profile {
	return &models.Profile{
		ProfileName:       "P",
		WaveformTimeUnits: models.UnitMilliseconds,
		RowDelayMs:        50,
		Positions: []models.PositionConfig{
			{Position: 1, Enabled: true, IsolatorGPIO: 2, DUTGPIO: 3},
			{Position: 2, Enabled: true, IsolatorGPIO: 4, DUTGPIO: 5, DUTOffsetMs: 5},
		},
		IsolatorWaveformPoints: []models.StepPoint{{TimeMs: 0, State: 1}, {TimeMs: 100, State: 0}},
		DUTWaveformPoints:      []models.StepPoint{{TimeMs: 10, State: 1}, {TimeMs: 90, State: 0}},
		AuxiliaryOutputs:       []models.AuxiliaryOutput{{Name: "Pump", GPIO: 6, Enabled: true}},
		AuxiliaryWaveforms: map[string][]models.StepPoint{
			"Pump": {{TimeMs: 0, State: 1}, {TimeMs: 50, State: 0}},
		},
	}
}

func TestBuildPlanShiftsAndMerges(t *testing.T) {
	plan, err := BuildPlan(buildPlanProfile())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}

	if len(plan) != 12 {
		t.Fatalf("plan length = %d, want 12: %v", len(plan), plan)
	}
	for i := 1; i < len(plan); i++ {
		if plan[i].TimeMs < plan[i-1].TimeMs {
			t.Fatalf("plan not time-ordered at %d: %v", i, plan)
		}
	}

	// First enabled position at ordinal 0: no shift. The DUT channel
	// gets a prepended off point so the pin level is defined at t=0.
	wantHead := []PlanEntry{
		{TimeMs: 0, GPIO: 2, State: 1},
		{TimeMs: 0, GPIO: 3, State: 0},
		{TimeMs: 0, GPIO: 6, State: 1},
	}
	for i, want := range wantHead {
		if plan[i] != want {
			t.Fatalf("plan[%d] = %v, want %v (stable order at equal timestamps)", i, plan[i], want)
		}
	}

	find := func(e PlanEntry) {
		t.Helper()
		for _, got := range plan {
			if got == e {
				return
			}
		}
		t.Fatalf("plan missing entry %v: %v", e, plan)
	}
	// Second enabled position: isolator shifted by one row delay, DUT
	// by row delay plus its own offset.
	find(PlanEntry{TimeMs: 50, GPIO: 4, State: 1})
	find(PlanEntry{TimeMs: 150, GPIO: 4, State: 0})
	find(PlanEntry{TimeMs: 65, GPIO: 5, State: 1})
	find(PlanEntry{TimeMs: 145, GPIO: 5, State: 0})
	// Auxiliary channel is global: no shift.
	find(PlanEntry{TimeMs: 50, GPIO: 6, State: 0})
}

func TestBuildPlanRequiresEnabledPosition(t *testing.T) {
	p := buildPlanProfile()
	for i := range p.Positions {
		p.Positions[i].Enabled = false
	}
	if _, err := BuildPlan(p); err == nil {
		t.Fatal("plan built with no enabled positions")
	}

	if _, err := BuildPlan(nil); err == nil {
		t.Fatal("plan built from nil profile")
	}
}

func TestBuildPlanSkipsDisabledAux(t *testing.T) {
	p := buildPlanProfile()
	p.AuxiliaryOutputs[0].Enabled = false

	plan, err := BuildPlan(p)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	for _, e := range plan {
		if e.GPIO == 6 {
			t.Fatalf("disabled auxiliary output reached the plan: %v", e)
		}
	}
}
