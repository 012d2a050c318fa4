/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"testing"

	"github.com/friendsincode/volund_bench/internal/models"
)

func TestSequenceBlocksOffsets(t *testing.T) {
	blocks := []models.Block{
		{
			BlockName: "short",
			Cycles:    1,
			ScheduledEvents: []models.ScheduledEvent{
				{Event: models.EventIsolatorOn.String(), Start: 0, Duration: 100},
			},
		},
		{
			BlockName: "long",
			Cycles:    1,
			ScheduledEvents: []models.ScheduledEvent{
				{Event: models.EventIsolatorOn.String(), Start: 0, Duration: 250},
				{Event: models.EventIsolatorOff.String(), Start: 250, Duration: 250},
			},
		},
	}

	res, err := SequenceBlocks(blocks, models.UnitMilliseconds, nil)
	if err != nil {
		t.Fatalf("SequenceBlocks: %v", err)
	}

	if res.TotalLengthMs != 600 {
		t.Fatalf("TotalLengthMs = %v, want 600", res.TotalLengthMs)
	}
	want := []float64{100, 600}
	if len(res.BlockEndTimes) != len(want) {
		t.Fatalf("BlockEndTimes = %v, want %v", res.BlockEndTimes, want)
	}
	for i := range want {
		if res.BlockEndTimes[i] != want[i] {
			t.Fatalf("BlockEndTimes = %v, want %v", res.BlockEndTimes, want)
		}
	}

	// Second block's content starts on the first block's end.
	stepPointsEqual(t, res.Isolator, []models.StepPoint{
		{TimeMs: 0, State: 1},
		{TimeMs: 350, State: 0},
		{TimeMs: 600, State: 0},
	})
}

func TestSequenceBlocksAuxAcrossBlocks(t *testing.T) {
	aux := []models.AuxiliaryOutput{{Name: "Pump", GPIO: 5, Enabled: true}}
	blocks := []models.Block{
		{
			Cycles: 1,
			ScheduledEvents: []models.ScheduledEvent{
				{Event: "Pump On", Start: 0, Duration: 100},
			},
		},
		{
			Cycles: 1,
			ScheduledEvents: []models.ScheduledEvent{
				{Event: models.EventIsolatorOn.String(), Start: 0, Duration: 100},
			},
		},
	}

	res, err := SequenceBlocks(blocks, models.UnitMilliseconds, aux)
	if err != nil {
		t.Fatalf("SequenceBlocks: %v", err)
	}

	stepPointsEqual(t, res.Aux["Pump"], []models.StepPoint{
		{TimeMs: 0, State: 1},
		{TimeMs: 100, State: 0},
		{TimeMs: 200, State: 0},
	})
}

func TestSequenceBlocksRequiresBlocks(t *testing.T) {
	if _, err := SequenceBlocks(nil, models.UnitMilliseconds, nil); err == nil {
		t.Fatal("empty block list accepted")
	}
}

func TestSequenceBlocksPropagatesBlockError(t *testing.T) {
	blocks := []models.Block{
		{
			BlockName: "bad",
			Cycles:    1,
			ScheduledEvents: []models.ScheduledEvent{
				{Event: "No Such Event", Start: 0, Duration: 10},
			},
		},
	}

	_, err := SequenceBlocks(blocks, models.UnitMilliseconds, nil)
	if err == nil {
		t.Fatal("invalid block accepted")
	}
}
