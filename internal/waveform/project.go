/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"fmt"

	"github.com/friendsincode/volund_bench/internal/models"
)

// ChannelKind tags a projected channel with its logical role.
type ChannelKind string

const (
	ChannelIsolator  ChannelKind = "isolator"
	ChannelDUT       ChannelKind = "dut"
	ChannelAuxiliary ChannelKind = "auxiliary"
)

// Channel is one named physical output with its projected waveform,
// ready for preview or transfer to the device.
type Channel struct {
	Name     string
	Kind     ChannelKind
	GPIO     int
	Points   []models.StepPoint
	Display  []DisplayPoint
	HasRamps bool
}

// ProjectChannels shifts the sequenced waveforms across enabled
// positions. A position's ordinal among enabled positions (not its
// display number) sets base_shift = ordinal * rowDelayMs; the DUT
// channel additionally shifts by the position's dut_offset_ms.
// Auxiliary channels are global: never shifted by row delay or offset.
func ProjectChannels(positions []models.PositionConfig, rowDelayMs float64, aux []models.AuxiliaryOutput, seq *SequenceResult) []Channel {
	var channels []Channel

	ordinal := 0
	for _, pos := range positions {
		if !pos.Enabled {
			continue
		}
		baseShift := float64(ordinal) * rowDelayMs
		ordinal++

		channels = append(channels, Channel{
			Name:     fmt.Sprintf("ISO P%d (GPIO%d)", pos.Position, pos.IsolatorGPIO),
			Kind:     ChannelIsolator,
			GPIO:     pos.IsolatorGPIO,
			Points:   ShiftStepPoints(seq.Isolator, baseShift),
			Display:  ShiftDisplayPoints(seq.IsolatorDisplay, baseShift),
			HasRamps: seq.IsolatorHasRamps,
		})

		dutShift := baseShift + pos.DUTOffsetMs
		channels = append(channels, Channel{
			Name:     fmt.Sprintf("DUT P%d (GPIO%d)", pos.Position, pos.DUTGPIO),
			Kind:     ChannelDUT,
			GPIO:     pos.DUTGPIO,
			Points:   ShiftStepPoints(seq.DUT, dutShift),
			Display:  ShiftDisplayPoints(seq.DUTDisplay, dutShift),
			HasRamps: seq.DUTHasRamps,
		})
	}

	for _, out := range aux {
		if !out.Enabled || out.Name == "" {
			continue
		}
		pts, ok := seq.Aux[out.Name]
		if !ok {
			continue
		}
		display := make([]DisplayPoint, len(pts))
		for i, p := range pts {
			display[i] = DisplayPoint{TimeMs: p.TimeMs, Value: float64(p.State)}
		}
		channels = append(channels, Channel{
			Name:    fmt.Sprintf("AUX %s (GPIO%d)", out.Name, out.GPIO),
			Kind:    ChannelAuxiliary,
			GPIO:    out.GPIO,
			Points:  pts,
			Display: display,
		})
	}

	return channels
}
