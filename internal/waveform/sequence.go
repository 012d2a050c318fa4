/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"github.com/friendsincode/volund_bench/internal/models"
)

// SequenceResult is the full compiled timeline of a profile: every
// block compiled independently and concatenated into one continuous
// waveform per channel.
type SequenceResult struct {
	Isolator []models.StepPoint
	DUT      []models.StepPoint
	Aux      map[string][]models.StepPoint

	IsolatorDisplay []DisplayPoint
	DUTDisplay      []DisplayPoint

	IsolatorHasRamps bool
	DUTHasRamps      bool

	TotalLengthMs float64
	// BlockEndTimes holds the cumulative offset after each block, used
	// as boundary markers by previews.
	BlockEndTimes []float64
}

// SequenceBlocks compiles each block on its own zero-based clock and
// concatenates the results, advancing a running offset by every block's
// compiled length. Channel seams are re-normalized afterwards.
func SequenceBlocks(blocks []models.Block, unit models.TimeUnit, aux []models.AuxiliaryOutput) (*SequenceResult, error) {
	if len(blocks) == 0 {
		return nil, &ValidationError{Field: "blocks", Msg: "add at least one block"}
	}

	res := &SequenceResult{Aux: map[string][]models.StepPoint{}}
	offset := 0.0

	for _, block := range blocks {
		compiled, err := CompileBlock(block, unit, aux)
		if err != nil {
			return nil, err
		}

		res.IsolatorHasRamps = res.IsolatorHasRamps || compiled.IsolatorHasRamps
		res.DUTHasRamps = res.DUTHasRamps || compiled.DUTHasRamps

		res.Isolator = append(res.Isolator, ShiftStepPoints(compiled.Isolator, offset)...)
		res.DUT = append(res.DUT, ShiftStepPoints(compiled.DUT, offset)...)
		res.IsolatorDisplay = append(res.IsolatorDisplay, ShiftDisplayPoints(compiled.IsolatorDisplay, offset)...)
		res.DUTDisplay = append(res.DUTDisplay, ShiftDisplayPoints(compiled.DUTDisplay, offset)...)
		for name, pts := range compiled.Aux {
			res.Aux[name] = append(res.Aux[name], ShiftStepPoints(pts, offset)...)
		}

		offset += compiled.LengthMs
		res.BlockEndTimes = append(res.BlockEndTimes, offset)
	}

	res.Isolator = NormalizeStepPoints(res.Isolator)
	res.DUT = NormalizeStepPoints(res.DUT)
	for name := range res.Aux {
		res.Aux[name] = NormalizeStepPoints(res.Aux[name])
	}
	res.IsolatorDisplay = mergeDuplicateTimesKeepLast(res.IsolatorDisplay)
	res.DUTDisplay = mergeDuplicateTimesKeepLast(res.DUTDisplay)

	res.TotalLengthMs = offset
	return res, nil
}
