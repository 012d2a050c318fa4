/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"github.com/friendsincode/volund_bench/internal/models"
)

// BuildProfile validates the inputs, compiles the full block sequence
// and returns a profile with its derived waveform fields filled in.
// Profiles are value objects: the derived fields are always the output
// of a fresh compilation, never a mutation of a previous one.
func BuildProfile(name string, unit models.TimeUnit, blocks []models.Block, rowDelayMs float64, positions []models.PositionConfig, aux []models.AuxiliaryOutput) (*models.Profile, error) {
	enabled := false
	for _, pos := range positions {
		if pos.Enabled {
			enabled = true
			break
		}
	}
	if !enabled {
		return nil, &ValidationError{Field: "positions", Msg: "enable at least one position"}
	}

	seq, err := SequenceBlocks(blocks, unit, aux)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = "Profile"
	}
	prof := &models.Profile{
		ProfileName:            name,
		WaveformTimeUnits:      unit,
		RowDelayMs:             rowDelayMs,
		Positions:              positions,
		IsolatorWaveformPoints: seq.Isolator,
		DUTWaveformPoints:      seq.DUT,
		Blocks:                 blocks,
		AuxiliaryOutputs:       aux,
		AuxiliaryWaveforms:     map[string][]models.StepPoint{},
	}
	if prof.AuxiliaryOutputs == nil {
		prof.AuxiliaryOutputs = []models.AuxiliaryOutput{}
	}
	for auxName, pts := range seq.Aux {
		prof.AuxiliaryWaveforms[auxName] = pts
	}
	return prof, nil
}

// RecompileProfile rebuilds the derived waveform fields of a loaded
// profile from its blocks, verifying the persisted points never diverge
// from a fresh compilation.
func RecompileProfile(p *models.Profile) (*models.Profile, error) {
	return BuildProfile(p.ProfileName, p.WaveformTimeUnits, p.Blocks, p.RowDelayMs, p.Positions, p.AuxiliaryOutputs)
}
