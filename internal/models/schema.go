/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"encoding/json"
	"fmt"
)

// profileDocument mirrors the persisted JSON schema plus the legacy
// top-level schedule fields kept for backward compatibility.
type profileDocument struct {
	ProfileName            string                 `json:"profile_name"`
	WaveformTimeUnits      TimeUnit               `json:"waveform_time_units"`
	RowDelayMs             float64                `json:"row_delay_ms"`
	Positions              []PositionConfig       `json:"positions"`
	IsolatorWaveformPoints []StepPoint            `json:"isolator_waveform_points"`
	DUTWaveformPoints      []StepPoint            `json:"dut_waveform_points"`
	Blocks                 []Block                `json:"blocks,omitempty"`
	AuxiliaryOutputs       []AuxiliaryOutput      `json:"auxiliary_outputs"`
	AuxiliaryWaveforms     map[string][]StepPoint `json:"auxiliary_waveforms"`

	// Legacy single-schedule shape (no blocks).
	ScheduledEvents []ScheduledEvent `json:"scheduled_events,omitempty"`
	Cycles          int              `json:"cycles,omitempty"`
}

// DecodeProfile parses a persisted profile. A document without a blocks
// list but with top-level scheduled_events and cycles is accepted and
// treated as exactly one implicit block.
func DecodeProfile(data []byte) (*Profile, error) {
	var doc profileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	blocks := doc.Blocks
	if len(blocks) == 0 && len(doc.ScheduledEvents) > 0 {
		cycles := doc.Cycles
		if cycles < 1 {
			cycles = 1
		}
		blocks = []Block{{
			BlockName:       "Main Block",
			ScheduledEvents: doc.ScheduledEvents,
			Cycles:          cycles,
		}}
	}

	prof := &Profile{
		ProfileName:            doc.ProfileName,
		WaveformTimeUnits:      doc.WaveformTimeUnits,
		RowDelayMs:             doc.RowDelayMs,
		Positions:              doc.Positions,
		IsolatorWaveformPoints: doc.IsolatorWaveformPoints,
		DUTWaveformPoints:      doc.DUTWaveformPoints,
		Blocks:                 blocks,
		AuxiliaryOutputs:       doc.AuxiliaryOutputs,
		AuxiliaryWaveforms:     doc.AuxiliaryWaveforms,
	}
	if prof.ProfileName == "" {
		prof.ProfileName = "Profile"
	}
	if prof.WaveformTimeUnits == "" {
		prof.WaveformTimeUnits = UnitMilliseconds
	}
	if prof.AuxiliaryOutputs == nil {
		prof.AuxiliaryOutputs = []AuxiliaryOutput{}
	}
	if prof.AuxiliaryWaveforms == nil {
		prof.AuxiliaryWaveforms = map[string][]StepPoint{}
	}
	return prof, nil
}

// EncodeProfile serializes a profile to the persisted JSON schema. The
// output is indented; the device accepts either form.
func EncodeProfile(p *Profile) ([]byte, error) {
	doc := profileDocument{
		ProfileName:            p.ProfileName,
		WaveformTimeUnits:      p.WaveformTimeUnits,
		RowDelayMs:             p.RowDelayMs,
		Positions:              p.Positions,
		IsolatorWaveformPoints: p.IsolatorWaveformPoints,
		DUTWaveformPoints:      p.DUTWaveformPoints,
		Blocks:                 p.Blocks,
		AuxiliaryOutputs:       p.AuxiliaryOutputs,
		AuxiliaryWaveforms:     p.AuxiliaryWaveforms,
	}
	if doc.AuxiliaryOutputs == nil {
		doc.AuxiliaryOutputs = []AuxiliaryOutput{}
	}
	if doc.AuxiliaryWaveforms == nil {
		doc.AuxiliaryWaveforms = map[string][]StepPoint{}
	}
	return json.MarshalIndent(doc, "", "  ")
}
