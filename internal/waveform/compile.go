/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package waveform

import (
	"fmt"

	"github.com/friendsincode/volund_bench/internal/models"
)

// ValidationError reports a schedule that cannot be compiled. Field and
// Event identify what was wrong; compilation produces no partial output.
type ValidationError struct {
	Block string
	Event string
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	out := "invalid schedule"
	if e.Block != "" {
		out += fmt.Sprintf(" in block %q", e.Block)
	}
	if e.Event != "" {
		out += fmt.Sprintf(": event %q", e.Event)
	}
	if e.Field != "" {
		out += fmt.Sprintf(": %s", e.Field)
	}
	if e.Msg != "" {
		out += ": " + e.Msg
	}
	return out
}

// BlockResult is the compiled output of one block. Every channel starts
// its own clock at zero; the sequencer shifts blocks into place.
type BlockResult struct {
	Isolator []models.StepPoint
	DUT      []models.StepPoint
	Aux      map[string][]models.StepPoint

	IsolatorDisplay []DisplayPoint
	DUTDisplay      []DisplayPoint

	IsolatorHasRamps bool
	DUTHasRamps      bool

	// LengthMs is the maximum boundary actually emitted after the
	// final-cycle Cycle Delay skip.
	LengthMs float64
}

type scheduledEventMs struct {
	kind models.EventKind
	s    float64
	e    float64
}

// CompileBlock validates one block and expands its schedule across the
// block's cycle count. A Cycle Delay event is emitted after every cycle
// except the last, so the trailing idle gap exists only between
// repetitions. Any validation failure aborts the whole block.
func CompileBlock(block models.Block, unit models.TimeUnit, aux []models.AuxiliaryOutput) (*BlockResult, error) {
	if len(block.ScheduledEvents) == 0 {
		return nil, &ValidationError{Block: block.BlockName, Field: "scheduled_events", Msg: "add at least one schedule entry"}
	}
	if block.Cycles < 1 {
		return nil, &ValidationError{Block: block.BlockName, Field: "cycles", Msg: "cycles must be >= 1"}
	}
	if !unit.Valid() {
		return nil, &ValidationError{Block: block.BlockName, Field: "waveform_time_units", Msg: fmt.Sprintf("unsupported unit %q", string(unit))}
	}

	base := make([]scheduledEventMs, 0, len(block.ScheduledEvents))
	baseBoundaries := []float64{0}
	for _, ev := range block.ScheduledEvents {
		kind, err := models.ResolveEventKind(ev.Event, aux)
		if err != nil {
			return nil, &ValidationError{Block: block.BlockName, Event: ev.Event, Field: "event", Msg: err.Error()}
		}
		if ev.Start < 0 {
			return nil, &ValidationError{Block: block.BlockName, Event: ev.Event, Field: "start", Msg: "start must be >= 0"}
		}
		if ev.Duration < 0 {
			return nil, &ValidationError{Block: block.BlockName, Event: ev.Event, Field: "duration", Msg: "duration must be >= 0"}
		}

		s, _ := unit.Millis(ev.Start)
		d, _ := unit.Millis(ev.Duration)
		e := s + d
		base = append(base, scheduledEventMs{kind: kind, s: s, e: e})
		baseBoundaries = append(baseBoundaries, s, e)
	}

	cycleLengthMs := maxFloat(baseBoundaries)

	var (
		boundaries = []float64{0}

		isoSteady []SteadyInterval
		dutSteady []SteadyInterval
		auxSteady = map[string][]SteadyInterval{}

		isoRise, isoFall []RampWindow
		dutRise, dutFall []RampWindow
	)
	for _, out := range aux {
		if out.Enabled && out.Name != "" {
			auxSteady[out.Name] = nil
		}
	}

	for c := 0; c < block.Cycles; c++ {
		shift := float64(c) * cycleLengthMs
		for _, ev := range base {
			if !ev.kind.IsAux() && ev.kind.Base() == models.EventCycleDelay && c == block.Cycles-1 {
				continue
			}
			s, e := ev.s+shift, ev.e+shift
			boundaries = append(boundaries, s, e)

			if ev.kind.IsAux() {
				edge := ev.kind.Aux()
				state := 0
				if edge.On {
					state = 1
				}
				auxSteady[edge.Name] = append(auxSteady[edge.Name], SteadyInterval{Start: s, End: e, State: state})
				continue
			}

			switch ev.kind.Base() {
			case models.EventIsolatorOn:
				isoSteady = append(isoSteady, SteadyInterval{Start: s, End: e, State: 1})
			case models.EventIsolatorOff:
				isoSteady = append(isoSteady, SteadyInterval{Start: s, End: e, State: 0})
			case models.EventDUTHold:
				dutSteady = append(dutSteady, SteadyInterval{Start: s, End: e, State: 1})
			case models.EventDUTOff:
				dutSteady = append(dutSteady, SteadyInterval{Start: s, End: e, State: 0})
			case models.EventCycleDelay:
				isoSteady = append(isoSteady, SteadyInterval{Start: s, End: e, State: 0})
				dutSteady = append(dutSteady, SteadyInterval{Start: s, End: e, State: 0})
			case models.EventIsolatorRise:
				isoRise = append(isoRise, RampWindow{Start: s, End: e})
			case models.EventIsolatorFall:
				isoFall = append(isoFall, RampWindow{Start: s, End: e})
			case models.EventDUTRise:
				dutRise = append(dutRise, RampWindow{Start: s, End: e})
			case models.EventDUTFall:
				dutFall = append(dutFall, RampWindow{Start: s, End: e})
			}
		}
	}

	res := &BlockResult{
		Isolator:         BuildStepWaveform(isoSteady, boundaries),
		DUT:              BuildStepWaveform(dutSteady, boundaries),
		Aux:              map[string][]models.StepPoint{},
		IsolatorHasRamps: len(isoRise)+len(isoFall) > 0,
		DUTHasRamps:      len(dutRise)+len(dutFall) > 0,
		LengthMs:         maxFloat(boundaries),
	}
	for name, intervals := range auxSteady {
		res.Aux[name] = BuildStepWaveform(intervals, boundaries)
	}
	res.IsolatorDisplay = ApplyRamps(res.Isolator, isoRise, isoFall)
	res.DUTDisplay = ApplyRamps(res.DUT, dutRise, dutFall)
	return res, nil
}

func maxFloat(values []float64) float64 {
	max := 0.0
	for _, v := range values {
		if v > max {
			max = v
		}
	}
	return max
}
