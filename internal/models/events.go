/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "fmt"

// BaseEvent enumerates the fixed schedule event kinds.
type BaseEvent string

const (
	EventIsolatorOn   BaseEvent = "Isolator On"
	EventIsolatorRise BaseEvent = "Isolator Rise Time"
	EventIsolatorFall BaseEvent = "Isolator Fall Time"
	EventDUTHold      BaseEvent = "DUT Hold Time"
	EventDUTRise      BaseEvent = "DUT Rise Time"
	EventDUTFall      BaseEvent = "DUT Fall Time"
	EventIsolatorOff  BaseEvent = "Isolator Off Time"
	EventDUTOff       BaseEvent = "DUT Off Time"
	EventCycleDelay   BaseEvent = "Cycle Delay"
)

func (e BaseEvent) String() string { return string(e) }

// BaseEvents lists the fixed kinds in the order the editor offers them.
var BaseEvents = []BaseEvent{
	EventIsolatorOn,
	EventIsolatorRise,
	EventIsolatorFall,
	EventDUTHold,
	EventDUTRise,
	EventDUTFall,
	EventIsolatorOff,
	EventDUTOff,
	EventCycleDelay,
}

// AuxEdge is an edge on a named auxiliary output.
type AuxEdge struct {
	Name string
	On   bool
}

// EventKind is the closed classification of a schedule entry: either one
// of the fixed base kinds or an edge on a configured auxiliary output.
// Construct via ResolveEventKind so unknown names are rejected against
// the live auxiliary list rather than silently accepted.
type EventKind struct {
	base BaseEvent
	aux  *AuxEdge
}

// IsAux reports whether the kind is an auxiliary edge.
func (k EventKind) IsAux() bool { return k.aux != nil }

// Aux returns the auxiliary edge. Only meaningful when IsAux is true.
func (k EventKind) Aux() AuxEdge {
	if k.aux == nil {
		return AuxEdge{}
	}
	return *k.aux
}

// Base returns the base kind. Only meaningful when IsAux is false.
func (k EventKind) Base() BaseEvent { return k.base }

// String returns the schedule vocabulary name for the kind.
func (k EventKind) String() string {
	if k.aux != nil {
		if k.aux.On {
			return k.aux.Name + " On"
		}
		return k.aux.Name + " Off"
	}
	return string(k.base)
}

// ResolveEventKind classifies an event name against the fixed kinds and
// the currently configured auxiliary outputs. Disabled outputs do not
// contribute kinds, so a schedule referencing one fails here.
func ResolveEventKind(name string, aux []AuxiliaryOutput) (EventKind, error) {
	for _, base := range BaseEvents {
		if name == string(base) {
			return EventKind{base: base}, nil
		}
	}
	for _, out := range aux {
		if !out.Enabled || out.Name == "" {
			continue
		}
		switch name {
		case out.Name + " On":
			return EventKind{aux: &AuxEdge{Name: out.Name, On: true}}, nil
		case out.Name + " Off":
			return EventKind{aux: &AuxEdge{Name: out.Name, On: false}}, nil
		}
	}
	return EventKind{}, fmt.Errorf("unknown event %q", name)
}

// AvailableEvents returns the schedule vocabulary: the fixed kinds plus
// On/Off edges for every enabled auxiliary output.
func AvailableEvents(aux []AuxiliaryOutput) []string {
	names := make([]string, 0, len(BaseEvents)+2*len(aux))
	for _, base := range BaseEvents {
		names = append(names, string(base))
	}
	for _, out := range aux {
		if !out.Enabled || out.Name == "" {
			continue
		}
		names = append(names, out.Name+" On", out.Name+" Off")
	}
	return names
}
