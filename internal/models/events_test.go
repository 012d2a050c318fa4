/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "testing"

func TestResolveEventKindBase(t *testing.T) {
	kind, err := ResolveEventKind("Isolator On", nil)
	if err != nil {
		t.Fatalf("ResolveEventKind: %v", err)
	}
	if kind.IsAux() || kind.Base() != EventIsolatorOn {
		t.Fatalf("kind = %v", kind)
	}
}

func TestResolveEventKindAuxEdges(t *testing.T) {
	aux := []AuxiliaryOutput{{Name: "Pump", GPIO: 5, Enabled: true}}

	on, err := ResolveEventKind("Pump On", aux)
	if err != nil {
		t.Fatalf("ResolveEventKind: %v", err)
	}
	if !on.IsAux() || !on.Aux().On || on.Aux().Name != "Pump" {
		t.Fatalf("kind = %v", on)
	}

	off, err := ResolveEventKind("Pump Off", aux)
	if err != nil {
		t.Fatalf("ResolveEventKind: %v", err)
	}
	if !off.IsAux() || off.Aux().On {
		t.Fatalf("kind = %v", off)
	}
}

func TestResolveEventKindRejectsUnknownAndDisabled(t *testing.T) {
	if _, err := ResolveEventKind("Nonsense", nil); err == nil {
		t.Fatal("unknown event resolved")
	}

	aux := []AuxiliaryOutput{{Name: "Pump", GPIO: 5, Enabled: false}}
	if _, err := ResolveEventKind("Pump On", aux); err == nil {
		t.Fatal("disabled auxiliary event resolved")
	}
}

func TestAvailableEventsVocabulary(t *testing.T) {
	aux := []AuxiliaryOutput{
		{Name: "Pump", GPIO: 5, Enabled: true},
		{Name: "Fan", GPIO: 6, Enabled: false},
	}

	names := AvailableEvents(aux)
	want := len(BaseEvents) + 2
	if len(names) != want {
		t.Fatalf("vocabulary size = %d, want %d: %v", len(names), want, names)
	}
	last := names[len(names)-1]
	if last != "Pump Off" {
		t.Fatalf("last entry = %q, want aux edge", last)
	}
}

func TestTimeUnitMillis(t *testing.T) {
	for _, tc := range []struct {
		unit TimeUnit
		in   float64
		want float64
	}{
		{UnitMilliseconds, 250, 250},
		{UnitSeconds, 2, 2000},
		{UnitMinutes, 1.5, 90000},
	} {
		got, err := tc.unit.Millis(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.unit, err)
		}
		if got != tc.want {
			t.Fatalf("%s.Millis(%v) = %v, want %v", tc.unit, tc.in, got, tc.want)
		}
	}

	if _, err := TimeUnit("hours").Millis(1); err == nil {
		t.Fatal("bogus unit accepted")
	}
}
