/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package device holds the agent-side half of the system: turning an
// uploaded profile into a flat output plan and executing that plan
// against hardware pins in real time.
package device

import (
	"fmt"
	"sync"
)

// Pin is one boolean hardware output.
type Pin interface {
	Set(high bool) error
}

// PinProvider opens pins by GPIO number. The executor opens pins
// lazily, on first reference, and drives them low immediately.
type PinProvider interface {
	Open(gpio int) (Pin, error)
}

// SimPins is an in-memory PinProvider for the simulation backend and
// for tests. It records every level change per pin.
type SimPins struct {
	mu   sync.Mutex
	pins map[int]*simPin
}

type simPin struct {
	mu      *sync.Mutex
	high    bool
	history []bool
}

// NewSimPins returns an empty simulated pin bank.
func NewSimPins() *SimPins {
	return &SimPins{pins: map[int]*simPin{}}
}

var _ PinProvider = (*SimPins)(nil)

func (s *SimPins) Open(gpio int) (Pin, error) {
	if gpio < 0 {
		return nil, fmt.Errorf("invalid gpio %d", gpio)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pins[gpio]; ok {
		return p, nil
	}
	p := &simPin{mu: &s.mu}
	s.pins[gpio] = p
	return p, nil
}

func (p *simPin) Set(high bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.high = high
	p.history = append(p.history, high)
	return nil
}

// States returns the current level of every opened pin.
func (s *SimPins) States() map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]bool, len(s.pins))
	for gpio, p := range s.pins {
		out[gpio] = p.high
	}
	return out
}

// History returns the ordered level changes applied to one pin.
func (s *SimPins) History(gpio int) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[gpio]
	if !ok {
		return nil
	}
	out := make([]bool, len(p.history))
	copy(out, p.history)
	return out
}

// AllLow reports whether every opened pin is currently low.
func (s *SimPins) AllLow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pins {
		if p.high {
			return false
		}
	}
	return true
}
