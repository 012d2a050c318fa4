/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package device

// RemappedPins translates logical GPIO numbers from profiles onto
// physical pins before opening them. Numbers absent from the map pass
// through unchanged.
type RemappedPins struct {
	inner PinProvider
	m     map[int]int
}

// NewRemappedPins wraps a provider with a logical-to-physical pin map.
// A nil or empty map returns the provider unchanged.
func NewRemappedPins(inner PinProvider, m map[int]int) PinProvider {
	if len(m) == 0 {
		return inner
	}
	return &RemappedPins{inner: inner, m: m}
}

func (r *RemappedPins) Open(gpio int) (Pin, error) {
	if physical, ok := r.m[gpio]; ok {
		gpio = physical
	}
	return r.inner.Open(gpio)
}
