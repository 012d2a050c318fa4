/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package device

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOPins is the hardware PinProvider, backed by the host's GPIO
// registry. Pin names follow the Broadcom numbering ("GPIO17").
type GPIOPins struct{}

// NewGPIOPins initializes the host drivers and returns the provider.
func NewGPIOPins() (*GPIOPins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init gpio host: %w", err)
	}
	return &GPIOPins{}, nil
}

var _ PinProvider = (*GPIOPins)(nil)

func (g *GPIOPins) Open(gpioNum int) (Pin, error) {
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", gpioNum))
	if p == nil {
		return nil, fmt.Errorf("gpio %d not present on this host", gpioNum)
	}
	return &hwPin{p: p}, nil
}

type hwPin struct {
	p gpio.PinIO
}

func (h *hwPin) Set(high bool) error {
	level := gpio.Low
	if high {
		level = gpio.High
	}
	if err := h.p.Out(level); err != nil {
		return fmt.Errorf("set %s: %w", h.p.Name(), err)
	}
	return nil
}
