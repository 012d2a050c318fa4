/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentConfig configures the device agent: where it listens and how
// logical GPIO numbers from uploaded profiles map onto physical pins.
type AgentConfig struct {
	// Listen is a TCP address ("0.0.0.0:9300") or "stdio" to serve the
	// protocol on stdin/stdout the way a USB-serial target does.
	Listen string `yaml:"listen"`

	// Backend selects the pin implementation: "sim" or "gpio".
	Backend string `yaml:"backend"`

	// ProfileDir is where uploaded profiles are stored.
	ProfileDir string `yaml:"profile_dir"`

	// PinMap optionally remaps profile GPIO numbers to physical pins,
	// for boards whose wiring differs from the profile author's.
	PinMap map[int]int `yaml:"pin_map"`
}

// DefaultAgentConfig returns the agent defaults used when no config
// file is given.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Listen:     "0.0.0.0:9300",
		Backend:    "sim",
		ProfileDir: "./profiles",
	}
}

// LoadAgentConfig reads an agent YAML config file, filling unset
// fields with defaults.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	cfg := DefaultAgentConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse agent config: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = "0.0.0.0:9300"
	}
	if cfg.ProfileDir == "" {
		cfg.ProfileDir = "./profiles"
	}
	switch cfg.Backend {
	case "":
		cfg.Backend = "sim"
	case "sim", "gpio":
	default:
		return nil, fmt.Errorf("unsupported agent backend %q", cfg.Backend)
	}
	return cfg, nil
}
