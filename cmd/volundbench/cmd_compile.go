/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/friendsincode/volund_bench/internal/models"
	"github.com/friendsincode/volund_bench/internal/waveform"
)

var compileOutput string

var compileCmd = &cobra.Command{
	Use:   "compile <profile.json>",
	Short: "Compile a profile and write the canonical document",
	Long: `Compile a profile file: validate the schedule, expand every block
into step waveforms and write the canonical document with the derived
waveform points filled in, ready for upload to a device agent.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "Output path (default: input name inside the data directory)")
	rootCmd.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	in, err := models.DecodeProfile(data)
	if err != nil {
		return fmt.Errorf("parse profile: %w", err)
	}

	prof, err := waveform.RecompileProfile(in)
	if err != nil {
		return fmt.Errorf("compile profile: %w", err)
	}
	seq, err := waveform.SequenceBlocks(prof.Blocks, prof.WaveformTimeUnits, prof.AuxiliaryOutputs)
	if err != nil {
		return fmt.Errorf("compile profile: %w", err)
	}

	out := compileOutput
	if out == "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		out = filepath.Join(cfg.DataDir, filepath.Base(args[0]))
	}

	encoded, err := models.EncodeProfile(prof)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.WriteFile(out, encoded, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	channels := waveform.ProjectChannels(prof.Positions, prof.RowDelayMs, prof.AuxiliaryOutputs, seq)
	totalCycles := 0
	for _, b := range prof.Blocks {
		totalCycles += b.Cycles
	}
	logger.Info().
		Str("profile", prof.ProfileName).
		Str("output", out).
		Str("units", string(prof.WaveformTimeUnits)).
		Float64("total_ms", seq.TotalLengthMs).
		Int("blocks", len(prof.Blocks)).
		Int("total_cycles", totalCycles).
		Int("enabled_positions", len(prof.EnabledPositions())).
		Int("channels", len(channels)).
		Msg("profile compiled")
	for _, ch := range channels {
		logger.Info().
			Str("channel", ch.Name).
			Int("points", len(ch.Points)).
			Bool("ramps", ch.HasRamps).
			Msg("channel")
	}
	return nil
}
