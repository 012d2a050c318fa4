/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/volund_bench/internal/link"
	"github.com/friendsincode/volund_bench/internal/models"
	"github.com/friendsincode/volund_bench/internal/waveform"
)

var (
	pushDevice string
	pushWait   time.Duration
	pushNoRun  bool
)

var pushCmd = &cobra.Command{
	Use:   "push <profile.json>",
	Short: "Upload a profile to the device and run it",
	Long: `Compile a profile, upload it to the device agent and start the run,
then wait for completion. With --no-run the profile is only uploaded.`,
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushDevice, "device", "", "Device target (serial port or tcp://host:port); overrides VOLUND_DEVICE")
	pushCmd.Flags().DurationVar(&pushWait, "wait", 0, "How long to wait for the run to finish (default: VOLUND_RUN_TIMEOUT_SECONDS)")
	pushCmd.Flags().BoolVar(&pushNoRun, "no-run", false, "Upload only, do not start the run")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	target := pushDevice
	if target == "" {
		target = cfg.DeviceTarget
	}
	if target == "" {
		return fmt.Errorf("no device: pass --device or set VOLUND_DEVICE")
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
	payload, err := models.EncodeProfile(prof)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	transport, err := link.Dial(target, cfg.DeviceBaud)
	if err != nil {
		return err
	}
	client := link.NewClient(transport, logger)
	defer client.Close()

	if err := client.Ping(); err != nil {
		return fmt.Errorf("device not responding: %w", err)
	}

	filename := filepath.Base(args[0])
	if err := client.Put(filename, payload); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	logger.Info().Str("filename", filename).Int("bytes", len(payload)).Msg("profile uploaded")

	if pushNoRun {
		return nil
	}

	if err := client.Run(filename); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	logger.Info().Str("profile", prof.ProfileName).Msg("run started")

	wait := pushWait
	if wait <= 0 {
		wait = cfg.RunTimeout
	}
	result, err := client.WaitDone(wait)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	logger.Info().Str("result", result).Msg("run finished")
	return nil
}
