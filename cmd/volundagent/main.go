/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// volundagent is the device-side half of the system: it listens for a
// host connection, accepts profile uploads and executes them against
// simulated or real GPIO pins.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/volund_bench/internal/config"
	"github.com/friendsincode/volund_bench/internal/device"
	"github.com/friendsincode/volund_bench/internal/logging"
	"github.com/friendsincode/volund_bench/internal/protocol"
	"github.com/friendsincode/volund_bench/internal/version"
)

var (
	agentConfigPath string
	agentListen     string
	agentBackend    string
	agentProfileDir string
)

var rootCmd = &cobra.Command{
	Use:   "volundagent",
	Short: "Volund Bench device agent",
	Long: `The agent runs next to the bench hardware. It speaks the device
protocol over TCP or stdio, stores uploaded profiles and executes them
on simulated or real GPIO pins.`,
	Version: version.Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.Flags().StringVarP(&agentConfigPath, "config", "c", "", "Agent YAML config file")
	rootCmd.Flags().StringVar(&agentListen, "listen", "", "TCP listen address, or \"stdio\" (overrides config)")
	rootCmd.Flags().StringVar(&agentBackend, "backend", "", "Pin backend: sim or gpio (overrides config)")
	rootCmd.Flags().StringVar(&agentProfileDir, "profile-dir", "", "Directory for uploaded profiles (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAgentConfig(agentConfigPath)
	if err != nil {
		return err
	}
	if agentListen != "" {
		cfg.Listen = agentListen
	}
	if agentBackend != "" {
		cfg.Backend = agentBackend
	}
	if agentProfileDir != "" {
		cfg.ProfileDir = agentProfileDir
	}

	logger := logging.Setup(os.Getenv("VOLUND_ENV"))
	logger = logger.With().Str("component", "agent").Logger()

	pins, err := buildPins(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile directory %s: %w", cfg.ProfileDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info().Msg("shutting down")
		cancel()
	}()

	if cfg.Listen == "stdio" {
		logger.Info().Str("backend", cfg.Backend).Msg("serving protocol on stdio")
		srv := protocol.NewServer(stdioRW{}, cfg.ProfileDir, pins, device.RealClock(), logger)
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	return serveTCP(ctx, cfg, pins, logger)
}

func buildPins(cfg *config.AgentConfig) (device.PinProvider, error) {
	var pins device.PinProvider
	switch cfg.Backend {
	case "gpio":
		hw, err := device.NewGPIOPins()
		if err != nil {
			return nil, fmt.Errorf("initialize gpio backend: %w", err)
		}
		pins = hw
	default:
		pins = device.NewSimPins()
	}
	return device.NewRemappedPins(pins, cfg.PinMap), nil
}

func serveTCP(ctx context.Context, cfg *config.AgentConfig, pins device.PinProvider, logger zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	defer ln.Close()
	logger.Info().Str("addr", ln.Addr().String()).Str("backend", cfg.Backend).Msg("agent listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Error().Err(err).Msg("accept failed")
			continue
		}

		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			defer conn.Close()
			remote := conn.RemoteAddr().String()
			logger.Info().Str("remote", remote).Msg("host connected")

			srv := protocol.NewServer(conn, cfg.ProfileDir, pins, device.RealClock(),
				logger.With().Str("remote", remote).Logger())
			if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Str("remote", remote).Msg("session ended with error")
			} else {
				logger.Info().Str("remote", remote).Msg("host disconnected")
			}
		}(conn)
	}

	wg.Wait()
	return nil
}

// stdioRW serves the protocol over the process's own stdin/stdout, the
// same shape a USB-serial device presents.
type stdioRW struct{}

func (stdioRW) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioRW) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

var _ io.ReadWriter = stdioRW{}
