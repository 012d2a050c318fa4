/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package link

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/volund_bench/internal/device"
	"github.com/friendsincode/volund_bench/internal/models"
	"github.com/friendsincode/volund_bench/internal/protocol"
)

// agentClient runs a real protocol server on the far end of a pipe.
func agentClient(t *testing.T) (*Client, *device.SimPins) {
	t.Helper()
	hostEnd, agentEnd := net.Pipe()
	pins := device.NewSimPins()

	srv := protocol.NewServer(agentEnd, t.TempDir(), pins, device.RealClock(), zerolog.Nop())
	go srv.Serve(context.Background())

	client := NewClient(&tcpTransport{Conn: hostEnd}, zerolog.Nop())
	t.Cleanup(func() {
		client.Close()
		agentEnd.Close()
	})
	return client, pins
}

func encodedProfile(t *testing.T, lengthMs float64) []byte {
	t.Helper()
	data, err := models.EncodeProfile(&models.Profile{
		ProfileName:       "link test",
		WaveformTimeUnits: models.UnitMilliseconds,
		Positions: []models.PositionConfig{
			{Position: 1, Enabled: true, IsolatorGPIO: 2, DUTGPIO: 3},
		},
		IsolatorWaveformPoints: []models.StepPoint{{TimeMs: 0, State: 1}, {TimeMs: lengthMs, State: 0}},
		DUTWaveformPoints:      []models.StepPoint{{TimeMs: 0, State: 0}, {TimeMs: lengthMs, State: 0}},
	})
	if err != nil {
		t.Fatalf("encode profile: %v", err)
	}
	return data
}

func TestClientPing(t *testing.T) {
	client, _ := agentClient(t)

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestClientPutRunWaitDone(t *testing.T) {
	client, pins := agentClient(t)

	if err := client.Put("profile.json", encodedProfile(t, 30)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := client.Run(""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	result, err := client.WaitDone(5 * time.Second)
	if err != nil {
		t.Fatalf("WaitDone: %v", err)
	}
	if result != "OK" {
		t.Fatalf("result = %q, want OK", result)
	}
	if !pins.AllLow() {
		t.Fatal("pins not low after run")
	}
}

func TestClientStopDuringRun(t *testing.T) {
	client, pins := agentClient(t)

	if err := client.Put("slow.json", encodedProfile(t, 3000)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := client.Run("slow.json"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	done := make(chan struct{})
	var result string
	var waitErr error
	go func() {
		defer close(done)
		result, waitErr = client.WaitDone(5 * time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := client.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := client.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := client.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitDone never returned after STOP")
	}
	if waitErr != nil {
		t.Fatalf("WaitDone: %v", waitErr)
	}
	if result != "STOPPED" {
		t.Fatalf("result = %q, want STOPPED", result)
	}
	if !pins.AllLow() {
		t.Fatal("pins not safe after stop")
	}
}

func TestClientRunErrorSurfacesAsDeviceError(t *testing.T) {
	client, _ := agentClient(t)

	if err := client.Run("missing.json"); err != nil {
		t.Fatalf("Run ack: %v", err)
	}
	_, err := client.WaitDone(3 * time.Second)

	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("err = %v, want *DeviceError", err)
	}
}

func TestClientWaitDoneTimeout(t *testing.T) {
	client, _ := agentClient(t)

	_, err := client.WaitDone(300 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

// silentTransport answers nothing until it has seen the soft-reset
// byte 0x04, then answers the next PING.
type silentTransport struct {
	mu        sync.Mutex
	reset     bool
	replyBuf  bytes.Buffer
	closeOnce sync.Once
}

func (s *silentTransport) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bytes.Contains(p, []byte{0x04}) {
		s.reset = true
	}
	if s.reset && bytes.Contains(p, []byte("PING\n")) {
		s.replyBuf.WriteString("PONG\n")
	}
	return len(p), nil
}

func (s *silentTransport) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replyBuf.Len() == 0 {
		// Emulate a serial read timeout: zero bytes, no error.
		return 0, nil
	}
	return s.replyBuf.Read(p)
}

func (s *silentTransport) Close() error { return nil }

func TestClientPingRecoversViaSoftReset(t *testing.T) {
	client := NewClient(&silentTransport{}, zerolog.Nop())

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping after soft reset: %v", err)
	}
}
