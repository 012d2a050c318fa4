/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package link

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/volund_bench/internal/device"
	"github.com/friendsincode/volund_bench/internal/events"
	"github.com/friendsincode/volund_bench/internal/models"
	"github.com/friendsincode/volund_bench/internal/telemetry"
)

// RunState is the host's view of the device execution state.
type RunState string

const (
	StateIdle    RunState = "idle"
	StateRunning RunState = "running"
	StatePaused  RunState = "paused"
)

// DeviceStatus is a snapshot of the controller's view of the device.
type DeviceStatus struct {
	Connected   bool      `json:"connected"`
	State       RunState  `json:"state"`
	RunID       string    `json:"run_id,omitempty"`
	ProfileName string    `json:"profile_name,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	// ElapsedMs is wall time since the RUN ack; pauses are not
	// subtracted, the device owns the exact run clock.
	ElapsedMs   float64 `json:"elapsed_ms,omitempty"`
	PlanEntries int     `json:"plan_entries,omitempty"`
	LastResult  string  `json:"last_result,omitempty"`
	LastError   string  `json:"last_error,omitempty"`
}

// ErrBusy reports a deploy attempted while a run is in flight.
var ErrBusy = errors.New("a run is already in progress")

// Controller owns the device client and supervises the upload, run and
// await-completion sequence on its own worker, so callers never block
// on device I/O longer than a single control exchange.
type Controller struct {
	client     *Client
	bus        *events.Bus
	metrics    *telemetry.Metrics
	log        zerolog.Logger
	runTimeout time.Duration

	mu     sync.Mutex
	status DeviceStatus
}

// NewController wires a controller over an open client.
func NewController(client *Client, bus *events.Bus, metrics *telemetry.Metrics, log zerolog.Logger, runTimeout time.Duration) *Controller {
	if runTimeout <= 0 {
		runTimeout = DefaultRunWait
	}
	return &Controller{
		client:     client,
		bus:        bus,
		metrics:    metrics,
		log:        log,
		runTimeout: runTimeout,
		status:     DeviceStatus{State: StateIdle},
	}
}

// Connect verifies the device link with a ping.
func (c *Controller) Connect() error {
	if err := c.client.Ping(); err != nil {
		c.metrics.LinkErrorsTotal.Inc()
		c.setStatus(func(s *DeviceStatus) { s.Connected = false })
		c.bus.Publish(events.EventDeviceLost, events.Payload{"error": err.Error()})
		return err
	}
	c.setStatus(func(s *DeviceStatus) { s.Connected = true })
	c.bus.Publish(events.EventDeviceConnected, nil)
	return nil
}

// Deploy uploads the profile and starts it, then awaits completion on
// a worker. It returns the run id as soon as the device has
// acknowledged the RUN.
func (c *Controller) Deploy(prof *models.Profile, filename string) (string, error) {
	c.mu.Lock()
	if c.status.State != StateIdle {
		c.mu.Unlock()
		return "", ErrBusy
	}
	c.status.State = StateRunning
	c.mu.Unlock()

	runID, err := c.startRun(prof, filename)
	if err != nil {
		c.setStatus(func(s *DeviceStatus) {
			s.State = StateIdle
			s.LastError = err.Error()
		})
		return "", err
	}
	return runID, nil
}

func (c *Controller) startRun(prof *models.Profile, filename string) (string, error) {
	if filename == "" {
		filename = "profile.json"
	}
	payload, err := models.EncodeProfile(prof)
	if err != nil {
		return "", err
	}

	if err := c.client.Put(filename, payload); err != nil {
		c.metrics.UploadsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	c.metrics.UploadsTotal.WithLabelValues("ok").Inc()
	c.bus.Publish(events.EventProfileUploaded, events.Payload{
		"filename": filename,
		"bytes":    len(payload),
	})

	if err := c.client.Run(filename); err != nil {
		return "", fmt.Errorf("start %s: %w", filename, err)
	}

	runID := uuid.NewString()
	started := time.Now()
	entries := 0
	if plan, perr := device.BuildPlan(prof); perr == nil {
		entries = len(plan)
	}
	c.setStatus(func(s *DeviceStatus) {
		s.RunID = runID
		s.ProfileName = prof.ProfileName
		s.StartedAt = started
		s.PlanEntries = entries
		s.LastResult = ""
		s.LastError = ""
	})
	c.bus.Publish(events.EventRunStarted, events.Payload{
		"run_id":  runID,
		"profile": prof.ProfileName,
	})
	c.log.Info().Str("run_id", runID).Str("profile", prof.ProfileName).Msg("run started")

	go c.awaitCompletion(runID, started)
	return runID, nil
}

func (c *Controller) awaitCompletion(runID string, started time.Time) {
	result, err := c.client.WaitDone(c.runTimeout)
	c.metrics.RunDurationSeconds.Observe(time.Since(started).Seconds())

	c.setStatus(func(s *DeviceStatus) {
		s.State = StateIdle
		s.RunID = ""
		s.PlanEntries = 0
	})

	var devErr *DeviceError
	switch {
	case err == nil && result == "STOPPED":
		c.metrics.RunsTotal.WithLabelValues("stopped").Inc()
		c.setStatus(func(s *DeviceStatus) { s.LastResult = result })
		c.bus.Publish(events.EventRunStopped, events.Payload{"run_id": runID})
		c.log.Info().Str("run_id", runID).Msg("run stopped")
	case err == nil:
		c.metrics.RunsTotal.WithLabelValues("ok").Inc()
		c.setStatus(func(s *DeviceStatus) { s.LastResult = result })
		c.bus.Publish(events.EventRunDone, events.Payload{"run_id": runID, "result": result})
		c.log.Info().Str("run_id", runID).Str("result", result).Msg("run finished")
	case errors.As(err, &devErr):
		c.metrics.RunsTotal.WithLabelValues("error").Inc()
		c.setStatus(func(s *DeviceStatus) { s.LastError = err.Error() })
		c.bus.Publish(events.EventRunError, events.Payload{"run_id": runID, "error": devErr.Msg})
		c.log.Error().Str("run_id", runID).Str("error", devErr.Msg).Msg("run failed on device")
	default:
		// Timeout or link failure: the device state is unknown now and
		// the next command must be preceded by a fresh ping.
		c.metrics.RunsTotal.WithLabelValues("timeout").Inc()
		c.metrics.LinkErrorsTotal.Inc()
		c.setStatus(func(s *DeviceStatus) {
			s.Connected = false
			s.LastError = err.Error()
		})
		c.bus.Publish(events.EventDeviceLost, events.Payload{"run_id": runID, "error": err.Error()})
		c.log.Error().Str("run_id", runID).Err(err).Msg("lost device while awaiting completion")
	}
}

// Pause pauses the running profile.
func (c *Controller) Pause() error {
	if err := c.client.Pause(); err != nil {
		return err
	}
	c.setStatus(func(s *DeviceStatus) {
		if s.State == StateRunning {
			s.State = StatePaused
		}
	})
	c.bus.Publish(events.EventRunPaused, events.Payload{"run_id": c.Status().RunID})
	return nil
}

// Resume resumes a paused profile.
func (c *Controller) Resume() error {
	if err := c.client.Resume(); err != nil {
		return err
	}
	c.setStatus(func(s *DeviceStatus) {
		if s.State == StatePaused {
			s.State = StateRunning
		}
	})
	c.bus.Publish(events.EventRunResumed, events.Payload{"run_id": c.Status().RunID})
	return nil
}

// Stop halts the running profile. The await worker observes the DONE
// STOPPED line and finishes the bookkeeping.
func (c *Controller) Stop() error {
	return c.client.Stop()
}

// Status returns a snapshot of the device state.
func (c *Controller) Status() DeviceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	if st.State != StateIdle && !st.StartedAt.IsZero() {
		st.ElapsedMs = float64(time.Since(st.StartedAt).Milliseconds())
	}
	return st
}

func (c *Controller) setStatus(update func(*DeviceStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.status)
}
