/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package device

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CommandKind is a control command applied to a running plan.
type CommandKind int

const (
	CommandStop CommandKind = iota
	CommandPause
	CommandResume
)

func (k CommandKind) String() string {
	switch k {
	case CommandStop:
		return "STOP"
	case CommandPause:
		return "PAUSE"
	case CommandResume:
		return "RESUME"
	}
	return "UNKNOWN"
}

// Command is one control command. Ack, when non-nil, is invoked once
// the command has taken effect. For STOP that is only after every
// touched pin is back at its safe level, never before.
type Command struct {
	Kind CommandKind
	Ack  func()
}

// Clock abstracts monotonic time so the run loop is testable without
// real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// Result is the terminal outcome of a completed run.
type Result string

const (
	ResultDone    Result = "DONE"
	ResultStopped Result = "STOPPED"
)

const (
	pollInterval  = 1 * time.Millisecond
	pauseInterval = 5 * time.Millisecond
)

// Executor drives a plan against a pin provider as one cooperative
// loop: every iteration polls for commands, then either idles (paused)
// or applies all plan entries whose timestamp has elapsed.
type Executor struct {
	pins  PinProvider
	clock Clock
	log   zerolog.Logger
}

// NewExecutor builds an executor over the given pin backend.
func NewExecutor(pins PinProvider, clock Clock, log zerolog.Logger) *Executor {
	if clock == nil {
		clock = RealClock()
	}
	return &Executor{pins: pins, clock: clock, log: log}
}

// Run executes the plan to completion, honoring commands as they
// arrive. Pausing freezes elapsed time exactly: on resume the start
// reference shifts forward by the paused duration, so the next entry
// fires at the same elapsed offset it would have without the pause.
// On any terminal path, including errors and context cancellation,
// every pin touched so far is driven low before Run returns.
func (e *Executor) Run(ctx context.Context, plan []PlanEntry, commands <-chan Command) (Result, error) {
	opened := map[int]Pin{}

	safeAllLow := func() {
		for gpio, pin := range opened {
			if err := pin.Set(false); err != nil {
				e.log.Warn().Err(err).Int("gpio", gpio).Msg("safe-state write failed")
			}
		}
	}

	apply := func(entry PlanEntry) error {
		pin, ok := opened[entry.GPIO]
		if !ok {
			var err error
			pin, err = e.pins.Open(entry.GPIO)
			if err != nil {
				return fmt.Errorf("open gpio %d: %w", entry.GPIO, err)
			}
			opened[entry.GPIO] = pin
			if err := pin.Set(false); err != nil {
				return fmt.Errorf("init gpio %d: %w", entry.GPIO, err)
			}
		}
		if err := pin.Set(entry.State != 0); err != nil {
			return fmt.Errorf("set gpio %d: %w", entry.GPIO, err)
		}
		return nil
	}

	e.log.Info().Int("entries", len(plan)).Msg("run started")

	t0 := e.clock.Now()
	var pauseStart time.Time
	paused := false

	i, n := 0, len(plan)
	for i < n {
		select {
		case cmd := <-commands:
			switch cmd.Kind {
			case CommandStop:
				safeAllLow()
				if cmd.Ack != nil {
					cmd.Ack()
				}
				e.log.Info().Msg("run stopped")
				return ResultStopped, nil
			case CommandPause:
				if !paused {
					paused = true
					pauseStart = e.clock.Now()
					e.log.Info().Msg("run paused")
				}
				if cmd.Ack != nil {
					cmd.Ack()
				}
			case CommandResume:
				if paused {
					t0 = t0.Add(e.clock.Now().Sub(pauseStart))
					paused = false
					e.log.Info().Msg("run resumed")
				}
				if cmd.Ack != nil {
					cmd.Ack()
				}
			}
			continue
		case <-ctx.Done():
			safeAllLow()
			return ResultStopped, ctx.Err()
		default:
		}

		if paused {
			e.clock.Sleep(pauseInterval)
			continue
		}

		next := plan[i]
		elapsed := e.clock.Now().Sub(t0)
		if elapsed < time.Duration(next.TimeMs)*time.Millisecond {
			e.clock.Sleep(pollInterval)
			continue
		}

		// All entries sharing this timestamp apply as one batch,
		// before the next command poll or timing check.
		sameT := next.TimeMs
		for i < n && plan[i].TimeMs == sameT {
			if err := apply(plan[i]); err != nil {
				safeAllLow()
				return "", err
			}
			i++
		}
	}

	safeAllLow()
	e.log.Info().Msg("run finished")
	return ResultDone, nil
}
