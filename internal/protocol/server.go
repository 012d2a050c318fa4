/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package protocol implements the line-delimited upload/control
// protocol the agent speaks over serial or TCP: PING, PUT, RUN, PAUSE,
// RESUME, STOP, QUIT. One connection, one command in flight.
package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/volund_bench/internal/device"
	"github.com/friendsincode/volund_bench/internal/models"
)

// maxPutBytes bounds a PUT body so a bad header cannot wedge the
// reader waiting for gigabytes.
const maxPutBytes = 4 << 20

// Server serves the protocol on one stream. Profile files land in Dir;
// runs execute against Pins.
type Server struct {
	rw    io.ReadWriter
	dir   string
	pins  device.PinProvider
	clock device.Clock
	log   zerolog.Logger

	writeMu sync.Mutex
}

// NewServer builds a server for one connection.
func NewServer(rw io.ReadWriter, dir string, pins device.PinProvider, clock device.Clock, log zerolog.Logger) *Server {
	return &Server{rw: rw, dir: dir, pins: pins, clock: clock, log: log}
}

type request struct {
	line string
	body []byte
}

type runOutcome struct {
	result device.Result
	err    error
}

// Serve processes commands until the stream closes, QUIT arrives, or
// the context is canceled. A run in progress is always stopped and
// driven safe before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	reqs := make(chan request)
	go s.readLoop(reqs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req, ok := <-reqs:
			if !ok {
				return nil
			}
			quit, err := s.handleIdle(ctx, reqs, req)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// readLoop frames the inbound stream into requests. PUT bodies are
// consumed here so the line framing never desynchronizes.
func (s *Server) readLoop(reqs chan<- request) {
	defer close(reqs)
	br := bufio.NewReader(s.rw)
	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			req := request{line: trimmed}
			if name, n, perr := parsePutHeader(trimmed); perr == nil && name != "" {
				body := make([]byte, n)
				if _, rerr := io.ReadFull(br, body); rerr != nil {
					return
				}
				req.body = body
			}
			reqs <- req
		}
		if err != nil {
			return
		}
	}
}

// parsePutHeader parses "PUT <filename> <nbytes>". A non-PUT line
// returns an empty name and no error.
func parsePutHeader(line string) (name string, n int, err error) {
	if !strings.HasPrefix(line, "PUT ") {
		return "", 0, nil
	}
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return "", 0, fmt.Errorf("PUT format")
	}
	n, convErr := strconv.Atoi(parts[2])
	if convErr != nil || n < 0 || n > maxPutBytes {
		return "", 0, fmt.Errorf("PUT nbytes")
	}
	return parts[1], n, nil
}

func (s *Server) handleIdle(ctx context.Context, reqs <-chan request, req request) (quit bool, err error) {
	switch {
	case req.line == "PING":
		s.writeLine("PONG")
	case req.line == "STOP":
		s.writeLine("OK STOP")
	case req.line == "PAUSE":
		s.writeLine("OK PAUSE")
	case req.line == "RESUME":
		s.writeLine("OK RESUME")
	case req.line == "QUIT":
		s.writeLine("OK QUIT")
		return true, nil
	case strings.HasPrefix(req.line, "PUT"):
		s.handlePut(req)
	case strings.HasPrefix(req.line, "RUN "):
		return false, s.handleRun(ctx, reqs, req.line)
	default:
		s.writeLine("ERR Unknown command")
	}
	return false, nil
}

func (s *Server) handlePut(req request) {
	name, _, err := parsePutHeader(req.line)
	if err != nil {
		s.writeLine("ERR " + err.Error())
		return
	}
	if name == "" {
		s.writeLine("ERR PUT format")
		return
	}

	// Uploaded content must be valid JSON; anything else is rejected
	// before it can reach a RUN.
	if !json.Valid(req.body) {
		s.writeLine("ERR PUT body is not valid JSON")
		return
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, req.body, 0o644); err != nil {
		s.writeLine("ERR " + err.Error())
		return
	}
	s.log.Info().Str("file", filepath.Base(name)).Int("bytes", len(req.body)).Msg("profile stored")
	s.writeLine("OK PUT")
}

// handleRun acknowledges the RUN, executes the named profile, and
// reports completion asynchronously. While running, only PAUSE, RESUME
// and STOP are honored; a second RUN or a PUT is rejected and anything
// else is ignored.
func (s *Server) handleRun(ctx context.Context, reqs <-chan request, line string) error {
	parts := strings.SplitN(line, " ", 2)
	filename := strings.TrimSpace(parts[1])
	if filename == "" {
		s.writeLine("ERR RUN format")
		return nil
	}

	s.writeLine("OK RUN")

	plan, err := s.loadPlan(filename)
	if err != nil {
		s.writeLine("ERR " + err.Error())
		return nil
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	cmds := make(chan device.Command)
	done := make(chan runOutcome, 1)
	exec := device.NewExecutor(s.pins, s.clock, s.log)
	go func() {
		res, runErr := exec.Run(runCtx, plan, cmds)
		done <- runOutcome{result: res, err: runErr}
	}()

	for {
		select {
		case out := <-done:
			s.writeOutcome(out)
			return nil
		case req, ok := <-reqs:
			if !ok {
				cancelRun()
				<-done
				return nil
			}
			cmd, recognized := s.translateRunCommand(req.line)
			if !recognized {
				continue
			}
			select {
			case cmds <- cmd:
			case out := <-done:
				s.writeOutcome(out)
				// The run is over; the pending command falls back to
				// its idle (idempotent) meaning.
				quit, err := s.handleIdle(ctx, reqs, req)
				if quit || err != nil {
					return err
				}
				return nil
			}
		}
	}
}

// translateRunCommand maps a wire line to an executor command. The ack
// closures write the reply, so STOP is acknowledged only after the
// executor has reached the safe state.
func (s *Server) translateRunCommand(line string) (device.Command, bool) {
	switch line {
	case "STOP":
		return device.Command{Kind: device.CommandStop, Ack: func() { s.writeLine("OK STOP") }}, true
	case "PAUSE":
		return device.Command{Kind: device.CommandPause, Ack: func() { s.writeLine("OK PAUSE") }}, true
	case "RESUME":
		return device.Command{Kind: device.CommandResume, Ack: func() { s.writeLine("OK RESUME") }}, true
	}
	switch {
	case strings.HasPrefix(line, "RUN "):
		s.writeLine("ERR already running")
	case strings.HasPrefix(line, "PUT"):
		s.writeLine("ERR busy")
	}
	// PING and anything else is ignored while running.
	return device.Command{}, false
}

func (s *Server) loadPlan(filename string) ([]device.PlanEntry, error) {
	path := filepath.Join(s.dir, filepath.Base(filename))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	prof, err := models.DecodeProfile(data)
	if err != nil {
		return nil, err
	}
	return device.BuildPlan(prof)
}

func (s *Server) writeOutcome(out runOutcome) {
	switch {
	case out.err != nil:
		s.writeLine("ERR " + out.err.Error())
	case out.result == device.ResultStopped:
		s.writeLine("DONE STOPPED")
	default:
		s.writeLine("DONE OK")
	}
}

func (s *Server) writeLine(line string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(s.rw, line+"\n"); err != nil {
		s.log.Warn().Err(err).Str("line", line).Msg("write failed")
	}
}
