/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package link

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrTimeout reports that the device sent nothing within the allowed
// wait. It is distinct from a DeviceError: the device's state is
// unknown afterwards and a fresh Ping is required.
var ErrTimeout = errors.New("timeout waiting for device")

// DeviceError is an explicit ERR reply from the device.
type DeviceError struct {
	Msg string
}

func (e *DeviceError) Error() string { return "device: " + e.Msg }

const (
	pingWait      = 5 * time.Second
	pingRetryWait = 3 * time.Second
	replyWait     = 3 * time.Second

	// DefaultRunWait bounds WaitDone when the caller has no better
	// estimate of the profile length.
	DefaultRunWait = 120 * time.Second
)

// Client speaks the device protocol over one transport. All methods
// are safe for concurrent use; only one exchange is in flight at a
// time.
type Client struct {
	mu  sync.Mutex
	t   Transport
	buf []byte
	log zerolog.Logger

	lastFilename string

	// pendingDone holds a DONE/ERR completion line that a control
	// exchange consumed while a WaitDone was interleaved with it;
	// pendingAcks holds OK lines that WaitDone consumed while a
	// control exchange was waiting for them.
	pendingDone string
	pendingAcks []string
}

// NewClient wraps an open transport.
func NewClient(t Transport, log zerolog.Logger) *Client {
	return &Client{t: t, log: log, lastFilename: "profile.json"}
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t.Close()
}

// Ping verifies the device is responsive. If nothing at all comes back
// it performs one soft reset and retries once before giving up with
// ErrTimeout. A reply other than PONG is surfaced as a DeviceError.
func (c *Client) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drain()
	if err := c.writeLine("PING"); err != nil {
		return err
	}

	last, err := c.awaitLine(pingWait, func(line string) bool { return line == "PONG" })
	if err == nil {
		return nil
	}
	if last != "" {
		return &DeviceError{Msg: last}
	}

	// Dead silence: soft-reset the device and try once more.
	c.log.Warn().Msg("device silent, attempting soft reset")
	c.softReset()
	c.drain()
	if err := c.writeLine("PING"); err != nil {
		return err
	}
	if _, err := c.awaitLine(pingRetryWait, func(line string) bool { return line == "PONG" }); err != nil {
		return fmt.Errorf("no response after reset: %w", ErrTimeout)
	}
	return nil
}

// Put uploads a JSON payload under the given filename.
func (c *Client) Put(filename string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	header := fmt.Sprintf("PUT %s %d\n", filename, len(payload))
	if _, err := c.t.Write([]byte(header)); err != nil {
		return fmt.Errorf("write PUT header: %w", err)
	}
	if _, err := c.t.Write(payload); err != nil {
		return fmt.Errorf("write PUT body: %w", err)
	}
	c.lastFilename = filename
	return c.expectReply("OK PUT", replyWait)
}

// Run starts the named profile. An empty filename reuses the last
// uploaded one. Completion is reported separately; use WaitDone.
func (c *Client) Run(filename string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if filename == "" {
		filename = c.lastFilename
	}
	if err := c.writeLine("RUN " + filename); err != nil {
		return err
	}
	return c.expectReply("OK RUN", replyWait)
}

// Pause pauses the running profile.
func (c *Client) Pause() error { return c.control("PAUSE") }

// Resume resumes a paused profile.
func (c *Client) Resume() error { return c.control("RESUME") }

// Stop halts the running profile. The OK arrives only once the device
// has driven every output to its safe state.
func (c *Client) Stop() error { return c.control("STOP") }

// control runs a PAUSE/RESUME/STOP exchange. These overlap with an
// in-flight WaitDone, so a completion line read here is stashed for
// WaitDone to pick up rather than treated as the ack.
func (c *Client) control(cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writeLine(cmd); err != nil {
		return err
	}

	deadline := time.Now().Add(replyWait)
	for {
		if c.takeAck("OK " + cmd) {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%s: %w", cmd, ErrTimeout)
		}
		line, err := c.readLine(remaining)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		switch {
		case line == "OK "+cmd:
			return nil
		case strings.HasPrefix(line, "DONE"):
			c.pendingDone = line
		case strings.HasPrefix(line, "ERR"):
			return &DeviceError{Msg: strings.TrimSpace(strings.TrimPrefix(line, "ERR"))}
		}
	}
}

// takeAck removes a stashed ack line if present. Caller holds mu.
func (c *Client) takeAck(want string) bool {
	for i, ack := range c.pendingAcks {
		if ack == want {
			c.pendingAcks = append(c.pendingAcks[:i], c.pendingAcks[i+1:]...)
			return true
		}
	}
	return false
}

// WaitDone blocks until the device reports run completion. It returns
// the result string from the DONE line ("OK", "STOPPED"). A device ERR
// becomes a DeviceError; silence past the timeout becomes ErrTimeout.
// The transport lock is taken per read, so control commands interleave
// with the wait instead of queueing behind it.
func (c *Client) WaitDone(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultRunWait
	}

	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return "", fmt.Errorf("waiting for DONE: %w", ErrTimeout)
		}

		c.mu.Lock()
		line := c.pendingDone
		c.pendingDone = ""
		var err error
		if line == "" {
			line, err = c.readLine(transportReadTimeout)
		}
		if err == nil && strings.HasPrefix(line, "OK ") {
			// An ack meant for an overlapping control exchange.
			c.pendingAcks = append(c.pendingAcks, line)
			line = ""
		}
		c.mu.Unlock()

		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return "", fmt.Errorf("waiting for DONE: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "DONE"):
			return strings.TrimSpace(strings.TrimPrefix(line, "DONE")), nil
		case strings.HasPrefix(line, "ERR"):
			return "", &DeviceError{Msg: strings.TrimSpace(strings.TrimPrefix(line, "ERR"))}
		}
	}
}

// expectReply reads the next reply line and matches it against want.
func (c *Client) expectReply(want string, wait time.Duration) error {
	line, err := c.readLine(wait)
	if err != nil {
		return err
	}
	if line == want {
		return nil
	}
	if strings.HasPrefix(line, "ERR") {
		return &DeviceError{Msg: strings.TrimSpace(strings.TrimPrefix(line, "ERR"))}
	}
	return fmt.Errorf("unexpected reply %q, want %q", line, want)
}

// awaitLine reads lines until match succeeds or the wait elapses,
// returning the last non-matching line seen.
func (c *Client) awaitLine(wait time.Duration, match func(string) bool) (last string, err error) {
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return last, ErrTimeout
		}
		line, rerr := c.readLine(remaining)
		if rerr != nil {
			return last, rerr
		}
		if match(line) {
			return line, nil
		}
		last = line
	}
}

// readLine returns the next non-empty line, waiting at most wait.
func (c *Client) readLine(wait time.Duration) (string, error) {
	deadline := time.Now().Add(wait)
	for {
		if idx := bytes.IndexByte(c.buf, '\n'); idx >= 0 {
			line := strings.TrimSpace(string(c.buf[:idx]))
			c.buf = c.buf[idx+1:]
			if line == "" {
				continue
			}
			return line, nil
		}
		if time.Now().After(deadline) {
			return "", ErrTimeout
		}

		tmp := make([]byte, 256)
		n, err := c.t.Read(tmp)
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		// Zero-byte read: the transport timed out. Yield briefly so a
		// transport without its own timeout cannot spin hot.
		time.Sleep(time.Millisecond)
	}
}

func (c *Client) writeLine(line string) error {
	if _, err := c.t.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write %s: %w", strings.Fields(line)[0], err)
	}
	return nil
}

// softReset sends the interrupt-then-reboot byte sequence that returns
// a MicroPython-style target to its command loop.
func (c *Client) softReset() {
	if _, err := c.t.Write([]byte{0x03, 0x03}); err != nil {
		return
	}
	time.Sleep(100 * time.Millisecond)
	if _, err := c.t.Write([]byte{0x04}); err != nil {
		return
	}
	time.Sleep(1 * time.Second)
}

// drain discards anything already buffered from the device.
func (c *Client) drain() {
	c.buf = nil
	tmp := make([]byte, 1024)
	for {
		n, err := c.t.Read(tmp)
		if n == 0 || err != nil {
			return
		}
	}
}
