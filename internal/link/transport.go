/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package link is the host side of the device protocol: opening the
// serial or TCP transport, exchanging commands one at a time, and
// supervising upload-and-run sequences.
package link

import (
	"fmt"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaud is the serial rate the agent firmware uses.
const DefaultBaud = 115200

// transportReadTimeout keeps individual reads short so command-level
// deadlines stay responsive.
const transportReadTimeout = 200 * time.Millisecond

// Dial opens a device transport. Targets of the form "tcp://host:port"
// dial TCP; anything else is treated as a serial port name.
func Dial(target string, baud int) (Transport, error) {
	if strings.HasPrefix(target, "tcp://") {
		conn, err := net.DialTimeout("tcp", strings.TrimPrefix(target, "tcp://"), 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", target, err)
		}
		return &tcpTransport{Conn: conn}, nil
	}

	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(target, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", target, err)
	}
	if err := port.SetReadTimeout(transportReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", target, err)
	}
	return &serialTransport{Port: port}, nil
}

// WrapConn adapts an already-open connection, mainly for in-process
// agents.
func WrapConn(conn net.Conn) Transport {
	return &tcpTransport{Conn: conn}
}

// Transport is one byte stream to the device. Reads must not block
// forever: they either time out (returning 0 bytes) or respect a
// deadline, so the client can enforce per-command waits.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

type serialTransport struct {
	serial.Port
}

type tcpTransport struct {
	net.Conn
}

// Read keeps TCP reads as short as serial ones by rolling a deadline
// forward on every call.
func (t *tcpTransport) Read(p []byte) (int, error) {
	if err := t.Conn.SetReadDeadline(time.Now().Add(transportReadTimeout)); err != nil {
		return 0, err
	}
	n, err := t.Conn.Read(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
	}
	return n, err
}
