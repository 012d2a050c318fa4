/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package protocol

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/volund_bench/internal/device"
	"github.com/friendsincode/volund_bench/internal/models"
)

type testConn struct {
	t       *testing.T
	conn    net.Conn
	br      *bufio.Reader
	pins    *device.SimPins
	dir     string
	stopped chan struct{}
	srvErr  error
}

func startServer(t *testing.T) *testConn {
	t.Helper()
	client, server := net.Pipe()
	pins := device.NewSimPins()
	dir := t.TempDir()

	srv := NewServer(server, dir, pins, device.RealClock(), zerolog.Nop())
	tc := &testConn{t: t, conn: client, br: bufio.NewReader(client), pins: pins, dir: dir, stopped: make(chan struct{})}
	go func() {
		tc.srvErr = srv.Serve(context.Background())
		close(tc.stopped)
	}()

	t.Cleanup(func() {
		client.Close()
		server.Close()
		select {
		case <-tc.stopped:
		case <-time.After(2 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return tc
}

func (c *testConn) send(line string) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("write %q: %v", line, err)
	}
}

func (c *testConn) sendRaw(data []byte) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("write body: %v", err)
	}
}

func (c *testConn) expect(want string) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.br.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read (want %q): %v", want, err)
	}
	if got := line[:len(line)-1]; got != want {
		c.t.Fatalf("reply = %q, want %q", got, want)
	}
}

func testProfileJSON(t *testing.T, lengthMs float64) []byte {
	t.Helper()
	data, err := models.EncodeProfile(&models.Profile{
		ProfileName:       "wire test",
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

func (c *testConn) put(name string, body []byte) {
	c.t.Helper()
	c.send(fmt.Sprintf("PUT %s %d", name, len(body)))
	c.sendRaw(body)
	c.expect("OK PUT")
}

func TestServePingAndUnknown(t *testing.T) {
	c := startServer(t)

	c.send("PING")
	c.expect("PONG")

	c.send("FROB")
	c.expect("ERR Unknown command")

	// Control commands are idempotent no-ops while idle.
	c.send("STOP")
	c.expect("OK STOP")
	c.send("PAUSE")
	c.expect("OK PAUSE")
	c.send("RESUME")
	c.expect("OK RESUME")
}

func TestServeQuit(t *testing.T) {
	c := startServer(t)

	c.send("QUIT")
	c.expect("OK QUIT")

	select {
	case <-c.stopped:
		if c.srvErr != nil {
			t.Fatalf("Serve returned %v", c.srvErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after QUIT")
	}
}

func TestServePutRunLifecycle(t *testing.T) {
	c := startServer(t)

	c.put("profile.json", testProfileJSON(t, 30))

	c.send("RUN profile.json")
	c.expect("OK RUN")
	c.expect("DONE OK")

	if !c.pins.AllLow() {
		t.Fatal("pins not low after run")
	}
	hist := c.pins.History(2)
	var wentHigh bool
	for _, h := range hist {
		if h {
			wentHigh = true
		}
	}
	if !wentHigh {
		t.Fatalf("isolator pin never driven high: %v", hist)
	}
}

func TestServeRunRejectsMissingProfile(t *testing.T) {
	c := startServer(t)

	c.send("RUN nothere.json")
	c.expect("OK RUN")

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.br.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line[:4] != "ERR " {
		t.Fatalf("reply = %q, want ERR", line)
	}
}

func TestServeBusyRejectsRunAndPut(t *testing.T) {
	c := startServer(t)
	c.put("slow.json", testProfileJSON(t, 2000))

	c.send("RUN slow.json")
	c.expect("OK RUN")

	c.send("RUN slow.json")
	c.expect("ERR already running")

	c.send("PUT other.json 2")
	c.sendRaw([]byte("{}"))
	c.expect("ERR busy")

	c.send("STOP")
	c.expect("OK STOP")
	c.expect("DONE STOPPED")

	if !c.pins.AllLow() {
		t.Fatal("pins not safe after stop")
	}
}

func TestServePauseResumeDuringRun(t *testing.T) {
	c := startServer(t)
	c.put("slow.json", testProfileJSON(t, 2000))

	c.send("RUN slow.json")
	c.expect("OK RUN")

	c.send("PAUSE")
	c.expect("OK PAUSE")
	c.send("RESUME")
	c.expect("OK RESUME")

	c.send("STOP")
	c.expect("OK STOP")
	c.expect("DONE STOPPED")
}

func TestServePutRejectsBadBodyAndHeader(t *testing.T) {
	c := startServer(t)

	c.send("PUT lone")
	c.expect("ERR PUT format")

	c.send("PUT file.json nan")
	c.expect("ERR PUT nbytes")

	c.send("PUT bad.json 9")
	c.sendRaw([]byte("not json\n"))
	c.expect("ERR PUT body is not valid JSON")
}

func TestServePutStripsDirectories(t *testing.T) {
	c := startServer(t)

	c.put("../escape.json", []byte(`{}`))

	if _, err := os.Stat(filepath.Join(c.dir, "escape.json")); err != nil {
		t.Fatalf("stored file not found in server dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(c.dir), "escape.json")); err == nil {
		t.Fatal("file escaped the server dir")
	}
}
