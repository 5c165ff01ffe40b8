package controlsock

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/saltnpepper97/stasis/internal/actionexec"
	"github.com/saltnpepper97/stasis/internal/timer"
)

func newTestServer(t *testing.T) (*Server, *timer.Timer, string) {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "stasis.sock")
	logPath := filepath.Join(dir, "actions.log")
	exec := actionexec.New(logPath)
	tm := timer.New(timer.DefaultConfig(), false, true, exec)

	reload := func() error { return nil }
	srv, err := Bind(sockPath, tm, reload, func() {})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	go srv.Serve()
	t.Cleanup(srv.Close)
	return srv, tm, sockPath
}

func sendCommand(t *testing.T, sockPath, cmd string) string {
	t.Helper()
	conn, err := net.DialTimeout("unix", sockPath, time.Second)
	if err != nil {
		t.Fatalf("dialing control socket: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		t.Fatalf("writing command: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	reply, _ := bufio.NewReader(conn).ReadString('\n')
	return strings.TrimSpace(reply)
}

func TestPauseAndResumeRoundTrip(t *testing.T) {
	_, tm, sockPath := newTestServer(t)

	if reply := sendCommand(t, sockPath, "pause"); reply != "ok" {
		t.Fatalf("pause: expected ok reply, got %q", reply)
	}
	if !tm.IsPaused() {
		t.Fatalf("expected timer paused after pause command")
	}

	if reply := sendCommand(t, sockPath, "resume"); reply != "ok" {
		t.Fatalf("resume: expected ok reply, got %q", reply)
	}
	if tm.IsPaused() {
		t.Fatalf("expected timer unpaused after resume command")
	}
}

func TestToggleInhibitJSONReply(t *testing.T) {
	_, _, sockPath := newTestServer(t)

	reply := sendCommand(t, sockPath, "toggle_inhibit --json")
	var decoded toggleReply
	if err := json.Unmarshal([]byte(reply), &decoded); err != nil {
		t.Fatalf("decoding toggle_inhibit JSON reply %q: %v", reply, err)
	}
	if !decoded.Inhibiting {
		t.Fatalf("expected first toggle_inhibit to report inhibiting=true, got %+v", decoded)
	}
	if decoded.Text == "" || decoded.Tooltip == "" {
		t.Fatalf("expected non-empty text/tooltip in toggle_inhibit JSON reply, got %+v", decoded)
	}
}

func TestInfoJSONReply(t *testing.T) {
	_, _, sockPath := newTestServer(t)

	reply := sendCommand(t, sockPath, "info --json")
	var decoded infoReply
	if err := json.Unmarshal([]byte(reply), &decoded); err != nil {
		t.Fatalf("decoding info JSON reply %q: %v", reply, err)
	}
	if decoded.Text == "" || decoded.Tooltip == "" {
		t.Fatalf("expected non-empty text/tooltip in info JSON reply, got %+v", decoded)
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	_, _, sockPath := newTestServer(t)

	reply := sendCommand(t, sockPath, "bogus")
	if !strings.HasPrefix(reply, "error:") {
		t.Fatalf("expected an error reply for an unknown command, got %q", reply)
	}
}

func TestBindRefusesWhenAnotherInstanceIsLive(t *testing.T) {
	_, tm, sockPath := newTestServer(t)

	if _, err := Bind(sockPath, tm, func() error { return nil }, func() {}); err == nil {
		t.Fatalf("expected Bind to refuse a socket path already served by a live instance")
	}
}
