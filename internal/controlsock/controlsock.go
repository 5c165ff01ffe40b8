// Package controlsock implements the daemon's local control endpoint:
// a Unix domain socket accepting one command token per connection.
package controlsock

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/saltnpepper97/stasis/internal/timer"
)

// Reloader reloads the on-disk config and installs it into the Timer,
// implemented by cmd/stasisd's bootstrap closure so this package does
// not need to know the config file path or parsing details.
type Reloader func() error

// Server owns the bound listener and dispatches accepted connections.
type Server struct {
	path      string
	listener  net.Listener
	tm        *timer.Timer
	reload    Reloader
	startedAt time.Time
	onStop    func()
}

// Bind enforces single-instance ownership of path (connect-then-bind:
// a successful connection means another instance is live) and binds a
// fresh listener, unlinking any stale socket file left by a crashed
// prior instance.
func Bind(path string, tm *timer.Timer, reload Reloader, onStop func()) (*Server, error) {
	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return nil, fmt.Errorf("another stasis instance is already running (socket %s is live)", path)
	}
	_ = os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("binding control socket %s: %w", path, err)
	}

	return &Server{
		path:      path,
		listener:  listener,
		tm:        tm,
		reload:    reload,
		startedAt: time.Now(),
		onStop:    onStop,
	}, nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

// Close removes the socket file and stops accepting connections.
func (s *Server) Close() {
	s.listener.Close()
	os.Remove(s.path)
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "reload":
		if err := s.reload(); err != nil {
			log.Printf("stasis: config reload failed: %v", err)
			fmt.Fprintf(conn, "error: %v\n", err)
			return
		}
		log.Println("stasis: config reloaded")
		fmt.Fprintln(conn, "ok")

	case "pause":
		s.tm.Pause(true)
		log.Println("stasis: idle ladder paused")
		fmt.Fprintln(conn, "ok")

	case "resume":
		s.tm.Resume(true)
		log.Println("stasis: idle ladder resumed")
		fmt.Fprintln(conn, "ok")

	case "trigger_idle":
		s.tm.TriggerIdle()
		fmt.Fprintln(conn, "ok")

	case "trigger_presuspend":
		s.tm.TriggerPreSuspend(false, true)
		fmt.Fprintln(conn, "ok")

	case "toggle_inhibit":
		now := s.tm.ToggleManualPause()
		writeToggleReply(conn, now, hasJSONFlag(args))

	case "info":
		writeInfo(conn, s.tm, s.startedAt, hasJSONFlag(args))

	case "stop":
		fmt.Fprintln(conn, "ok")
		log.Println("stasis: received stop command, shutting down")
		if s.onStop != nil {
			go s.onStop()
		}

	default:
		fmt.Fprintf(conn, "error: unknown command %q\n", cmd)
	}
}

func hasJSONFlag(args []string) bool {
	for _, a := range args {
		if a == "--json" {
			return true
		}
	}
	return false
}

// toggleReply is the JSON shape for the toggle_inhibit command. text
// and tooltip are meant for direct use in a status-bar widget
// (e.g. waybar/i3status-rs custom modules).
type toggleReply struct {
	Inhibiting bool   `json:"inhibiting"`
	Text       string `json:"text"`
	Tooltip    string `json:"tooltip"`
}

func writeToggleReply(conn net.Conn, inhibiting, asJSON bool) {
	if asJSON {
		reply := toggleReply{Inhibiting: inhibiting}
		if inhibiting {
			reply.Text = "inhibiting"
			reply.Tooltip = "stasis: idle ladder manually inhibited"
		} else {
			reply.Text = "idle"
			reply.Tooltip = "stasis: idle ladder active"
		}
		json.NewEncoder(conn).Encode(reply)
		return
	}
	if inhibiting {
		fmt.Fprintln(conn, "inhibiting")
	} else {
		fmt.Fprintln(conn, "not inhibiting")
	}
}

// infoReply is the JSON shape for the info command. text and tooltip
// are meant for direct use in a status-bar widget (e.g. waybar/
// i3status-rs custom modules): text is a one-line summary, tooltip a
// multi-line detail string.
type infoReply struct {
	ElapsedIdleSeconds float64 `json:"elapsed_idle_seconds"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
	ManuallyPaused     bool    `json:"manually_paused"`
	AutoPaused         bool    `json:"auto_paused"`
	InhibitorCount     int     `json:"inhibitor_count"`
	LadderLength       int     `json:"ladder_length"`
	OnAC               bool    `json:"on_ac"`
	IsLaptop           bool    `json:"is_laptop"`
	ActiveActions      int     `json:"active_actions"`
	Text               string  `json:"text"`
	Tooltip            string  `json:"tooltip"`
}

func writeInfo(conn net.Conn, tm *timer.Timer, startedAt time.Time, asJSON bool) {
	snap := tm.Snapshot()
	reply := infoReply{
		ElapsedIdleSeconds: snap.ElapsedIdle.Seconds(),
		UptimeSeconds:      time.Since(startedAt).Seconds(),
		ManuallyPaused:     snap.ManuallyPaused,
		AutoPaused:         snap.AutoPaused,
		InhibitorCount:     snap.InhibitorCount,
		LadderLength:       snap.LadderLength,
		OnAC:               snap.OnAC,
		IsLaptop:           snap.IsLaptop,
		ActiveActions:      snap.ActiveActions,
	}
	reply.Text = statusText(snap)
	reply.Tooltip = statusTooltip(snap, startedAt)

	if asJSON {
		json.NewEncoder(conn).Encode(reply)
		return
	}

	fmt.Fprintf(conn, "idle time:   %s\n", snap.ElapsedIdle.Round(time.Second))
	fmt.Fprintf(conn, "uptime:      %s\n", time.Since(startedAt).Round(time.Second))
	fmt.Fprintf(conn, "paused:      manual=%v auto=%v\n", snap.ManuallyPaused, snap.AutoPaused)
	fmt.Fprintf(conn, "inhibitors:  %d\n", snap.InhibitorCount)
	fmt.Fprintf(conn, "ladder size: %d\n", snap.LadderLength)
	fmt.Fprintf(conn, "active actions: %d\n", snap.ActiveActions)
	if snap.IsLaptop {
		fmt.Fprintf(conn, "power:       %s\n", acLabel(snap.OnAC))
	} else {
		fmt.Fprintln(conn, "power:       desktop (always AC)")
	}
}

func acLabel(onAC bool) string {
	if onAC {
		return "AC"
	}
	return "battery"
}

// statusText is a one-line status-bar summary.
func statusText(snap timer.Info) string {
	if snap.ManuallyPaused {
		return "paused"
	}
	if snap.AutoPaused {
		return "inhibited"
	}
	return fmt.Sprintf("idle %s", snap.ElapsedIdle.Round(time.Second))
}

// statusTooltip is a multi-line status-bar tooltip detail string.
func statusTooltip(snap timer.Info, startedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "idle time: %s\n", snap.ElapsedIdle.Round(time.Second))
	fmt.Fprintf(&b, "uptime: %s\n", time.Since(startedAt).Round(time.Second))
	fmt.Fprintf(&b, "paused: manual=%v auto=%v\n", snap.ManuallyPaused, snap.AutoPaused)
	fmt.Fprintf(&b, "inhibitors: %d\n", snap.InhibitorCount)
	fmt.Fprintf(&b, "ladder size: %d\n", snap.LadderLength)
	fmt.Fprintf(&b, "active actions: %d", snap.ActiveActions)
	if snap.IsLaptop {
		fmt.Fprintf(&b, "\npower: %s", acLabel(snap.OnAC))
	}
	return b.String()
}
