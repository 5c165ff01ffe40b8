// Package media polls session-bus MPRIS players and pauses the idle
// ladder while any of them report Playing.
package media

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/saltnpepper97/stasis/internal/timer"
)

const pollInterval = 2 * time.Second

const mprisPrefix = "org.mpris.MediaPlayer2."

// Source polls every session-bus name under org.mpris.MediaPlayer2.*
// for its PlaybackStatus property.
type Source struct {
	tm      *timer.Timer
	conn    *dbus.Conn
	playing bool
	verbose bool

	// checkPlaying defaults to anyPlaying; overridable in tests so the
	// edge-detection logic in poll can be exercised without a real bus.
	checkPlaying func() (bool, error)
}

// Connect opens the session bus.
func Connect(tm *timer.Timer, verbose bool) (*Source, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	s := &Source{tm: tm, conn: conn, verbose: verbose}
	s.checkPlaying = s.anyPlaying
	return s, nil
}

// Run polls every 2s until ctx is canceled.
func (s *Source) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		s.poll()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Source) poll() {
	playing, err := s.checkPlaying()
	if err != nil {
		if s.verbose {
			log.Printf("stasis: media: %v", err)
		}
		playing = false
	}

	if playing && !s.playing {
		s.tm.Pause(false)
	} else if !playing && s.playing {
		s.tm.Resume(false)
	}
	s.playing = playing
}

// anyPlaying enumerates the session-bus names, finds every MPRIS
// player, and reports whether any reports PlaybackStatus=="Playing".
// An enumeration failure is returned to the caller, which treats it as
// "no players playing" and logs it only in verbose mode; a player whose
// PlaybackStatus query fails is skipped without logging.
func (s *Source) anyPlaying() (bool, error) {
	var names []string
	obj := s.conn.BusObject()
	if err := obj.Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return false, err
	}

	for _, name := range names {
		if !strings.HasPrefix(name, mprisPrefix) {
			continue
		}
		player := s.conn.Object(name, "/org/mpris/MediaPlayer2")
		variant, err := player.GetProperty("org.mpris.MediaPlayer2.Player.PlaybackStatus")
		if err != nil {
			continue
		}
		status, ok := variant.Value().(string)
		if ok && status == "Playing" {
			return true, nil
		}
	}
	return false, nil
}

// Close releases the session bus connection.
func (s *Source) Close() {
	s.conn.Close()
}
