// Package suspend listens for systemd-logind's PrepareForSleep signal
// and drives the Timer's pre-suspend hook and post-resume command.
package suspend

import (
	"context"
	"log"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/saltnpepper97/stasis/internal/actionexec"
	"github.com/saltnpepper97/stasis/internal/timer"
)

// Source listens on the system bus for logind's sleep notifications.
type Source struct {
	tm   *timer.Timer
	exec *actionexec.Executor
	conn *dbus.Conn
}

// Connect opens the system bus and subscribes to PrepareForSleep.
func Connect(tm *timer.Timer, exec *actionexec.Executor) (*Source, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		conn.Close()
		return nil, err
	}
	return &Source{tm: tm, exec: exec, conn: conn}, nil
}

// Run blocks dispatching PrepareForSleep signals until ctx is
// canceled.
func (s *Source) Run(ctx context.Context) error {
	ch := make(chan *dbus.Signal, 16)
	s.conn.Signal(ch)
	defer s.conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-ch:
			if !strings.HasSuffix(sig.Name, "PrepareForSleep") || len(sig.Body) < 1 {
				continue
			}
			goingToSleep, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if goingToSleep {
				log.Println("stasis: system suspending, running pre-suspend hook")
				s.tm.TriggerPreSuspend(false, true)
			} else {
				log.Println("stasis: system resumed from suspend")
				s.onResume()
			}
			// Note: logind already owns this sleep/wake cycle, so
			// suspend_occurred is intentionally left unset here — it
			// is only ever set by a Stasis-initiated Suspend action.
		}
	}
}

// onResume runs the configured resume command directly as a fresh
// spawn. The kernel-initiated wake does not pass through Timer.Reset,
// so this bypasses the Timer's own resume-command bookkeeping
// entirely (that path fires on the next Reset or manual Resume after a
// Stasis-initiated suspend).
func (s *Source) onResume() {
	cmd := s.tm.ResumeCommand()
	if cmd == "" {
		return
	}
	s.exec.Run([]actionexec.Request{{Kind: actionexec.RunCommand, Cmd: cmd}})
}

// Close releases the system bus connection.
func (s *Source) Close() {
	s.conn.Close()
}
