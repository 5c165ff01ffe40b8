// Package compositor binds the Wayland idle-notify and idle-inhibit
// globals and forwards idle/resume transitions and inhibitor-count
// changes to the Timer.
package compositor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	ext_idle_notify "github.com/rajveermalviya/go-wayland/wayland/staging/ext-idle-notify-v1"
	idle_inhibit "github.com/rajveermalviya/go-wayland/wayland/unstable/idle-inhibit-unstable-v1"

	"github.com/saltnpepper97/stasis/internal/timer"
)

// Source owns the Wayland connection used for idle notification and
// inhibitor-count tracking.
type Source struct {
	tm *timer.Timer

	display  *client.Display
	registry *client.Registry
	notifier *ext_idle_notify.IdleNotifier
	inhibMgr *idle_inhibit.IdleInhibitManager
	seat     *client.Seat

	mu           sync.Mutex
	notification *ext_idle_notify.IdleNotification
	boundTimeout time.Duration
}

// Connect opens the Wayland display and binds the globals this source
// needs. A compositor that does not advertise ext_idle_notifier_v1
// returns an error — callers should run without this source in that
// case, falling back to wall-clock dispatch only.
func Connect(tm *timer.Timer) (*Source, error) {
	display, err := client.Connect("")
	if err != nil {
		return nil, fmt.Errorf("connecting to wayland display: %w", err)
	}

	registry, err := display.GetRegistry()
	if err != nil {
		display.Context().Close()
		return nil, fmt.Errorf("getting wayland registry: %w", err)
	}

	s := &Source{tm: tm, display: display, registry: registry}

	var notifierName, notifierVersion uint32
	var inhibMgrName, inhibMgrVersion uint32
	var seatName, seatVersion uint32

	registry.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		switch e.Interface {
		case "ext_idle_notifier_v1":
			notifierName, notifierVersion = e.Name, e.Version
		case "zwp_idle_inhibit_manager_v1":
			inhibMgrName, inhibMgrVersion = e.Name, e.Version
		case "wl_seat":
			if seatName == 0 {
				seatName, seatVersion = e.Name, e.Version
			}
		}
	})

	if err := s.roundtrip(); err != nil {
		display.Context().Close()
		return nil, err
	}
	if err := s.roundtrip(); err != nil {
		display.Context().Close()
		return nil, err
	}

	if notifierName == 0 {
		display.Context().Close()
		return nil, fmt.Errorf("compositor does not advertise ext_idle_notifier_v1")
	}
	if seatName == 0 {
		display.Context().Close()
		return nil, fmt.Errorf("compositor advertises no wl_seat")
	}

	s.notifier = ext_idle_notify.NewIdleNotifier(display.Context())
	if err := registry.Bind(notifierName, "ext_idle_notifier_v1", notifierVersion, s.notifier); err != nil {
		display.Context().Close()
		return nil, fmt.Errorf("binding idle notifier: %w", err)
	}

	s.seat = client.NewSeat(display.Context())
	if err := registry.Bind(seatName, "wl_seat", seatVersion, s.seat); err != nil {
		display.Context().Close()
		return nil, fmt.Errorf("binding seat: %w", err)
	}

	if inhibMgrName != 0 {
		s.inhibMgr = idle_inhibit.NewIdleInhibitManager(display.Context())
		if err := registry.Bind(inhibMgrName, "zwp_idle_inhibit_manager_v1", inhibMgrVersion, s.inhibMgr); err != nil {
			log.Printf("stasis: binding zwp_idle_inhibit_manager_v1: %v (inhibitor counting disabled)", err)
			s.inhibMgr = nil
		} else {
			s.inhibMgr.SetCreateInhibitorHandler(func(e idle_inhibit.IdleInhibitManagerCreateInhibitorEvent) {
				s.tm.IncInhibitor()
			})
			s.inhibMgr.SetDestroyInhibitorHandler(func(e idle_inhibit.IdleInhibitManagerDestroyInhibitorEvent) {
				s.tm.DecInhibitor()
			})
		}
	}

	if err := s.registerNotification(tm.ShortestTimeout()); err != nil {
		display.Context().Close()
		return nil, err
	}

	tm.SetCompositorManaged(true)
	return s, nil
}

func (s *Source) roundtrip() error {
	callback, err := s.display.Sync()
	if err != nil {
		return fmt.Errorf("wayland sync: %w", err)
	}
	defer callback.Destroy()

	done := false
	callback.SetDoneHandler(func(_ client.CallbackDoneEvent) { done = true })
	for !done {
		if err := s.display.Context().Dispatch(); err != nil {
			return fmt.Errorf("wayland dispatch: %w", err)
		}
	}
	return nil
}

// registerNotification (re)registers the idle notification with
// timeoutMs equal to d. The protocol has no in-place timeout update,
// so any previous notification is destroyed first.
func (s *Source) registerNotification(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notification != nil {
		s.notification.Destroy()
		s.notification = nil
	}

	timeoutMs := uint32(d.Milliseconds())
	notification, err := s.notifier.GetIdleNotification(timeoutMs, s.seat)
	if err != nil {
		return fmt.Errorf("getting idle notification: %w", err)
	}

	notification.SetIdledHandler(func(e ext_idle_notify.IdleNotificationIdledEvent) {
		if s.tm.RespectIdleInhibitors() && s.tm.InhibitorCount() > 0 {
			return
		}
		s.tm.MarkAllIdle()
		s.tm.TriggerIdle()
	})
	notification.SetResumedHandler(func(e ext_idle_notify.IdleNotificationResumedEvent) {
		s.tm.Reset()
	})

	s.notification = notification
	s.boundTimeout = d
	return nil
}

// Run dispatches pending Wayland events until ctx is canceled,
// re-registering the idle notification whenever the Timer's shortest
// timeout changes (config reload, AC/battery transition). The
// dispatch loop runs in its own goroutine since Dispatch blocks
// waiting for the next batch of events; the 50ms ticker here only
// drives the re-registration check, matching the cooperative
// dispatch-then-wait shape of the event loop this is grounded on.
func (s *Source) Run(ctx context.Context) error {
	dispatchErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := s.display.Context().Dispatch(); err != nil {
				dispatchErr <- fmt.Errorf("wayland dispatch: %w", err)
				return
			}
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-dispatchErr:
			return err
		case <-ticker.C:
			s.mu.Lock()
			bound := s.boundTimeout
			s.mu.Unlock()
			if want := s.tm.ShortestTimeout(); want != bound {
				if err := s.registerNotification(want); err != nil {
					log.Printf("stasis: re-registering idle notification: %v", err)
				}
			}
		}
	}
}

// Close tears down the Wayland connection.
func (s *Source) Close() {
	s.mu.Lock()
	if s.notification != nil {
		s.notification.Destroy()
		s.notification = nil
	}
	s.mu.Unlock()
	s.display.Context().Close()
}
