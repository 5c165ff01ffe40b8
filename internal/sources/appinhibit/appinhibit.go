// Package appinhibit pauses the idle ladder while a configured
// application is running, discovered either through the compositor's
// own window list or, failing that, a /proc process scan.
package appinhibit

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/saltnpepper97/stasis/internal/compositoripc"
	"github.com/saltnpepper97/stasis/internal/timer"
)

const pollInterval = 4 * time.Second

// Source matches running windows/processes against the configured
// inhibit-apps patterns and pauses/resumes the Timer on transitions.
type Source struct {
	tm      *timer.Timer
	cfg     timer.Config
	windows compositoripc.WindowSource // nil if no compositor IPC is available

	active  map[string]bool
	verbose bool
}

// New returns an appinhibit Source. Compositor IPC detection happens
// lazily on first poll so that a compositor which starts after the
// daemon (or fails transiently) is retried rather than disabling the
// source for the daemon's lifetime.
func New(tm *timer.Timer, cfg timer.Config, verbose bool) *Source {
	return &Source{tm: tm, cfg: cfg, active: map[string]bool{}, verbose: verbose}
}

// UpdateConfig installs a newly reloaded configuration's inhibit-apps
// patterns.
func (s *Source) UpdateConfig(cfg timer.Config) {
	s.cfg = cfg
}

// Run polls every pollInterval until ctx is canceled.
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
	if len(s.cfg.InhibitApps) == 0 {
		return
	}

	candidates, err := s.candidates()
	if err != nil {
		if s.verbose {
			log.Printf("stasis: appinhibit: %v", err)
		}
		return
	}

	matched := map[string]bool{}
	for _, c := range candidates {
		for _, pat := range s.cfg.InhibitApps {
			if pat.Match(c) {
				matched[c] = true
				break
			}
		}
	}

	for name := range matched {
		if !s.active[name] {
			log.Printf("stasis: inhibiting idle: %s is running", name)
		}
	}

	wasEmpty := len(s.active) == 0
	nowEmpty := len(matched) == 0
	s.active = matched

	if wasEmpty && !nowEmpty {
		s.tm.Pause(false)
	} else if !wasEmpty && nowEmpty {
		s.tm.Resume(false)
	}
}

// candidates returns the set of identifiers to test against
// inhibit-apps patterns: compositor App IDs when IPC is available,
// else a process-name/executable-path scan.
func (s *Source) candidates() ([]string, error) {
	if s.windows == nil {
		ws, err := compositoripc.Detect()
		if err == nil {
			s.windows = ws
			if s.verbose {
				log.Printf("stasis: appinhibit using %s window IPC", ws.Name())
			}
		}
	}

	if s.windows != nil {
		ids, err := s.windows.ListAppIDs()
		if err == nil {
			return ids, nil
		}
		if s.verbose {
			log.Printf("stasis: appinhibit: compositor IPC failed, falling back to process scan: %v", err)
		}
		s.windows = nil
	}

	return s.scanProcesses()
}

// scanProcesses walks /proc directly rather than shelling out to
// ps/pgrep for the whole table. Unlike a refresh-in-place process
// table, a fresh directory walk never accumulates stale entries, so
// there is no periodic full-rebuild to perform here.
func (s *Source) scanProcesses() ([]string, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("reading /proc: %w", err)
	}

	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}

		if comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid)); err == nil {
			candidates = append(candidates, strings.TrimSpace(string(comm)))
		}
		if exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
			candidates = append(candidates, filepath.Base(exe))
		}
	}
	return candidates, nil
}
