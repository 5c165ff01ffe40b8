// Package input watches raw evdev devices for key, button, and pointer
// events and resets the Timer's idle clock whenever one arrives.
package input

import (
	"context"
	"log"
	"path/filepath"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/saltnpepper97/stasis/internal/timer"
)

// Source monitors every keyboard and pointing device under
// /dev/input and reports activity to a Timer.
type Source struct {
	tm      *timer.Timer
	verbose bool
}

// New returns an input Source bound to tm.
func New(tm *timer.Timer, verbose bool) *Source {
	return &Source{tm: tm, verbose: verbose}
}

// Run discovers input devices and blocks monitoring them until ctx is
// canceled. Devices that appear after startup (e.g. a reattached USB
// keyboard) are not picked up without a restart — hot-plug rescanning
// is not implemented.
func (s *Source) Run(ctx context.Context) error {
	devices, err := discoverDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		log.Println("stasis: no usable input devices found under /dev/input")
		return nil
	}
	if s.verbose {
		log.Printf("stasis: monitoring %d input device(s)", len(devices))
	}

	activity := make(chan struct{}, 16)
	for _, path := range devices {
		go s.monitorDevice(ctx, path, activity)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-activity:
			s.tm.Reset()
		}
	}
}

// discoverDevices returns the paths of event devices that expose key,
// relative-motion, or absolute-motion capabilities — keyboards,
// mice, touchpads, and touchscreens.
func discoverDevices() ([]string, error) {
	files, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, err
	}

	var devices []string
	for _, file := range files {
		dev, err := evdev.Open(file)
		if err != nil {
			continue
		}

		hasKeys, hasPointer := false, false
		for capType := range dev.Capabilities {
			switch capType.Type {
			case evdev.EV_KEY:
				hasKeys = true
			case evdev.EV_REL, evdev.EV_ABS:
				hasPointer = true
			}
		}
		dev.File.Close()

		if hasKeys || hasPointer {
			devices = append(devices, file)
		}
	}
	return devices, nil
}

// monitorDevice blocks reading raw events from one device, signaling
// activity on every key, button, or motion event until ctx is
// canceled or the device read fails.
func (s *Source) monitorDevice(ctx context.Context, path string, activity chan<- struct{}) {
	dev, err := evdev.Open(path)
	if err != nil {
		if s.verbose {
			log.Printf("stasis: opening input device %s: %v", path, err)
		}
		return
	}
	defer dev.File.Close()

	if s.verbose {
		log.Printf("stasis: watching %s (%s)", path, dev.Name)
	}

	events := make(chan *evdev.InputEvent, 16)
	errs := make(chan error, 1)

	go func() {
		for {
			batch, err := dev.Read()
			if err != nil {
				errs <- err
				return
			}
			for i := range batch {
				select {
				case events <- &batch[i]:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if s.verbose {
				log.Printf("stasis: %s read error: %v", path, err)
			}
			return
		case ev := <-events:
			if ev.Type == evdev.EV_KEY || ev.Type == evdev.EV_REL || ev.Type == evdev.EV_ABS {
				select {
				case activity <- struct{}{}:
				default:
				}
			}
		}
	}
}
