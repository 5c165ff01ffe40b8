// brightness.go - backlight capture/restore for the Brightness action
package brightness

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const backlightRoot = "/sys/class/backlight"

// State is the captured raw backlight value to be restored on
// episode exit.
type State struct {
	DeviceID string
	Value    uint32
}

// Capture reads the first backlight device under /sys/class/backlight
// and returns its current raw brightness value. A missing backlight
// enumeration is not an error: it reports (nil, nil) so the Brightness
// action proceeds with nothing to restore.
func Capture() (*State, error) {
	entries, err := os.ReadDir(backlightRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", backlightRoot, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	device := entries[0].Name()
	raw, err := os.ReadFile(filepath.Join(backlightRoot, device, "brightness"))
	if err != nil {
		return nil, fmt.Errorf("reading brightness for %s: %w", device, err)
	}

	value, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("parsing brightness for %s: %w", device, err)
	}

	return &State{DeviceID: device, Value: uint32(value)}, nil
}

// Restore writes the captured value back to its device. A write
// failure (commonly a missing udev rule granting the user write
// access) is logged, not retried, and not surfaced as an error to the
// caller.
func Restore(s *State) {
	if s == nil {
		return
	}
	path := filepath.Join(backlightRoot, s.DeviceID, "brightness")
	data := []byte(strconv.FormatUint(uint64(s.Value), 10))
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("stasis: failed to restore brightness at %s: %v (check udev rule granting write access)", path, err)
	}
}
