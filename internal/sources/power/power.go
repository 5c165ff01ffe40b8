// Package power classifies the machine as laptop or desktop and, for
// laptops, polls the AC-online sysfs enumeration to inform the Timer
// of power-source changes.
package power

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/saltnpepper97/stasis/internal/timer"
)

const pollInterval = 5 * time.Second

const (
	chassisTypePath = "/sys/class/dmi/id/chassis_type"
	powerSupplyRoot = "/sys/class/power_supply"
)

// legacyACNames are well-known AC adapter power_supply directory
// names used as a fallback when no supply reports type "Mains".
var legacyACNames = []string{
	"AC", "ADP", "ACAD", "AC0", "ADP1", "ACPI0003",
	"ACPI0004", "ADP0", "AC1", "ACADAPTER",
}

// Source drives Timer.UpdatePowerSource for laptop machines. Desktop
// machines are assumed always on AC and are not polled.
type Source struct {
	tm       *timer.Timer
	isLaptop bool
	onAC     bool
}

// New classifies the machine via the DMI chassis type and does an
// initial power-source read.
func New(tm *timer.Timer) *Source {
	s := &Source{tm: tm, isLaptop: IsLaptop()}
	s.onAC = s.detectOnAC()
	return s
}

// IsLaptop reports whether the DMI chassis type names a
// portable/notebook/handheld form factor (values 8, 9, 10).
func IsLaptop() bool {
	data, err := os.ReadFile(chassisTypePath)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(string(data)) {
	case "8", "9", "10":
		return true
	default:
		return false
	}
}

// IsLaptop reports the classification made at construction.
func (s *Source) IsLaptop() bool { return s.isLaptop }

// OnAC reports the last-known power-source reading.
func (s *Source) OnAC() bool { return s.onAC }

// Run polls every 5s until ctx is canceled, calling
// Timer.UpdatePowerSource on every change. Desktops never poll since
// they are assumed always on AC.
func (s *Source) Run(ctx context.Context) error {
	if !s.isLaptop {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			onAC := s.detectOnAC()
			if onAC != s.onAC {
				s.onAC = onAC
				s.tm.UpdatePowerSource(onAC)
			}
		}
	}
}

// detectOnAC implements §4.6: any power_supply of type Mains with
// online==1 means AC; a battery reporting Charging/Full is a
// secondary indicator since some firmwares omit a Mains entry
// entirely; legacy well-known adapter names are the final fallback.
func (s *Source) detectOnAC() bool {
	if !s.isLaptop {
		return true
	}
	return detectOnACAt(powerSupplyRoot)
}

// detectOnACAt implements §4.6 against an arbitrary power_supply
// root, so tests can exercise it against a synthetic sysfs tree.
func detectOnACAt(root string) bool {
	entries, err := os.ReadDir(root)
	if err != nil {
		return false
	}

	batteryChargingOrFull := false
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())

		supplyType := readTrimmed(filepath.Join(path, "type"))
		switch supplyType {
		case "Mains":
			if readTrimmed(filepath.Join(path, "online")) == "1" {
				return true
			}
		case "Battery":
			switch readTrimmed(filepath.Join(path, "status")) {
			case "Charging", "Full":
				batteryChargingOrFull = true
			}
		}
	}
	if batteryChargingOrFull {
		return true
	}

	for _, entry := range entries {
		name := entry.Name()
		matched := false
		for _, known := range legacyACNames {
			if strings.HasPrefix(name, known) || strings.Contains(name, known) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if readTrimmed(filepath.Join(root, name, "online")) == "1" {
			return true
		}
	}

	return false
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
