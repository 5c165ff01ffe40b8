// config.go - configuration file parsing for the idle daemon
package config

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/saltnpepper97/stasis/internal/timer"
)

// reservedActionNames maps a config action name to its typed kind;
// anything else is Custom.
var reservedActionNames = map[string]timer.ActionKind{
	"lock_screen": timer.LockScreen,
	"suspend":     timer.Suspend,
	"dpms":        timer.Dpms,
	"brightness":  timer.Brightness,
}

const (
	defaultDesktopTimeout = 300
	defaultLadderTimeout  = 0
)

// rawAction accumulates the command/timeout pair for one action key
// as lines are scanned, since command and timeout may appear on
// separate config lines.
type rawAction struct {
	command        string
	hasCommand     bool
	timeoutSeconds uint64
	hasTimeout     bool
}

// Load reads path and returns a fully-parsed Config. A missing file is
// not an error at the call site that differs reload from startup
// handling — see cmd/stasisd for that distinction; Load itself always
// reports a read failure.
func Load(path string) (timer.Config, error) {
	cfg := timer.DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	desktop := map[string]*rawAction{}
	ac := map[string]*rawAction{}
	battery := map[string]*rawAction{}
	var inhibitApps []string

	scanner := bufio.NewScanner(f)
	section := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.Trim(line, "[]")
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := normalizeKey(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if section != "" {
			key = normalizeKey(section) + "." + key
		}

		if err := applyKey(&cfg, key, value, desktop, ac, battery, &inhibitApps); err != nil {
			fmt.Fprintf(os.Stderr, "stasis: warning: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg.DesktopActions = collectActions(desktop, defaultDesktopTimeout)
	cfg.AcActions = collectActions(ac, defaultLadderTimeout)
	cfg.BatteryActions = collectActions(battery, defaultLadderTimeout)

	for _, raw := range inhibitApps {
		pat, err := timer.ParseAppPattern(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stasis: warning: invalid inhibit_apps pattern %q: %v\n", raw, err)
			continue
		}
		cfg.InhibitApps = append(cfg.InhibitApps, pat)
	}

	return cfg, nil
}

// normalizeKey accepts both hyphen and underscore spellings by
// reducing hyphens to underscores.
func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "-", "_")
}

var (
	desktopActionRe = regexp.MustCompile(`^idle\.([a-z0-9_]+)\.(command|timeout)$`)
	acActionRe      = regexp.MustCompile(`^idle\.(?:on_ac|ac)\.([a-z0-9_]+)\.(command|timeout)$`)
	batteryActionRe = regexp.MustCompile(`^idle\.(?:on_battery|battery)\.([a-z0-9_]+)\.(command|timeout)$`)
)

func applyKey(cfg *timer.Config, key, value string,
	desktop, ac, battery map[string]*rawAction, inhibitApps *[]string) error {

	switch key {
	case "idle.resume_command":
		cfg.ResumeCommand = value
		return nil
	case "idle.pre_suspend_command":
		cfg.PreSuspendCommand = value
		return nil
	case "idle.monitor_media":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("idle.monitor_media: %w", err)
		}
		cfg.MonitorMedia = b
		return nil
	case "idle.respect_idle_inhibitors":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("idle.respect_idle_inhibitors: %w", err)
		}
		cfg.RespectIdleInhibitors = b
		return nil
	case "idle.debounce_seconds":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("idle.debounce_seconds: %w", err)
		}
		cfg.DebounceSeconds = uint8(n)
		return nil
	case "idle.inhibit_apps":
		for _, entry := range strings.Split(value, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				*inhibitApps = append(*inhibitApps, entry)
			}
		}
		return nil
	}

	if m := desktopActionRe.FindStringSubmatch(key); m != nil {
		setRawField(desktop, m[1], m[2], value)
		return nil
	}
	if m := acActionRe.FindStringSubmatch(key); m != nil {
		setRawField(ac, m[1], m[2], value)
		return nil
	}
	if m := batteryActionRe.FindStringSubmatch(key); m != nil {
		setRawField(battery, m[1], m[2], value)
		return nil
	}

	return fmt.Errorf("unrecognized config key %q", key)
}

func setRawField(m map[string]*rawAction, name, field, value string) {
	ra, ok := m[name]
	if !ok {
		ra = &rawAction{}
		m[name] = ra
	}
	switch field {
	case "command":
		ra.command = value
		ra.hasCommand = true
	case "timeout":
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			ra.timeoutSeconds = n
			ra.hasTimeout = true
		}
	}
}

// collectActions turns the accumulated raw per-name fields into
// Action values, applying defaultTimeout when a name's timeout was
// never set (desktop actions default to 300s; ac/battery actions
// default to 0, meaning instant).
func collectActions(m map[string]*rawAction, defaultTimeout uint64) []timer.Action {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	// deterministic order: lexical, since config files don't specify
	// an ordering and map iteration is not stable.
	sort.Strings(names)

	actions := make([]timer.Action, 0, len(names))
	for _, name := range names {
		ra := m[name]
		timeout := defaultTimeout
		if ra.hasTimeout {
			timeout = ra.timeoutSeconds
		}
		kind, ok := reservedActionNames[name]
		if !ok {
			kind = timer.Custom
		}
		actions = append(actions, timer.Action{
			Name:           name,
			TimeoutSeconds: timeout,
			Command:        ra.command,
			Kind:           kind,
		})
	}
	return actions
}

// DiscoverPath implements the $HOME/.config/<prog>/<prog>.<ext> then
// /etc/<prog>/<prog>.<ext> discovery order; the first existing path
// wins.
func DiscoverPath(prog, ext string) (string, error) {
	if home, err := os.UserHomeDir(); err == nil {
		candidate := fmt.Sprintf("%s/.config/%s/%s.%s", home, prog, prog, ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	candidate := fmt.Sprintf("/etc/%s/%s.%s", prog, prog, ext)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", fmt.Errorf("no config file found for %s", prog)
}
