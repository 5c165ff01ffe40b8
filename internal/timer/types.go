// types.go - action and configuration data model for the idle engine
package timer

import (
	"regexp"
	"strings"
)

// ActionKind identifies what policy an Action implements.
type ActionKind string

const (
	LockScreen ActionKind = "lock_screen"
	Suspend    ActionKind = "suspend"
	Dpms       ActionKind = "dpms"
	Brightness ActionKind = "brightness"
	Custom     ActionKind = "custom"
)

// ParseActionKind maps a config name to its ActionKind. Unrecognized
// names are Custom.
func ParseActionKind(name string) ActionKind {
	switch strings.ToLower(name) {
	case "lock_screen", "lock-screen":
		return LockScreen
	case "suspend":
		return Suspend
	case "dpms":
		return Dpms
	case "brightness":
		return Brightness
	default:
		return Custom
	}
}

// Action is one rung of an idle ladder.
type Action struct {
	Name           string
	TimeoutSeconds uint64
	Command        string
	Kind           ActionKind
}

// IsInstant reports whether the action fires once per ladder
// installation rather than on elapsed idle.
func (a Action) IsInstant() bool {
	return a.TimeoutSeconds == 0
}

// AppPattern matches a process name, executable path, or compositor
// app-id against a configured pattern.
type AppPattern interface {
	Match(candidate string) bool
	String() string
}

// LiteralPattern is a case-insensitive exact/normalized match.
type LiteralPattern struct {
	Value string
}

func (p LiteralPattern) Match(candidate string) bool {
	return normalizeAppID(candidate) == normalizeAppID(p.Value)
}

func (p LiteralPattern) String() string { return p.Value }

// RegexPattern matches via a compiled case-insensitive regular
// expression.
type RegexPattern struct {
	Value string
	re    *regexp.Regexp
}

// NewRegexPattern compiles pattern case-insensitively.
func NewRegexPattern(pattern string) (*RegexPattern, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	return &RegexPattern{Value: pattern, re: re}, nil
}

func (p *RegexPattern) Match(candidate string) bool {
	return p.re.MatchString(candidate)
}

func (p *RegexPattern) String() string { return p.Value }

// regexMetaChars are the characters that mark a configured
// inhibit-apps entry as a regex rather than a literal.
const regexMetaChars = `.*+?()[]{}|\^$`

// ParseAppPattern classifies a raw config string as Literal or Regex:
// a string containing any regex metacharacter is treated as a regex,
// everything else as a literal match.
func ParseAppPattern(raw string) (AppPattern, error) {
	if strings.ContainsAny(raw, regexMetaChars) {
		return NewRegexPattern(raw)
	}
	return LiteralPattern{Value: raw}, nil
}

// normalizeAppID implements the App Inhibitor's identifier
// normalization: case-fold, strip a trailing ".exe", and reduce a
// reverse-DNS identifier to its last dot-separated segment.
func normalizeAppID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, ".exe")
	if idx := strings.LastIndex(s, "."); idx >= 0 && idx < len(s)-1 {
		s = s[idx+1:]
	}
	return s
}

// Config is the full engine configuration, entirely replaced on load
// or reload (no partial merge).
type Config struct {
	// DesktopActions, AcActions, and BatteryActions hold the raw
	// per-power-mode ladders as parsed from the config file. Laptop
	// vs desktop classification and whether any ac/battery actions
	// are configured at all decide which partition becomes the
	// active ladder.
	DesktopActions []Action
	AcActions      []Action
	BatteryActions []Action

	ResumeCommand         string
	PreSuspendCommand      string
	MonitorMedia          bool
	RespectIdleInhibitors bool
	InhibitApps           []AppPattern
	DebounceSeconds       uint8
}

// DefaultConfig returns the configuration used when no config file is
// loaded: media monitoring and idle-inhibitor respect both on, a 3s
// activity/idle debounce, and no configured actions.
func DefaultConfig() Config {
	return Config{
		MonitorMedia:          true,
		RespectIdleInhibitors: true,
		DebounceSeconds:       3,
	}
}

// LadderFor selects the active ladder for the given power-source
// classification and the resolved Open Question (a): when either
// ac.* or battery.* actions are configured, that partition replaces
// the desktop ladder entirely rather than merging with it.
func (c Config) LadderFor(isLaptop, onAC bool) []Action {
	if isLaptop && (len(c.AcActions) > 0 || len(c.BatteryActions) > 0) {
		if onAC {
			return c.AcActions
		}
		return c.BatteryActions
	}
	return c.DesktopActions
}
