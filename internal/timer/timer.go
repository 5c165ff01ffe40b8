// timer.go - the Idle State Engine: the single authoritative state
// machine fusing all signal sources into one idle episode.
package timer

import (
	"strings"
	"sync"
	"time"

	"github.com/saltnpepper97/stasis/internal/actionexec"
	"github.com/saltnpepper97/stasis/internal/brightness"
)

// Timer is the Idle State Engine. All mutating operations are critical
// sections on mu; the mutex is never held across a shell spawn, child
// wait, or IPC round-trip — those happen after state is updated and
// the lock released.
type Timer struct {
	mu sync.Mutex

	cfg      Config
	isLaptop bool
	onAC     bool

	lastActivity time.Time
	activeLadder []Action
	fired        []bool
	activeKinds  map[ActionKind]bool

	activityDebounceUntil time.Time
	idleDebounceUntil     time.Time

	brightnessBackup *brightness.State
	suspendOccurred  bool

	manuallyPaused bool
	autoPaused     bool

	compositorManaged bool
	inhibitorCount    int

	exec *actionexec.Executor
}

// New builds a Timer for the given initial configuration, power
// classification, and Action Executor.
func New(cfg Config, isLaptop, onAC bool, exec *actionexec.Executor) *Timer {
	ladder := cfg.LadderFor(isLaptop, onAC)
	return &Timer{
		cfg:          cfg,
		isLaptop:     isLaptop,
		onAC:         onAC,
		lastActivity: time.Now(),
		activeLadder: ladder,
		fired:        make([]bool, len(ladder)),
		activeKinds:  make(map[ActionKind]bool),
		exec:         exec,
	}
}

// Reset marks user activity: it clears the fired ladder, restores any
// pending brightness backup, runs the resume command if a suspend
// happened during the episode, and re-arms the activity debounce.
func (t *Timer) Reset() {
	t.mu.Lock()
	now := time.Now()

	wasNonEmpty := t.anyFiredLocked()

	t.lastActivity = now
	t.clearFiredLocked()
	t.idleDebounceUntil = time.Time{}

	var backupToRestore *brightness.State
	var resumeCmd string
	if wasNonEmpty {
		if t.brightnessBackup != nil {
			backupToRestore = t.brightnessBackup
		}
		if t.suspendOccurred {
			resumeCmd = t.cfg.ResumeCommand
		}
	}
	t.brightnessBackup = nil
	t.suspendOccurred = false
	t.activityDebounceUntil = now.Add(time.Duration(t.cfg.DebounceSeconds) * time.Second)
	t.mu.Unlock()

	if backupToRestore != nil {
		brightness.Restore(backupToRestore)
	}
	if resumeCmd != "" {
		t.exec.Run([]actionexec.Request{{Kind: actionexec.RunCommand, Cmd: resumeCmd}})
	}
}

// CheckIdle is the periodic tick: it walks the active ladder for
// newly-due actions, arms the idle debounce when one first becomes due,
// and fires everything due once that debounce elapses. The debounce is
// cleared after firing, so a later rung arms it afresh. With
// DebounceSeconds == 0 nothing is armed and due actions fire at once.
func (t *Timer) CheckIdle() {
	t.mu.Lock()

	if t.isPausedLocked() {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	if !t.activityDebounceUntil.IsZero() && now.Before(t.activityDebounceUntil) {
		t.mu.Unlock()
		return
	}

	preSuspendCmd := t.cfg.PreSuspendCommand
	var pending []Action
	debouncePassedThisTick := false

	for i := range t.activeLadder {
		a := t.activeLadder[i]
		if a.TimeoutSeconds == 0 || t.fired[i] || t.activeKinds[a.Kind] {
			continue
		}
		if now.Sub(t.lastActivity) < time.Duration(a.TimeoutSeconds)*time.Second {
			continue
		}

		if !debouncePassedThisTick {
			if t.idleDebounceUntil.IsZero() && t.cfg.DebounceSeconds > 0 {
				t.idleDebounceUntil = now.Add(time.Duration(t.cfg.DebounceSeconds) * time.Second)
				t.mu.Unlock()
				return
			}
			if now.Before(t.idleDebounceUntil) {
				t.mu.Unlock()
				return
			}
			t.idleDebounceUntil = time.Time{}
			debouncePassedThisTick = true
		}

		t.markFiredLocked(i, &pending)
	}

	t.mu.Unlock()
	t.dispatchPending(pending, preSuspendCmd)
}

// TriggerInstantActions fires every action with TimeoutSeconds == 0
// that has not yet fired this ladder installation.
func (t *Timer) TriggerInstantActions() {
	t.mu.Lock()
	preSuspendCmd := t.cfg.PreSuspendCommand
	var pending []Action
	for i := range t.activeLadder {
		a := t.activeLadder[i]
		if !a.IsInstant() || t.fired[i] || t.activeKinds[a.Kind] {
			continue
		}
		t.markFiredLocked(i, &pending)
	}
	t.mu.Unlock()
	t.dispatchPending(pending, preSuspendCmd)
}

// TriggerIdle forces every not-yet-fired action in the ladder to
// dispatch now, in ladder order, bypassing both debounce windows.
// Kind uniqueness (invariant I2) is still honored.
func (t *Timer) TriggerIdle() {
	t.mu.Lock()
	preSuspendCmd := t.cfg.PreSuspendCommand
	var pending []Action
	for i := range t.activeLadder {
		a := t.activeLadder[i]
		if t.fired[i] || t.activeKinds[a.Kind] {
			continue
		}
		t.markFiredLocked(i, &pending)
	}
	t.mu.Unlock()
	t.dispatchPending(pending, preSuspendCmd)
}

// TriggerPreSuspend runs the pre-suspend command synchronously with a
// 5s timeout. If !manual it marks suspend_occurred so the next Reset
// runs the resume command. If rewind, it additionally performs the
// same episode-clearing work as Reset (without arming the activity
// debounce) and re-fires instant actions.
func (t *Timer) TriggerPreSuspend(rewind, manual bool) {
	t.mu.Lock()
	cmd := t.cfg.PreSuspendCommand

	if !manual {
		t.suspendOccurred = true
	}

	var backupToRestore *brightness.State
	if rewind {
		t.clearFiredLocked()
		t.idleDebounceUntil = time.Time{}
		backupToRestore = t.brightnessBackup
		t.brightnessBackup = nil
	}
	t.mu.Unlock()

	if backupToRestore != nil {
		brightness.Restore(backupToRestore)
	}

	t.exec.Run([]actionexec.Request{{Kind: actionexec.PreSuspend, Cmd: cmd}})

	if rewind {
		t.TriggerInstantActions()
	}
}

// UpdatePowerSource rebuilds the active ladder when the power source
// changes, restoring any pending brightness backup immediately and
// firing the new ladder's instant actions.
func (t *Timer) UpdatePowerSource(onAC bool) {
	t.mu.Lock()
	if t.onAC == onAC {
		t.mu.Unlock()
		return
	}
	t.onAC = onAC

	backupToRestore := t.brightnessBackup
	t.brightnessBackup = nil

	t.activeLadder = t.cfg.LadderFor(t.isLaptop, onAC)
	t.fired = make([]bool, len(t.activeLadder))
	t.activeKinds = make(map[ActionKind]bool)
	t.idleDebounceUntil = time.Time{}
	t.mu.Unlock()

	if backupToRestore != nil {
		brightness.Restore(backupToRestore)
	}
	t.TriggerInstantActions()
}

// UpdateFromConfig entirely replaces the configuration: rebuilds the
// ladder, resets fired flags, clears (without restoring) any pending
// brightness backup, and fires instant actions.
func (t *Timer) UpdateFromConfig(cfg Config) {
	t.mu.Lock()
	t.cfg = cfg
	t.activeLadder = cfg.LadderFor(t.isLaptop, t.onAC)
	t.fired = make([]bool, len(t.activeLadder))
	t.activeKinds = make(map[ActionKind]bool)
	t.idleDebounceUntil = time.Time{}
	t.brightnessBackup = nil
	t.mu.Unlock()

	t.TriggerInstantActions()
}

// Pause sets one of the two orthogonal pause flags. A manual pause
// clears auto-pause; an auto-pause never touches the manual flag.
func (t *Timer) Pause(manual bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if manual {
		t.manuallyPaused = true
		t.autoPaused = false
	} else {
		t.autoPaused = true
	}
}

// Resume clears one of the two pause flags. An automatic resume is a
// no-op while a manual pause is in effect. A manual resume additionally
// re-runs the post-episode housekeeping (brightness restore, resume
// command) if the ladder had fired during the paused episode.
func (t *Timer) Resume(manual bool) {
	t.mu.Lock()

	if !manual {
		if t.manuallyPaused {
			t.mu.Unlock()
			return
		}
		t.autoPaused = false
		t.mu.Unlock()
		return
	}

	t.manuallyPaused = false

	wasNonEmpty := t.anyFiredLocked()
	var backupToRestore *brightness.State
	var resumeCmd string
	if wasNonEmpty {
		backupToRestore = t.brightnessBackup
		if t.suspendOccurred {
			resumeCmd = t.cfg.ResumeCommand
		}
		t.clearFiredLocked()
		t.brightnessBackup = nil
		t.suspendOccurred = false
		t.idleDebounceUntil = time.Time{}
	}
	t.mu.Unlock()

	if backupToRestore != nil {
		brightness.Restore(backupToRestore)
	}
	if resumeCmd != "" {
		t.exec.Run([]actionexec.Request{{Kind: actionexec.RunCommand, Cmd: resumeCmd}})
	}
}

// IsPaused reports whether either pause flag is set.
func (t *Timer) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isPausedLocked()
}

// ShortestTimeout returns the minimum positive timeout in the active
// ladder, used to arm the compositor's idle notification. Zero means
// no timed action exists in the ladder.
func (t *Timer) ShortestTimeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var shortest time.Duration
	for _, a := range t.activeLadder {
		if a.TimeoutSeconds == 0 {
			continue
		}
		d := time.Duration(a.TimeoutSeconds) * time.Second
		if shortest == 0 || d < shortest {
			shortest = d
		}
	}
	return shortest
}

// MarkAllIdle sets every fired flag true without dispatching, so that
// a compositor-reported idle episode is not duplicate-fired by the
// next wall-clock CheckIdle pass.
func (t *Timer) MarkAllIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.fired {
		t.fired[i] = true
		t.activeKinds[t.activeLadder[i].Kind] = true
	}
}

// ElapsedIdle reports zero while inside the activity debounce window,
// otherwise the time since the last reset.
func (t *Timer) ElapsedIdle() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.activityDebounceUntil.IsZero() && now.Before(t.activityDebounceUntil) {
		return 0
	}
	return now.Sub(t.lastActivity)
}

// Shutdown aborts outstanding action tasks.
func (t *Timer) Shutdown() {
	t.exec.Shutdown()
}

// ToggleManualPause inverts the manual-pause flag and returns its new
// value, for the control endpoint's toggle_inhibit command.
func (t *Timer) ToggleManualPause() bool {
	t.mu.Lock()
	wasPaused := t.manuallyPaused
	t.mu.Unlock()

	if wasPaused {
		t.Resume(true)
	} else {
		t.Pause(true)
	}
	return !wasPaused
}

// Info is a point-in-time snapshot for the control endpoint's info
// command.
type Info struct {
	ElapsedIdle     time.Duration
	ManuallyPaused  bool
	AutoPaused      bool
	InhibitorCount  int
	LadderLength    int
	OnAC            bool
	IsLaptop        bool
	SuspendOccurred bool
	ActiveActions   int
}

// Snapshot reports the Timer's current state for display.
func (t *Timer) Snapshot() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		ElapsedIdle:     time.Since(t.lastActivity),
		ManuallyPaused:  t.manuallyPaused,
		AutoPaused:      t.autoPaused,
		InhibitorCount:  t.inhibitorCount,
		LadderLength:    len(t.activeLadder),
		OnAC:            t.onAC,
		IsLaptop:        t.isLaptop,
		SuspendOccurred: t.suspendOccurred,
		ActiveActions:   t.exec.ActiveCount(),
	}
}

// SetCompositorManaged records that the Wayland idle notifier is
// bound, so CheckIdle no longer owns episode transitions.
func (t *Timer) SetCompositorManaged(managed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.compositorManaged = managed
}

// IsCompositorManaged reports whether the compositor idle-notify path
// owns episode transitions.
func (t *Timer) IsCompositorManaged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.compositorManaged
}

// IncInhibitor and DecInhibitor track the live zwp_idle_inhibitor_v1
// object count, floored at zero.
func (t *Timer) IncInhibitor() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inhibitorCount++
}

func (t *Timer) DecInhibitor() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inhibitorCount > 0 {
		t.inhibitorCount--
	}
}

func (t *Timer) InhibitorCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inhibitorCount
}

func (t *Timer) RespectIdleInhibitors() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.RespectIdleInhibitors
}

// ResumeCommand returns the currently configured resume command, used
// by the Suspend Listener for the kernel-initiated wake path that
// never passes through Resume's own bookkeeping.
func (t *Timer) ResumeCommand() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.ResumeCommand
}

// --- internal helpers; all require mu held ---

func (t *Timer) isPausedLocked() bool {
	return t.manuallyPaused || t.autoPaused
}

func (t *Timer) anyFiredLocked() bool {
	for _, f := range t.fired {
		if f {
			return true
		}
	}
	return false
}

func (t *Timer) clearFiredLocked() {
	for i := range t.fired {
		t.fired[i] = false
	}
	for k := range t.activeKinds {
		delete(t.activeKinds, k)
	}
}

// markFiredLocked marks index i fired, captures brightness on the
// first Brightness action of the episode, marks suspend_occurred for
// a Suspend action's own dispatch, and queues the action for
// post-unlock dispatch.
func (t *Timer) markFiredLocked(i int, pending *[]Action) {
	a := t.activeLadder[i]
	t.fired[i] = true
	t.activeKinds[a.Kind] = true

	if a.Kind == Brightness && t.brightnessBackup == nil {
		if s, err := brightness.Capture(); err == nil {
			t.brightnessBackup = s
		}
	}
	if a.Kind == Suspend {
		t.suspendOccurred = true
	}

	*pending = append(*pending, a)
}

// dispatchPending builds and runs the request sequence for each
// pending action outside the Timer's mutex.
func (t *Timer) dispatchPending(pending []Action, preSuspendCmd string) {
	for _, a := range pending {
		t.exec.Run(buildRequests(a, preSuspendCmd))
	}
}

// buildRequests computes the Action Executor request sequence for one
// action's dispatch: a Suspend action always runs the pre-suspend
// command first, and a LockScreen action is skipped if a lock screen
// process is already running.
func buildRequests(a Action, preSuspendCmd string) []actionexec.Request {
	switch a.Kind {
	case Suspend:
		reqs := []actionexec.Request{{Kind: actionexec.PreSuspend, Cmd: preSuspendCmd}}
		if a.Command != "" {
			reqs = append(reqs, actionexec.Request{Kind: actionexec.RunCommand, Cmd: a.Command})
		}
		return reqs
	case LockScreen:
		if actionexec.IsProcessRunning(firstToken(a.Command)) {
			return []actionexec.Request{{Kind: actionexec.Skip}}
		}
		if a.Command == "" {
			return nil
		}
		return []actionexec.Request{{Kind: actionexec.RunCommand, Cmd: a.Command}}
	default:
		if a.Command == "" {
			return nil
		}
		return []actionexec.Request{{Kind: actionexec.RunCommand, Cmd: a.Command}}
	}
}

func firstToken(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
