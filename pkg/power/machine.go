// Package power decides display power and brightness transitions from
// presence events, input events, timeout polls, and explicit commands.
package power

import (
	"time"

	"github.com/teslashibe/go-kiosk/internal/log"
)

// State is the logical display power state.
type State int

const (
	StateOn State = iota
	StateDimmed
	StateOff
)

// String returns the diagnostic name of the state.
func (s State) String() string {
	switch s {
	case StateDimmed:
		return "dimmed"
	case StateOff:
		return "off"
	default:
		return "on"
	}
}

// InputDebounce drops UserInput events arriving within this window of
// the previous accepted one, rejecting event storms from one physical
// motion.
const InputDebounce = 500 * time.Millisecond

// DefaultRestoreBrightness is applied when waking with no usable saved
// value. Zero never counts as a saved brightness.
const DefaultRestoreBrightness = 80

// Driver abstracts the display power hardware. Calls are treated as
// fast and non-blocking; failures are the driver's to absorb.
type Driver interface {
	TurnOn() error
	TurnOff() error
	SetBrightness(level int) error
	Brightness() int
}

// Config holds the machine's behavior switches.
type Config struct {
	Timeout          time.Duration
	TurnOffOnAbsence bool
	DimOnAbsence     bool
	DimLevel         int
	WakeOnInput      bool
}

// Snapshot is a read-only copy of the machine state for dashboards.
type Snapshot struct {
	State           State     `json:"state"`
	SavedBrightness int       `json:"saved_brightness"`
	LastPresence    time.Time `json:"last_presence"`
}

// Machine is the power state machine. Handle must only ever run on one
// goroutine (the bridge's consumer); the machine holds no locks.
type Machine struct {
	cfg    Config
	driver Driver
	logger interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
		Debug(msg string, args ...any)
	}

	state           State
	savedBrightness int // 0 means "no usable saved value"
	lastPresence    time.Time
	lastInput       time.Time

	// Notification hooks, invoked on the consumer goroutine after a
	// transition. Nil hooks are skipped.
	OnStateChange      func(State)
	OnBrightnessChange func(level int)
	OnWake             func(reason string)
}

// NewMachine creates a machine starting in StateOn with no saved
// brightness, matching a fresh boot.
func NewMachine(cfg Config, driver Driver) *Machine {
	return &Machine{
		cfg:          cfg,
		driver:       driver,
		logger:       log.Component("power"),
		state:        StateOn,
		lastPresence: time.Now(),
	}
}

// Snapshot returns a copy of the current machine state. Only safe from
// the consumer goroutine or before the bridge starts.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:           m.state,
		SavedBrightness: m.savedBrightness,
		LastPresence:    m.lastPresence,
	}
}

// Handle applies one event. It is the machine's single decision path.
func (m *Machine) Handle(ev Event) {
	switch e := ev.(type) {
	case PresenceConfirmed:
		m.lastPresence = e.At
		switch {
		case m.state == StateOff:
			m.wake("presence")
		case m.state == StateDimmed && m.cfg.DimOnAbsence:
			m.restore()
		}

	case TimeoutPoll:
		if m.state != StateOn {
			return
		}
		if e.At.Sub(m.lastPresence) <= m.cfg.Timeout {
			return
		}
		switch {
		case m.cfg.TurnOffOnAbsence:
			m.logger.Info("no presence for timeout period, turning screen off",
				"timeout", m.cfg.Timeout)
			m.turnOff()
		case m.cfg.DimOnAbsence:
			m.dim()
		}

	case UserInput:
		if !m.lastInput.IsZero() && e.At.Sub(m.lastInput) < InputDebounce {
			return // event storm from one physical motion
		}
		if m.state != StateOff || !m.cfg.WakeOnInput {
			return
		}
		// Only accepted wakes arm the debounce window; input while the
		// screen is visible must not suppress a wake right after a
		// blank.
		m.lastInput = e.At
		// Input counts as presence so the screen does not re-time-out
		// immediately after waking.
		m.lastPresence = e.At
		m.wake("input:" + e.Source)

	case ScreenOn:
		m.lastPresence = time.Now()
		m.wake("command")

	case ScreenOff:
		m.turnOff()

	case SetBrightness:
		level := clamp(e.Level, 0, 100)
		if err := m.driver.SetBrightness(level); err != nil {
			m.logger.Warn("set brightness failed", "level", level, "error", err)
			return
		}
		m.notifyBrightness(level)

	case Dim:
		m.dim()
	}
}

// turnOff captures the current brightness (unless a non-zero value is
// already saved) and powers the display down.
func (m *Machine) turnOff() {
	if m.state == StateOff {
		return
	}
	m.saveBrightness()
	if err := m.driver.TurnOff(); err != nil {
		m.logger.Warn("turn off failed", "error", err)
	}
	m.setState(StateOff)
}

// wake powers the display up and restores brightness.
func (m *Machine) wake(reason string) {
	if err := m.driver.TurnOn(); err != nil {
		m.logger.Warn("turn on failed", "error", err)
	}
	m.restore()
	if m.OnWake != nil {
		m.OnWake(reason)
	}
	m.logger.Info("display woken", "reason", reason)
}

// restore always applies a brightness value on the way back to visible:
// the saved one, or the documented default when none was ever saved.
func (m *Machine) restore() {
	level := m.savedBrightness
	if level == 0 {
		level = DefaultRestoreBrightness
	}
	if err := m.driver.SetBrightness(level); err != nil {
		m.logger.Warn("restore brightness failed", "level", level, "error", err)
	}
	m.setState(StateOn)
	m.notifyBrightness(level)
}

// dim saves brightness if needed and drops to the configured dim level.
func (m *Machine) dim() {
	m.saveBrightness()
	if err := m.driver.SetBrightness(m.cfg.DimLevel); err != nil {
		m.logger.Warn("dim failed", "level", m.cfg.DimLevel, "error", err)
	}
	m.setState(StateDimmed)
	m.notifyBrightness(m.cfg.DimLevel)
}

// saveBrightness captures the current brightness before the display
// becomes invisible. Never overwrites with 0: zero denotes "no usable
// saved value", not a meaningful prior brightness.
func (m *Machine) saveBrightness() {
	if m.savedBrightness != 0 {
		return
	}
	if cur := m.driver.Brightness(); cur > 0 {
		m.savedBrightness = cur
	}
}

func (m *Machine) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.logger.Debug("power state changed", "state", s.String())
	if m.OnStateChange != nil {
		m.OnStateChange(s)
	}
}

func (m *Machine) notifyBrightness(level int) {
	if m.OnBrightnessChange != nil {
		m.OnBrightnessChange(level)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
