package power

import "time"

// Event is a single input to the state machine. Events are immutable
// values; producers never touch machine state directly.
type Event interface {
	event()
}

// PresenceConfirmed reports that the fused presence signal went true.
type PresenceConfirmed struct {
	At time.Time
}

// TimeoutPoll is the periodic absence check. It fires on a fixed poll
// cadence rather than at exact expiry, so worst-case timeout detection
// lags by one poll interval.
type TimeoutPoll struct {
	At time.Time
}

// UserInput reports a local input burst (mouse, touch, keyboard).
type UserInput struct {
	At     time.Time
	Source string
}

// ScreenOn is the explicit remote "screen on" command.
type ScreenOn struct{}

// ScreenOff is the explicit remote "screen off" command.
type ScreenOff struct{}

// SetBrightness is the explicit remote brightness command. The level is
// clamped to [0,100] before being applied.
type SetBrightness struct {
	Level int
}

// Dim is the explicit remote dim command. It behaves like the timeout
// dim branch regardless of the absence flags.
type Dim struct{}

func (PresenceConfirmed) event() {}
func (TimeoutPoll) event()       {}
func (UserInput) event()         {}
func (ScreenOn) event()          {}
func (ScreenOff) event()         {}
func (SetBrightness) event()     {}
func (Dim) event()               {}
