// Package screen drives display power and brightness. It prefers a real
// panel power-off and falls back to backlight-zero when the OS call is
// unavailable, reporting which strategy ran so degraded mode is
// observable.
package screen

import (
	"sync"
	"time"

	"github.com/teslashibe/go-kiosk/internal/log"
)

// Strategy identifies how the display was turned off.
type Strategy int

const (
	// StrategyPanelPower cut panel power via the OS display-power call.
	StrategyPanelPower Strategy = iota
	// StrategyBacklightZero set the backlight to 0 because the panel
	// power call failed. Degraded mode.
	StrategyBacklightZero
)

// String returns the log name of the strategy.
func (s Strategy) String() string {
	if s == StrategyBacklightZero {
		return "backlight-zero"
	}
	return "panel-power"
}

// Platform abstracts the OS-level calls. Implementations must be fast;
// the bridge's dispatch path runs through these.
type Platform interface {
	// PanelOff powers the panel down without touching brightness.
	PanelOff() error
	// PanelOn powers the panel back up.
	PanelOn() error
	// SetBacklight sets brightness as a 0-100 percentage.
	SetBacklight(percent int) error
	// Backlight reads brightness as a 0-100 percentage.
	Backlight() (int, error)
	// KeepAlive reasserts "system and display activity required" so
	// idle/lock policies do not fire while the panel is dark.
	KeepAlive() error
}

// keepAliveInterval is how often the activity flag is reasserted while
// the display is logically off.
const keepAliveInterval = 30 * time.Second

// fallbackBrightness is returned when the backlight cannot be read.
const fallbackBrightness = 50

// Controller implements the display power driver.
type Controller struct {
	platform Platform
	logger   interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
		Debug(msg string, args ...any)
	}

	mu        sync.Mutex
	off       bool
	cleaned   bool
	keepAlive *time.Timer
	interval  time.Duration
}

// New creates a controller over the given platform.
func New(platform Platform) *Controller {
	return &Controller{
		platform: platform,
		logger:   log.Component("screen"),
		interval: keepAliveInterval,
	}
}

// TurnOff powers the display down. The panel power call is attempted
// first; on failure the backlight is zeroed instead and the degraded
// strategy is reported. The display is logically off either way.
func (c *Controller) TurnOff() (Strategy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	strategy := StrategyPanelPower
	if err := c.platform.PanelOff(); err != nil {
		c.logger.Warn("panel power-off failed, falling back to backlight zero (degraded)",
			"error", err)
		strategy = StrategyBacklightZero
		if err := c.platform.SetBacklight(0); err != nil {
			c.off = true
			return strategy, err
		}
	}

	c.off = true
	if strategy == StrategyPanelPower {
		// Cutting panel power can trigger OS idle/lock policies;
		// keep reasserting activity while logically off.
		c.startKeepAliveLocked()
	}
	c.logger.Info("screen turned off", "strategy", strategy.String())
	return strategy, nil
}

// TurnOn powers the display back up and stops the keep-alive
// immediately. Brightness restoration is the state machine's job.
func (c *Controller) TurnOn() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopKeepAliveLocked()

	if err := c.platform.PanelOn(); err != nil {
		c.logger.Warn("panel power-on failed", "error", err)
	}
	c.off = false
	c.logger.Info("screen turned on")
	return nil
}

// SetBrightness applies a clamped 0-100 brightness level.
func (c *Controller) SetBrightness(level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	if err := c.platform.SetBacklight(level); err != nil {
		c.logger.Warn("set backlight failed", "level", level, "error", err)
		return err
	}
	c.logger.Debug("brightness set", "level", level)
	return nil
}

// Brightness reads the current level, returning a safe default when the
// backlight cannot be read.
func (c *Controller) Brightness() int {
	level, err := c.platform.Backlight()
	if err != nil {
		c.logger.Warn("read backlight failed, using default", "error", err)
		return fallbackBrightness
	}
	return level
}

// IsOff reports whether the display is logically off.
func (c *Controller) IsOff() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.off
}

// Cleanup stops the keep-alive permanently. Safe to call more than
// once; the keep-alive never fires after Cleanup returns.
func (c *Controller) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopKeepAliveLocked()
	c.cleaned = true
}

// startKeepAliveLocked asserts the activity flag now and schedules the
// periodic refresh. Caller holds c.mu.
func (c *Controller) startKeepAliveLocked() {
	c.stopKeepAliveLocked()
	if err := c.platform.KeepAlive(); err != nil {
		c.logger.Warn("keep-alive assert failed", "error", err)
	}
	c.keepAlive = time.AfterFunc(c.interval, c.refreshKeepAlive)
}

// refreshKeepAlive reasserts the flag and reschedules. The timer is
// canceled and recreated on every tick so timers never overlap.
func (c *Controller) refreshKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cleaned || !c.off || c.keepAlive == nil {
		return
	}
	if err := c.platform.KeepAlive(); err != nil {
		c.logger.Warn("keep-alive refresh failed", "error", err)
	}
	c.keepAlive = time.AfterFunc(c.interval, c.refreshKeepAlive)
}

// stopKeepAliveLocked cancels the refresh timer. Idempotent.
func (c *Controller) stopKeepAliveLocked() {
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
}
