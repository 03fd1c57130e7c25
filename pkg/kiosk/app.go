// Package kiosk wires the controller together: presence sensor, power
// machine, display driver, remote channel, input watcher, browser
// surface and dashboard. All command sources converge on the bridge;
// nothing outside the bridge ever calls the machine.
package kiosk

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-kiosk/internal/config"
	"github.com/teslashibe/go-kiosk/internal/log"
	"github.com/teslashibe/go-kiosk/pkg/bridge"
	"github.com/teslashibe/go-kiosk/pkg/detect"
	"github.com/teslashibe/go-kiosk/pkg/input"
	"github.com/teslashibe/go-kiosk/pkg/power"
	"github.com/teslashibe/go-kiosk/pkg/presence"
	"github.com/teslashibe/go-kiosk/pkg/remote"
	"github.com/teslashibe/go-kiosk/pkg/screen"
	"github.com/teslashibe/go-kiosk/pkg/surface"
	"github.com/teslashibe/go-kiosk/pkg/web"
)

// App is the kiosk controller orchestrator.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	screenCtrl *screen.Controller
	machine    *power.Machine
	bridge     *bridge.Bridge
	sensor     *presence.Sensor
	surface    *surface.Chromium
	watcher    *input.Watcher
	remote     *remote.Client
	webServer  *web.Server
}

// New validates the configuration and creates the app. Components are
// constructed in Init.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		cfg:    cfg,
		logger: log.Component("kiosk"),
	}, nil
}

// driverAdapter narrows the screen controller to the power machine's
// driver interface and reports which blanking strategy was used.
type driverAdapter struct {
	ctrl       *screen.Controller
	onStrategy func(screen.Strategy)
}

func (d *driverAdapter) TurnOn() error { return d.ctrl.TurnOn() }
func (d *driverAdapter) TurnOff() error {
	strategy, err := d.ctrl.TurnOff()
	if err == nil && d.onStrategy != nil {
		d.onStrategy(strategy)
	}
	return err
}
func (d *driverAdapter) SetBrightness(level int) error { return d.ctrl.SetBrightness(level) }
func (d *driverAdapter) Brightness() int               { return d.ctrl.Brightness() }

// Init constructs and connects all components. Detector backends that
// fail to load are disabled individually; presence detection as a whole
// is disabled only when no backend survives.
func (a *App) Init() error {
	// Display driver and power machine.
	platform := screen.NewLinuxPlatform(a.cfg.Screen.BacklightDevice)
	a.screenCtrl = screen.New(platform)

	driver := &driverAdapter{ctrl: a.screenCtrl, onStrategy: a.onStrategy}
	a.machine = power.NewMachine(power.Config{
		Timeout:          a.cfg.Presence.Timeout(),
		TurnOffOnAbsence: a.cfg.Screen.TurnOffWhenNoPresence,
		DimOnAbsence:     a.cfg.Screen.DimWhenNoPresence,
		DimLevel:         a.cfg.Screen.DimLevel,
		WakeOnInput:      a.cfg.Screen.WakeOnInput,
	}, driver)
	a.machine.OnStateChange = a.onStateChange
	a.machine.OnBrightnessChange = a.onBrightnessChange
	a.machine.OnWake = a.onWake

	a.bridge = bridge.New(a.machine)

	// Browser surface.
	urls := make(map[string]string, len(a.cfg.Apps))
	for name, app := range a.cfg.Apps {
		urls[name] = app.URL
	}
	a.surface = surface.NewChromium(urls)
	a.surface.OnSwitch = a.onAppSwitch

	// Presence sensor.
	if a.cfg.Presence.Enabled {
		if err := a.initSensor(); err != nil {
			return err
		}
	}

	// Input watcher.
	if a.cfg.Input.Enabled {
		a.watcher = input.New(a.cfg.Input.Device, func(at time.Time) {
			a.bridge.Post(power.UserInput{At: at, Source: "local"})
		})
	}

	// Remote command/state channel.
	if a.cfg.MQTT.Enabled {
		a.remote = remote.New(a.cfg.MQTT)
		a.registerCommands()
	}

	// Local dashboard.
	if a.cfg.Dashboard.Enabled {
		a.webServer = web.NewServer(a.cfg.Dashboard.Port)
		a.webServer.OnScreenCommand = func(on bool) error {
			if on {
				a.bridge.Post(power.ScreenOn{})
			} else {
				a.bridge.Post(power.ScreenOff{})
			}
			return nil
		}
		a.webServer.OnBrightness = func(level int) error {
			if level < 0 || level > 100 {
				return fmt.Errorf("level must be in [0,100], got %d", level)
			}
			a.bridge.Post(power.SetBrightness{Level: level})
			return nil
		}
		a.webServer.OnSwitchApp = a.surface.Show
		if a.sensor != nil {
			a.sensor.SetFrameTap(a.webServer.SendCameraFrame)
		}
	}

	return nil
}

// initSensor builds the detector backends and the sampling loop.
func (a *App) initSensor() error {
	mode, err := presence.ParseMode(a.cfg.Presence.DetectionMode)
	if err != nil {
		return err
	}

	dcfg := detect.DefaultConfig()
	dcfg.FaceModelPath = a.cfg.Presence.FaceModelPath
	dcfg.PoseModelPath = a.cfg.Presence.PoseModelPath
	dcfg.ConfidenceThresh = a.cfg.Presence.DetectionConfidence

	var face, pose detect.Backend
	if mode == presence.ModeFace || mode == presence.ModeBoth {
		b, err := detect.NewFaceBackend(dcfg)
		if err != nil {
			a.logger.Warn("face detector unavailable", "error", err)
		} else {
			face = b
		}
	}
	if mode == presence.ModePose || mode == presence.ModeBoth {
		b, err := detect.NewPoseBackend(dcfg)
		if err != nil {
			a.logger.Warn("pose detector unavailable", "error", err)
		} else {
			pose = b
		}
	}
	if face == nil && pose == nil {
		return fmt.Errorf("no detector backend could be loaded")
	}

	a.sensor = presence.New(
		presence.Opener(a.cfg.Presence.CameraIndex),
		face, pose, mode,
		a.cfg.Presence.Interval(),
	)
	a.sensor.Subscribe(a.onPresence)
	return nil
}

// Run starts all components and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.bridge.Run(ctx)

	if a.sensor != nil {
		a.sensor.Start()
	}
	if a.watcher != nil {
		go func() {
			// A missing input device only disables wake-on-input.
			if err := a.watcher.Run(ctx); err != nil {
				a.logger.Warn("input watcher stopped", "error", err)
			}
		}()
	}
	if a.webServer != nil {
		a.webServer.StartAsync()
	}
	if a.remote != nil {
		if err := a.remote.Connect(); err != nil {
			// Reconnects are automatic once the broker comes back.
			a.logger.Error("mqtt connect failed", "error", err)
		}
	}
	if a.cfg.DefaultApp != "" {
		if err := a.surface.Show(a.cfg.DefaultApp); err != nil {
			a.logger.Warn("could not show default app", "error", err)
		}
	}

	a.publishSnapshot()
	a.logger.Info("kiosk controller running")

	<-ctx.Done()
	return nil
}

// Shutdown stops everything and leaves the display usable.
func (a *App) Shutdown() {
	if a.sensor != nil {
		a.sensor.Stop()
	}
	if a.remote != nil {
		a.remote.Disconnect()
	}
	if a.webServer != nil {
		if err := a.webServer.Shutdown(); err != nil {
			a.logger.Warn("dashboard shutdown", "error", err)
		}
	}
	if a.screenCtrl != nil {
		// Never leave a wall panel dark after exit.
		if err := a.screenCtrl.TurnOn(); err != nil {
			a.logger.Warn("restore panel on shutdown", "error", err)
		}
		a.screenCtrl.Cleanup()
	}
	a.logger.Info("kiosk controller stopped")
}

// registerCommands binds the remote command topics. Handlers run on the
// MQTT client goroutine and only post events or call the surface; they
// never touch the machine.
func (a *App) registerCommands() {
	a.remote.RegisterCommand("screen", func(payload string) {
		on, ok := parseScreenPayload(payload)
		if !ok {
			a.logger.Warn("dropping malformed screen command", "payload", payload)
			return
		}
		if on {
			a.bridge.Post(power.ScreenOn{})
		} else {
			a.bridge.Post(power.ScreenOff{})
		}
	})

	a.remote.RegisterCommand("brightness", func(payload string) {
		level, ok := parseBrightnessPayload(payload)
		if !ok {
			a.logger.Warn("dropping malformed brightness command", "payload", payload)
			return
		}
		a.bridge.Post(power.SetBrightness{Level: level})
	})

	a.remote.RegisterCommand("dim", func(string) {
		a.bridge.Post(power.Dim{})
	})

	a.remote.RegisterCommand("switch_app", func(payload string) {
		var err error
		if payload == "" || payload == "toggle" {
			err = a.surface.Toggle()
		} else {
			err = a.surface.Show(payload)
		}
		if err != nil {
			a.logger.Warn("switch_app failed", "payload", payload, "error", err)
		}
	})

	a.remote.RegisterCommand("presence_detection", func(payload string) {
		on, ok := parseScreenPayload(payload)
		if !ok || a.sensor == nil {
			a.logger.Warn("dropping presence_detection command", "payload", payload)
			return
		}
		if on {
			a.sensor.Start()
		} else {
			a.sensor.Stop()
		}
		a.publishDetectionRunning()
	})
}

// parseScreenPayload accepts the usual on/off spellings.
func parseScreenPayload(payload string) (on, ok bool) {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	default:
		return false, false
	}
}

// parseBrightnessPayload parses an integer brightness. Only a
// non-integer payload is a command fault; out-of-range values are
// passed through and clamped by the machine.
func parseBrightnessPayload(payload string) (level int, ok bool) {
	n, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, false
	}
	return n, true
}

// onPresence runs on the sampling goroutine, once per presence edge.
func (a *App) onPresence(present bool) {
	if present {
		a.bridge.Post(power.PresenceConfirmed{At: time.Now()})
	}

	if a.remote != nil {
		if present {
			a.remote.PublishState("presence", "detected")
		} else {
			a.remote.PublishState("presence", "not_detected")
		}
	}
	if a.webServer != nil {
		state := a.sensor.State()
		a.webServer.UpdateState(func(s *web.KioskState) {
			s.Present = present
			if !state.LastPresentAt.IsZero() {
				s.LastPresentAt = state.LastPresentAt.Format(time.RFC3339)
			}
		})
	}
}

// onStateChange runs on the bridge consumer goroutine.
func (a *App) onStateChange(st power.State) {
	if a.remote != nil {
		a.remote.PublishState("screen", st.String())
	}
	if a.webServer != nil {
		snap := a.machine.Snapshot()
		a.webServer.UpdateState(func(s *web.KioskState) {
			s.PowerState = st.String()
			s.SavedBrightness = snap.SavedBrightness
		})
	}
}

func (a *App) onBrightnessChange(level int) {
	if a.remote != nil {
		a.remote.PublishState("brightness", strconv.Itoa(level))
	}
	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.KioskState) {
			s.Brightness = level
		})
	}
}

func (a *App) onWake(reason string) {
	if a.remote != nil {
		a.remote.PublishState("wake_reason", reason)
	}
	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.KioskState) {
			s.WakeReason = reason
		})
	}
}

func (a *App) onStrategy(strategy screen.Strategy) {
	if strategy == screen.StrategyBacklightZero {
		a.logger.Warn("panel power control unavailable, blanked via backlight")
	}
	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.KioskState) {
			s.Strategy = strategy.String()
		})
	}
}

func (a *App) onAppSwitch(app string) {
	if a.remote != nil {
		a.remote.PublishState("current_app", app)
	}
	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.KioskState) {
			s.CurrentApp = app
		})
	}
}

func (a *App) publishDetectionRunning() {
	running := a.sensor != nil && a.sensor.IsRunning()
	if a.remote != nil {
		if running {
			a.remote.PublishState("presence_detection", "on")
		} else {
			a.remote.PublishState("presence_detection", "off")
		}
	}
	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.KioskState) {
			s.DetectionRunning = running
		})
	}
}

// publishSnapshot pushes the initial state so dashboards and the broker
// are not blank until the first transition.
func (a *App) publishSnapshot() {
	snap := a.machine.Snapshot()
	if a.remote != nil {
		a.remote.PublishState("screen", snap.State.String())
		a.remote.PublishState("brightness", strconv.Itoa(a.screenCtrl.Brightness()))
	}
	if a.webServer != nil {
		a.webServer.UpdateState(func(s *web.KioskState) {
			s.PowerState = snap.State.String()
			s.Brightness = a.screenCtrl.Brightness()
			s.SavedBrightness = snap.SavedBrightness
			s.DetectionRunning = a.sensor != nil && a.sensor.IsRunning()
			s.CurrentApp = a.surface.Current()
		})
	}
	a.publishDetectionRunning()
}
