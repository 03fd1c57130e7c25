// Package surface controls the fullscreen browser showing kiosk
// content. The controller only ever tells it which application to show;
// rendering is the browser's problem.
package surface

import (
	"fmt"
	"os/exec"
	"sort"
	"sync"

	"github.com/teslashibe/go-kiosk/internal/log"
)

// Surface is the sink for "show application X" commands.
type Surface interface {
	Show(app string) error
	Current() string
}

// Launcher starts the browser process for a URL and returns a handle
// that can be killed on switch. Swapped in tests.
type Launcher func(url string) (*exec.Cmd, error)

// Chromium runs a Chromium browser in kiosk mode, one app at a time.
type Chromium struct {
	apps   map[string]string // app name -> URL
	launch Launcher
	logger interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
	}

	mu      sync.Mutex
	current string
	cmd     *exec.Cmd

	// OnSwitch is invoked after a successful switch, for state
	// publishing.
	OnSwitch func(app string)
}

// NewChromium creates a surface over the configured app URLs.
func NewChromium(apps map[string]string) *Chromium {
	return &Chromium{
		apps:   apps,
		launch: launchChromium,
		logger: log.Component("surface"),
	}
}

func launchChromium(url string) (*exec.Cmd, error) {
	cmd := exec.Command("chromium-browser",
		"--kiosk",
		"--noerrdialogs",
		"--disable-session-crashed-bubble",
		"--app="+url,
	)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Show switches the browser to the named application.
func (c *Chromium) Show(app string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	url, ok := c.apps[app]
	if !ok {
		return fmt.Errorf("unknown app %q", app)
	}
	if c.current == app {
		return nil
	}

	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil {
			c.logger.Warn("kill previous browser", "error", err)
		}
		go c.cmd.Wait() // reap
	}

	cmd, err := c.launch(url)
	if err != nil {
		return fmt.Errorf("launch browser for %s: %w", app, err)
	}
	c.cmd = cmd
	c.current = app
	c.logger.Info("switched app", "app", app, "url", url)

	if c.OnSwitch != nil {
		c.OnSwitch(app)
	}
	return nil
}

// Current returns the app currently shown, or "" before the first Show.
func (c *Chromium) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Toggle cycles to the next configured app in name order.
func (c *Chromium) Toggle() error {
	c.mu.Lock()
	names := make([]string, 0, len(c.apps))
	for name := range c.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	current := c.current
	c.mu.Unlock()

	if len(names) == 0 {
		return fmt.Errorf("no apps configured")
	}

	next := names[0]
	for i, name := range names {
		if name == current {
			next = names[(i+1)%len(names)]
			break
		}
	}
	return c.Show(next)
}
