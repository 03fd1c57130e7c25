package screen

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// LinuxPlatform drives a Linux kiosk display: DPMS for panel power via
// xset, sysfs for backlight control.
type LinuxPlatform struct {
	// BacklightDir is the sysfs backlight device directory, e.g.
	// /sys/class/backlight/intel_backlight.
	BacklightDir string

	maxBrightness int
}

// NewLinuxPlatform creates the platform adapter for the given sysfs
// backlight device.
func NewLinuxPlatform(backlightDir string) *LinuxPlatform {
	return &LinuxPlatform{BacklightDir: backlightDir}
}

// PanelOff forces the panel into DPMS off.
func (p *LinuxPlatform) PanelOff() error {
	return xset("dpms", "force", "off")
}

// PanelOn forces the panel back on.
func (p *LinuxPlatform) PanelOn() error {
	return xset("dpms", "force", "on")
}

// KeepAlive resets the X idle timer so screensaver/lock never fires,
// then re-forces the panel dark since the reset counts as activity.
func (p *LinuxPlatform) KeepAlive() error {
	if err := xset("s", "reset"); err != nil {
		return err
	}
	return xset("dpms", "force", "off")
}

// SetBacklight writes a 0-100 percentage scaled to the device's
// max_brightness.
func (p *LinuxPlatform) SetBacklight(percent int) error {
	maxB, err := p.max()
	if err != nil {
		return err
	}
	raw := percent * maxB / 100
	path := filepath.Join(p.BacklightDir, "brightness")
	if err := os.WriteFile(path, []byte(strconv.Itoa(raw)), 0o644); err != nil {
		return fmt.Errorf("write backlight: %w", err)
	}
	return nil
}

// Backlight reads the current level as a 0-100 percentage.
func (p *LinuxPlatform) Backlight() (int, error) {
	maxB, err := p.max()
	if err != nil {
		return 0, err
	}
	raw, err := readSysfsInt(filepath.Join(p.BacklightDir, "brightness"))
	if err != nil {
		return 0, err
	}
	return raw * 100 / maxB, nil
}

// max reads and caches max_brightness.
func (p *LinuxPlatform) max() (int, error) {
	if p.maxBrightness > 0 {
		return p.maxBrightness, nil
	}
	v, err := readSysfsInt(filepath.Join(p.BacklightDir, "max_brightness"))
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid max_brightness %d", v)
	}
	p.maxBrightness = v
	return v, nil
}

func readSysfsInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

func xset(args ...string) error {
	out, err := exec.Command("xset", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xset %s: %w (%s)", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
