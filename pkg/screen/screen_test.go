package screen

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakePlatform simulates the OS calls with scriptable failures.
type fakePlatform struct {
	mu             sync.Mutex
	backlight      int
	panelOffErr    error
	panelOnErr     error
	setErr         error
	getErr         error
	keepAliveErr   error
	panelOffCalls  int
	panelOnCalls   int
	keepAliveCalls int
}

func (p *fakePlatform) PanelOff() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panelOffCalls++
	return p.panelOffErr
}

func (p *fakePlatform) PanelOn() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panelOnCalls++
	return p.panelOnErr
}

func (p *fakePlatform) SetBacklight(percent int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.setErr != nil {
		return p.setErr
	}
	p.backlight = percent
	return nil
}

func (p *fakePlatform) Backlight() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return 0, p.getErr
	}
	return p.backlight, nil
}

func (p *fakePlatform) KeepAlive() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keepAliveCalls++
	return p.keepAliveErr
}

func (p *fakePlatform) keepAlives() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keepAliveCalls
}

func TestController_TurnOffPrimaryStrategy(t *testing.T) {
	p := &fakePlatform{backlight: 80}
	c := New(p)
	defer c.Cleanup()

	strategy, err := c.TurnOff()
	if err != nil {
		t.Fatalf("TurnOff: %v", err)
	}
	if strategy != StrategyPanelPower {
		t.Errorf("strategy: got %v, want panel-power", strategy)
	}
	if !c.IsOff() {
		t.Error("IsOff should be true")
	}
	// Primary strategy leaves the backlight alone.
	if p.backlight != 80 {
		t.Errorf("backlight: got %d, want untouched 80", p.backlight)
	}
}

func TestController_TurnOffFallsBackToBacklightZero(t *testing.T) {
	p := &fakePlatform{backlight: 80, panelOffErr: errors.New("dpms unavailable")}
	c := New(p)
	defer c.Cleanup()

	strategy, err := c.TurnOff()
	if err != nil {
		t.Fatalf("TurnOff: %v", err)
	}
	if strategy != StrategyBacklightZero {
		t.Errorf("strategy: got %v, want backlight-zero (degraded)", strategy)
	}
	if !c.IsOff() {
		t.Error("IsOff must be true via the fallback strategy")
	}
	if p.backlight != 0 {
		t.Errorf("backlight: got %d, want 0", p.backlight)
	}
	// Fallback mode never starts the keep-alive: the panel still has
	// power, so idle policies behave normally.
	if p.keepAlives() != 0 {
		t.Errorf("keep-alive calls: got %d, want 0", p.keepAlives())
	}
}

func TestController_BrightnessClampAndReadFallback(t *testing.T) {
	p := &fakePlatform{backlight: 30}
	c := New(p)

	c.SetBrightness(150)
	if p.backlight != 100 {
		t.Errorf("clamp high: got %d, want 100", p.backlight)
	}
	c.SetBrightness(-10)
	if p.backlight != 0 {
		t.Errorf("clamp low: got %d, want 0", p.backlight)
	}

	p.getErr = errors.New("no backlight device")
	if got := c.Brightness(); got != fallbackBrightness {
		t.Errorf("Brightness on read failure: got %d, want %d", got, fallbackBrightness)
	}
}

func TestController_KeepAliveRefreshesWhileOff(t *testing.T) {
	p := &fakePlatform{backlight: 80}
	c := New(p)
	c.interval = 10 * time.Millisecond
	defer c.Cleanup()

	if _, err := c.TurnOff(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.keepAlives() >= 3 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("keep-alive refreshed %d times, want >= 3", p.keepAlives())
}

func TestController_TurnOnStopsKeepAlive(t *testing.T) {
	p := &fakePlatform{backlight: 80}
	c := New(p)
	c.interval = 10 * time.Millisecond
	defer c.Cleanup()

	c.TurnOff()
	c.TurnOn()

	if c.IsOff() {
		t.Error("IsOff should be false after TurnOn")
	}

	count := p.keepAlives()
	time.Sleep(50 * time.Millisecond)
	if after := p.keepAlives(); after != count {
		t.Errorf("keep-alive still firing after TurnOn: %d -> %d", count, after)
	}
}

func TestController_CleanupIsIdempotentAndFinal(t *testing.T) {
	p := &fakePlatform{backlight: 80}
	c := New(p)
	c.interval = 5 * time.Millisecond

	c.TurnOff()
	c.Cleanup()
	c.Cleanup() // second call must be safe

	count := p.keepAlives()
	time.Sleep(30 * time.Millisecond)
	if after := p.keepAlives(); after != count {
		t.Errorf("keep-alive fired after Cleanup: %d -> %d", count, after)
	}
}

func TestLinuxPlatform_BacklightScaling(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "max_brightness"), []byte("7500\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte("3750\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewLinuxPlatform(dir)

	got, err := p.Backlight()
	if err != nil {
		t.Fatalf("Backlight: %v", err)
	}
	if got != 50 {
		t.Errorf("Backlight: got %d%%, want 50%%", got)
	}

	if err := p.SetBacklight(20); err != nil {
		t.Fatalf("SetBacklight: %v", err)
	}
	raw, err := readSysfsInt(filepath.Join(dir, "brightness"))
	if err != nil {
		t.Fatal(err)
	}
	if raw != 1500 {
		t.Errorf("raw brightness: got %d, want 1500", raw)
	}
}

func TestLinuxPlatform_MissingDevice(t *testing.T) {
	p := NewLinuxPlatform(filepath.Join(t.TempDir(), "nope"))
	if _, err := p.Backlight(); err == nil {
		t.Error("expected error for missing backlight device")
	}
	if err := p.SetBacklight(50); err == nil {
		t.Error("expected error for missing backlight device")
	}
}
