package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: unexpected error %v", err)
	}

	def := Default()
	if cfg.Presence.CheckIntervalMs != def.Presence.CheckIntervalMs {
		t.Errorf("CheckIntervalMs: got %d, want default %d", cfg.Presence.CheckIntervalMs, def.Presence.CheckIntervalMs)
	}
	if cfg.MQTT.TopicPrefix != "kiosk" {
		t.Errorf("TopicPrefix: got %q, want kiosk", cfg.MQTT.TopicPrefix)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"mqtt": {"enabled": true, "broker": "10.0.0.5", "port": 1883, "topic_prefix": "tablet"},
		"presence_detection": {"enabled": true, "check_interval_ms": 500, "presence_timeout_seconds": 60,
			"detection_confidence": 0.7, "detection_mode": "face"}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MQTT.Broker != "10.0.0.5" {
		t.Errorf("Broker: got %q", cfg.MQTT.Broker)
	}
	if cfg.Presence.Interval() != 500*time.Millisecond {
		t.Errorf("Interval: got %v", cfg.Presence.Interval())
	}
	if cfg.Presence.Timeout() != 60*time.Second {
		t.Errorf("Timeout: got %v", cfg.Presence.Timeout())
	}
	// Untouched sections keep defaults
	if cfg.Screen.NormalBrightness != 100 {
		t.Errorf("NormalBrightness: got %d, want default 100", cfg.Screen.NormalBrightness)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "zero interval", mutate: func(c *Config) { c.Presence.CheckIntervalMs = 0 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *Config) { c.Presence.TimeoutSeconds = -1 }, wantErr: true},
		{name: "confidence above 1", mutate: func(c *Config) { c.Presence.DetectionConfidence = 1.5 }, wantErr: true},
		{name: "bad mode", mutate: func(c *Config) { c.Presence.DetectionMode = "sonar" }, wantErr: true},
		{name: "dim level too high", mutate: func(c *Config) { c.Screen.DimLevel = 120 }, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestPath(t *testing.T) {
	if got := Path("/etc/kiosk.json"); got != "/etc/kiosk.json" {
		t.Errorf("flag should win, got %q", got)
	}
	t.Setenv("KIOSK_CONFIG", "/tmp/k.json")
	if got := Path(""); got != "/tmp/k.json" {
		t.Errorf("env should win over default, got %q", got)
	}
	t.Setenv("KIOSK_CONFIG", "")
	if got := Path(""); got != DefaultPath {
		t.Errorf("default expected, got %q", got)
	}
}
