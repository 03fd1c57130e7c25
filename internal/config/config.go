// Package config loads the kiosk configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DefaultPath is used when no --config flag or KIOSK_CONFIG env var is set.
const DefaultPath = "config.json"

// Config is the full kiosk configuration. Every section has working
// defaults so the daemon can start with an empty file.
type Config struct {
	LogLevel   string         `json:"log_level"`
	MQTT       MQTT           `json:"mqtt"`
	Presence   Presence       `json:"presence_detection"`
	Screen     Screen         `json:"screen"`
	Apps       map[string]App `json:"apps"`
	DefaultApp string         `json:"default_app"`
	Dashboard  Dashboard      `json:"dashboard"`
	Input      Input          `json:"input"`
}

// MQTT configures the remote command/state channel.
type MQTT struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// Presence configures the sensor loop and detector backends.
type Presence struct {
	Enabled             bool    `json:"enabled"`
	CheckIntervalMs     int     `json:"check_interval_ms"`
	TimeoutSeconds      int     `json:"presence_timeout_seconds"`
	DetectionConfidence float64 `json:"detection_confidence"`
	DetectionMode       string  `json:"detection_mode"` // face, pose, both
	CameraIndex         int     `json:"camera_index"`
	FaceModelPath       string  `json:"face_model_path"`
	PoseModelPath       string  `json:"pose_model_path"`
}

// Interval returns the sampling interval as a duration.
func (p Presence) Interval() time.Duration {
	return time.Duration(p.CheckIntervalMs) * time.Millisecond
}

// Timeout returns the presence timeout as a duration.
func (p Presence) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Screen configures power and brightness behavior.
type Screen struct {
	TurnOffWhenNoPresence bool   `json:"turn_off_when_no_presence"`
	DimWhenNoPresence     bool   `json:"dim_brightness_when_no_presence"`
	DimLevel              int    `json:"dim_level"`
	NormalBrightness      int    `json:"normal_brightness"`
	WakeOnInput           bool   `json:"wake_on_input"`
	BacklightDevice       string `json:"backlight_device"`
}

// App is one switchable browser target.
type App struct {
	URL string `json:"url"`
}

// Dashboard configures the local web dashboard.
type Dashboard struct {
	Enabled bool   `json:"enabled"`
	Port    string `json:"port"`
}

// Input configures the local input-device observer.
type Input struct {
	Enabled bool   `json:"enabled"`
	Device  string `json:"device"`
}

// Default returns the built-in configuration, matching a typical
// wall-mounted setup.
func Default() Config {
	return Config{
		LogLevel: "info",
		MQTT: MQTT{
			Enabled:     false,
			Broker:      "localhost",
			Port:        1883,
			TopicPrefix: "kiosk",
		},
		Presence: Presence{
			Enabled:             true,
			CheckIntervalMs:     1000,
			TimeoutSeconds:      30,
			DetectionConfidence: 0.5,
			DetectionMode:       "both",
			CameraIndex:         0,
			FaceModelPath:       "models/face_detection_yunet.onnx",
			PoseModelPath:       "models/pose_landmark_lite.onnx",
		},
		Screen: Screen{
			TurnOffWhenNoPresence: true,
			DimWhenNoPresence:     false,
			DimLevel:              20,
			NormalBrightness:      100,
			WakeOnInput:           true,
			BacklightDevice:       "/sys/class/backlight/intel_backlight",
		},
		Apps: map[string]App{
			"home_assistant": {URL: "http://homeassistant.local:8123"},
			"cookbook":       {URL: "https://www.allrecipes.com"},
		},
		DefaultApp: "home_assistant",
		Dashboard: Dashboard{
			Enabled: true,
			Port:    "8090",
		},
		Input: Input{
			Enabled: true,
			Device:  "/dev/input/mice",
		},
	}
}

// Load reads a config file, overlaying it on the defaults.
// A missing file is not an error: defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate rejects values the controller cannot operate with.
func (c *Config) Validate() error {
	if c.Presence.CheckIntervalMs <= 0 {
		return fmt.Errorf("presence_detection.check_interval_ms must be positive, got %d", c.Presence.CheckIntervalMs)
	}
	if c.Presence.TimeoutSeconds <= 0 {
		return fmt.Errorf("presence_detection.presence_timeout_seconds must be positive, got %d", c.Presence.TimeoutSeconds)
	}
	if c.Presence.DetectionConfidence < 0 || c.Presence.DetectionConfidence > 1 {
		return fmt.Errorf("presence_detection.detection_confidence must be in [0,1], got %g", c.Presence.DetectionConfidence)
	}
	switch c.Presence.DetectionMode {
	case "face", "pose", "both":
	default:
		return fmt.Errorf("presence_detection.detection_mode must be face, pose or both, got %q", c.Presence.DetectionMode)
	}
	if c.Screen.DimLevel < 0 || c.Screen.DimLevel > 100 {
		return fmt.Errorf("screen.dim_level must be in [0,100], got %d", c.Screen.DimLevel)
	}
	if c.Screen.NormalBrightness < 0 || c.Screen.NormalBrightness > 100 {
		return fmt.Errorf("screen.normal_brightness must be in [0,100], got %d", c.Screen.NormalBrightness)
	}
	if c.DefaultApp != "" {
		if _, ok := c.Apps[c.DefaultApp]; !ok {
			return fmt.Errorf("default_app %q is not in apps", c.DefaultApp)
		}
	}
	return nil
}

// Path resolves the config path from the flag value or KIOSK_CONFIG.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv("KIOSK_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}
