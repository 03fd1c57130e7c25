package remote

import (
	"testing"

	"github.com/teslashibe/go-kiosk/internal/config"
)

func configWithPrefix(prefix string) config.MQTT {
	return config.MQTT{Broker: "localhost", Port: 1883, TopicPrefix: prefix}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		name   string
		topic  string
		prefix string
		want   string
		ok     bool
	}{
		{
			name:   "brightness command",
			topic:  "kiosk/command/brightness",
			prefix: "kiosk",
			want:   "brightness",
			ok:     true,
		},
		{
			name:   "screen command with custom prefix",
			topic:  "tablet/command/screen",
			prefix: "tablet",
			want:   "screen",
			ok:     true,
		},
		{
			name:   "state topic is not a command",
			topic:  "kiosk/state/presence",
			prefix: "kiosk",
			ok:     false,
		},
		{
			name:   "wrong prefix",
			topic:  "other/command/screen",
			prefix: "kiosk",
			ok:     false,
		},
		{
			name:   "empty command name",
			topic:  "kiosk/command/",
			prefix: "kiosk",
			ok:     false,
		},
		{
			name:   "nested suffix rejected",
			topic:  "kiosk/command/screen/extra",
			prefix: "kiosk",
			ok:     false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CommandName(tc.topic, tc.prefix)
			if ok != tc.ok {
				t.Fatalf("ok: got %v, want %v", ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Errorf("name: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTopicLayout(t *testing.T) {
	c := New(configWithPrefix("tablet"))

	if got := c.stateTopic("presence"); got != "tablet/state/presence" {
		t.Errorf("stateTopic: got %q", got)
	}
	if got := c.commandTopic("screen"); got != "tablet/command/screen" {
		t.Errorf("commandTopic: got %q", got)
	}
}

func TestRegisterCommand(t *testing.T) {
	c := New(configWithPrefix("kiosk"))
	called := ""
	c.RegisterCommand("screen", func(payload string) { called = payload })

	c.mu.RLock()
	handler := c.handlers["screen"]
	c.mu.RUnlock()
	if handler == nil {
		t.Fatal("handler not registered")
	}
	handler("on")
	if called != "on" {
		t.Errorf("handler payload: got %q, want on", called)
	}
}
