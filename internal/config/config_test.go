package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Pins.Chip != "gpiochip0" || cfg.Pins.Button != 12 || cfg.Pins.Indicator != 26 || cfg.Pins.StatusLED != 16 {
		t.Errorf("pins: got %+v", cfg.Pins)
	}
	if cfg.Link.DeviceName != "BLE-Button" {
		t.Errorf("device_name: got %q", cfg.Link.DeviceName)
	}
	if cfg.Link.AdvertiseTimeout != 10*time.Second {
		t.Errorf("advertise_timeout: got %v", cfg.Link.AdvertiseTimeout)
	}
	if cfg.Link.MTU != 256 || cfg.Link.MaxConnections != 1 {
		t.Errorf("mtu/max_connections: got %d/%d", cfg.Link.MTU, cfg.Link.MaxConnections)
	}
	if cfg.Indicator.High != 5*time.Second || cfg.Indicator.Low != 500*time.Millisecond {
		t.Errorf("indicator: got %+v", cfg.Indicator)
	}
	if cfg.StatusLED.High != 2*time.Second || cfg.StatusLED.Low != 8*time.Millisecond {
		t.Errorf("status_led: got %+v", cfg.StatusLED)
	}
	if len(cfg.Waveform.Steps) != 5 || cfg.Waveform.Repeat != 624 || cfg.Waveform.BasePeriod != 8*time.Millisecond {
		t.Errorf("waveform: got %+v", cfg.Waveform)
	}
	if cfg.Waveform.Idle != 20*time.Second || !cfg.Waveform.Enabled {
		t.Errorf("waveform idle/enabled: got %+v", cfg.Waveform)
	}
	if cfg.Bus.Capacity != 8 || cfg.Bus.MaxSubscribers != 4 {
		t.Errorf("bus: got %+v", cfg.Bus)
	}
	if cfg.Button.Debounce != 0 {
		t.Errorf("debounce: got %v", cfg.Button.Debounce)
	}
	if cfg.MQTT.Broker != "" || cfg.HTTP.Addr != "" {
		t.Error("network bridges should be disabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level: got %q", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Link.DeviceName != "BLE-Button" {
		t.Errorf("expected defaults, got %q", cfg.Link.DeviceName)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
pins:
  button: 5
link:
  device_name: Porch
  advertise_timeout: 30s
indicator:
  high: 500ms
  low: 500ms
waveform:
  steps: [100, 0]
button:
  debounce: 20ms
mqtt:
  broker: tcp://localhost:1883
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pins.Button != 5 || cfg.Pins.Indicator != 26 {
		t.Errorf("pins: got %+v", cfg.Pins)
	}
	if cfg.Link.DeviceName != "Porch" || cfg.Link.AdvertiseTimeout != 30*time.Second {
		t.Errorf("link: got %+v", cfg.Link)
	}
	if cfg.Link.MTU != 256 {
		t.Errorf("unset fields should keep defaults, mtu=%d", cfg.Link.MTU)
	}
	if cfg.Indicator.High != 500*time.Millisecond {
		t.Errorf("indicator: got %+v", cfg.Indicator)
	}
	if cfg.StatusLED.High != 2*time.Second {
		t.Errorf("status_led should keep defaults: got %+v", cfg.StatusLED)
	}
	if len(cfg.Waveform.Steps) != 2 || cfg.Waveform.Steps[0] != 100 {
		t.Errorf("steps: got %v", cfg.Waveform.Steps)
	}
	if cfg.Button.Debounce != 20*time.Millisecond {
		t.Errorf("debounce: got %v", cfg.Button.Debounce)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" || cfg.MQTT.ClientID != "ble-button" {
		t.Errorf("mqtt: got %+v", cfg.MQTT)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "link: [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"long name", func(c *Config) { c.Link.DeviceName = strings.Repeat("n", MaxDeviceName+1) }, "device_name"},
		{"empty name", func(c *Config) { c.Link.DeviceName = "" }, "device_name"},
		{"two connections", func(c *Config) { c.Link.MaxConnections = 2 }, "max_connections"},
		{"zero timeout", func(c *Config) { c.Link.AdvertiseTimeout = 0 }, "advertise_timeout"},
		{"tiny mtu", func(c *Config) { c.Link.MTU = 10 }, "mtu"},
		{"backoff inverted", func(c *Config) { c.Link.BackoffMax = time.Millisecond }, "backoff"},
		{"battery over 100", func(c *Config) { c.Link.BatteryLevel = 101 }, "battery_level"},
		{"shared pin", func(c *Config) { c.Pins.Indicator = c.Pins.Button }, "must differ"},
		{"zero pattern", func(c *Config) { c.Indicator.Low = 0 }, "indicator"},
		{"step above top", func(c *Config) { c.Waveform.Steps = []uint16{2000} }, "exceeds top"},
		{"no steps", func(c *Config) { c.Waveform.Steps = nil }, "waveform"},
		{"negative debounce", func(c *Config) { c.Button.Debounce = -time.Millisecond }, "debounce"},
		{"zero capacity", func(c *Config) { c.Bus.Capacity = 0 }, "capacity"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateSkipsDisabledWaveform(t *testing.T) {
	cfg := Default()
	cfg.Waveform.Enabled = false
	cfg.Waveform.Steps = nil
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled waveform should not be validated: %v", err)
	}
}

func TestAdvertisement(t *testing.T) {
	p, err := Default().Advertisement()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := p.Advertisement()
	if a.Name != "BLE-Button" || len(a.Services16) != 1 || a.Services16[0] != 0x180F {
		t.Errorf("advertisement: got %+v", a)
	}
	if len(p.ScanResponse().Services128) != 1 {
		t.Errorf("scan response: got %+v", p.ScanResponse())
	}
}
