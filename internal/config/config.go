// Package config loads the startup configuration. It is read once at
// process start and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/ble-button/internal/adv"
	"github.com/sweeney/ble-button/internal/gatt"
	"github.com/sweeney/ble-button/internal/indicator"
	"github.com/sweeney/ble-button/internal/waveform"
)

// MaxDeviceName is what fits in a 31-byte advertisement next to the flags
// and the battery service id.
const MaxDeviceName = 22

// Config holds all startup configuration.
type Config struct {
	Pins      PinsConfig     `yaml:"pins"`
	Link      LinkConfig     `yaml:"link"`
	Indicator PatternConfig  `yaml:"indicator"`
	StatusLED PatternConfig  `yaml:"status_led"`
	Waveform  WaveformConfig `yaml:"waveform"`
	Button    ButtonConfig   `yaml:"button"`
	Bus       BusConfig      `yaml:"bus"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	HTTP      HTTPConfig     `yaml:"http"`
	LogLevel  string         `yaml:"log_level" default:"info"`
}

// PinsConfig assigns hardware lines.
type PinsConfig struct {
	Chip       string `yaml:"chip" default:"gpiochip0"`
	Button     int    `yaml:"button" default:"12"`
	Indicator  int    `yaml:"indicator" default:"26"`
	StatusLED  int    `yaml:"status_led" default:"16"`
	PWMChip    int    `yaml:"pwm_chip" default:"0"`
	PWMChannel int    `yaml:"pwm_channel" default:"0"`
}

// LinkConfig tunes the radio and the lifecycle manager.
type LinkConfig struct {
	DeviceName        string        `yaml:"device_name" default:"BLE-Button"`
	MaxConnections    int           `yaml:"max_connections" default:"1"`
	AdvertiseInterval time.Duration `yaml:"advertise_interval" default:"250ms"`
	AdvertiseTimeout  time.Duration `yaml:"advertise_timeout" default:"10s"`
	MTU               int           `yaml:"mtu" default:"256"`
	PeripheralRoles   int           `yaml:"peripheral_roles" default:"3"`
	CentralRoles      int           `yaml:"central_roles" default:"0"`
	BackoffInitial    time.Duration `yaml:"backoff_initial" default:"1s"`
	BackoffMax        time.Duration `yaml:"backoff_max" default:"30s"`
	BatteryLevel      uint8         `yaml:"battery_level" default:"100"`
}

// PatternConfig is one LED on/off cycle.
type PatternConfig struct {
	High time.Duration `yaml:"high"`
	Low  time.Duration `yaml:"low"`
}

// Pattern converts to the indicator type.
func (p PatternConfig) Pattern() indicator.Pattern {
	return indicator.Pattern{High: p.High, Low: p.Low}
}

// WaveformConfig describes the fade sequence.
type WaveformConfig struct {
	Enabled    bool          `yaml:"enabled" default:"true"`
	Steps      []uint16      `yaml:"steps"`
	Top        uint16        `yaml:"top" default:"1000"`
	Repeat     int           `yaml:"repeat" default:"624"`
	BasePeriod time.Duration `yaml:"base_period" default:"8ms"`
	Idle       time.Duration `yaml:"idle" default:"20s"`
}

// Sequencer converts to the waveform type.
func (w WaveformConfig) Sequencer() waveform.Config {
	return waveform.Config{
		Steps:      append([]uint16(nil), w.Steps...),
		Repeat:     w.Repeat,
		BasePeriod: w.BasePeriod,
		Idle:       w.Idle,
	}
}

// ButtonConfig tunes the input watcher.
type ButtonConfig struct {
	Debounce time.Duration `yaml:"debounce" default:"0s"`
}

// BusConfig sizes the event buses.
type BusConfig struct {
	Capacity       int `yaml:"capacity" default:"8"`
	MaxSubscribers int `yaml:"max_subscribers" default:"4"`
}

// MQTTConfig enables the optional broker bridge when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id" default:"ble-button"`
}

// HTTPConfig enables the optional status page when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Indicator = PatternConfig{High: 5000 * time.Millisecond, Low: 500 * time.Millisecond}
	cfg.StatusLED = PatternConfig{High: 2000 * time.Millisecond, Low: 8 * time.Millisecond}
	cfg.Waveform.Steps = []uint16{1000, 250, 100, 50, 0}
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Pins.Chip != "", "pins.chip must not be empty")
	check(c.Pins.Button >= 0 && c.Pins.Indicator >= 0 && c.Pins.StatusLED >= 0, "pins must be >= 0")
	check(c.Pins.Button != c.Pins.Indicator && c.Pins.Button != c.Pins.StatusLED && c.Pins.Indicator != c.Pins.StatusLED,
		"pins.button, pins.indicator and pins.status_led must differ")

	check(c.Link.DeviceName != "", "link.device_name must not be empty")
	check(len(c.Link.DeviceName) <= MaxDeviceName, "link.device_name must be at most %d bytes, got %d", MaxDeviceName, len(c.Link.DeviceName))
	if _, err := c.Advertisement(); err != nil {
		errs = append(errs, fmt.Errorf("link.device_name: %w", err))
	}
	check(c.Link.MaxConnections == 1, "link.max_connections must be 1, got %d", c.Link.MaxConnections)
	check(c.Link.AdvertiseInterval > 0, "link.advertise_interval must be > 0")
	check(c.Link.AdvertiseTimeout > 0, "link.advertise_timeout must be > 0")
	check(c.Link.MTU >= 23 && c.Link.MTU <= 517, "link.mtu must be between 23 and 517, got %d", c.Link.MTU)
	check(c.Link.PeripheralRoles >= 1, "link.peripheral_roles must be >= 1")
	check(c.Link.CentralRoles >= 0, "link.central_roles must be >= 0")
	check(c.Link.BackoffInitial > 0 && c.Link.BackoffMax >= c.Link.BackoffInitial,
		"link.backoff_initial must be > 0 and <= link.backoff_max")
	check(c.Link.BatteryLevel <= 100, "link.battery_level must be <= 100")

	for name, p := range map[string]PatternConfig{"indicator": c.Indicator, "status_led": c.StatusLED} {
		check(p.High > 0 && p.Low > 0, "%s.high and %s.low must be > 0", name, name)
	}

	if c.Waveform.Enabled {
		if err := c.Waveform.Sequencer().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("waveform: %w", err))
		}
		check(c.Waveform.Top > 0, "waveform.top must be > 0")
		for _, s := range c.Waveform.Steps {
			check(s <= c.Waveform.Top, "waveform step %d exceeds top %d", s, c.Waveform.Top)
		}
	}

	check(c.Button.Debounce >= 0, "button.debounce must be >= 0")
	check(c.Bus.Capacity >= 1, "bus.capacity must be >= 1")
	check(c.Bus.MaxSubscribers >= 0, "bus.max_subscribers must be >= 0")

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be trace, debug, info, warn, or error, got %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// Advertisement builds the static advertising and scan response payload:
// flags, the battery service and the name in the advertisement, the Foo
// service in the scan response.
func (c *Config) Advertisement() (*adv.Payload, error) {
	short, _ := gatt.Short(gatt.BatteryServiceUUID)
	return adv.Build(
		adv.Advertisement{
			Flags:      adv.FlagGeneralDiscovery | adv.FlagLEOnly,
			Services16: []uint16{short},
			Name:       c.Link.DeviceName,
		},
		adv.Advertisement{
			Services128: []uuid.UUID{gatt.FooServiceUUID},
		},
	)
}
