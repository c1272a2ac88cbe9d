// Command ble-button runs the BLE button peripheral: it publishes button
// edges, serves the battery and Foo GATT services, and drives the
// indicator LEDs and the fade waveform.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/ble-button/internal/config"
	"github.com/sweeney/ble-button/internal/device"
	"github.com/sweeney/ble-button/internal/gatt"
	"github.com/sweeney/ble-button/internal/gpio"
	"github.com/sweeney/ble-button/internal/link"
	"github.com/sweeney/ble-button/internal/logic"
	"github.com/sweeney/ble-button/internal/mqtt"
	"github.com/sweeney/ble-button/internal/pwm"
	"github.com/sweeney/ble-button/internal/status"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.Fatalf("fatal: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		printState bool
	)

	cmd := &cobra.Command{
		Use:   "ble-button",
		Short: "BLE button peripheral",
		Long: `Runs a single-connection BLE peripheral that publishes button edges,
serves the Battery and Foo GATT services, and drives the indicator LEDs.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, logLevel)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}

			if printState {
				button, err := gpio.NewRealButton(cfg.Pins.Chip, cfg.Pins.Button)
				if err != nil {
					return fmt.Errorf("init gpio: %w", err)
				}
				defer button.Close()
				return printButton(cmd.OutOrStdout(), button)
			}
			return run(cfg, log)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	cmd.Flags().BoolVar(&printState, "print-state", false, "print the current button state and exit")
	return cmd
}

// loadConfig reads and validates the config. A non-empty level overrides
// the file.
func loadConfig(path, level string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func printButton(w io.Writer, button gpio.Button) error {
	active, err := button.Level()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	_, err = fmt.Fprintf(w, "BUTTON: %s\n", logic.StateFor(active))
	return err
}

func run(cfg *config.Config, log *logrus.Logger) error {
	server := gatt.NewServer(log)

	hw, closeHW, err := openHardware(cfg, server, log)
	if err != nil {
		return err
	}
	defer closeHW()

	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceName:         cfg.Link.DeviceName,
		AdvertiseTimeoutMs: cfg.Link.AdvertiseTimeout.Milliseconds(),
		DebounceMs:         cfg.Button.Debounce.Milliseconds(),
		Broker:             cfg.MQTT.Broker,
		HTTPAddr:           cfg.HTTP.Addr,
	})
	tracker.SetValues(server)

	opts := device.Options{Tracker: tracker}
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, log)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		publisher, mqttStatus = pub, pub
		opts.Publisher = pub
	}

	dev, err := device.New(cfg, hw, server, opts, log)
	if err != nil {
		return err
	}

	publishSystem(publisher, mqttStatus, tracker, "STARTUP", "", log)

	log.Infof("started: device=%s advertise_timeout=%v debounce=%v mtu=%d peripheral_roles=%d central_roles=%d",
		cfg.Link.DeviceName, cfg.Link.AdvertiseTimeout, cfg.Button.Debounce,
		cfg.Link.MTU, cfg.Link.PeripheralRoles, cfg.Link.CentralRoles)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reason := make(chan string, 1)
	go func() { reason <- waitForSignal(ctx, sigCh, cancel, log) }()

	runErr := dev.Run(ctx)
	cancel()

	publishSystem(publisher, mqttStatus, tracker, "SHUTDOWN", <-reason, log)
	return runErr
}

// openHardware opens every device line and the radio. The returned func
// releases them.
func openHardware(cfg *config.Config, server *gatt.Server, log logrus.FieldLogger) (device.Hardware, func(), error) {
	var closers []func() error
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warnf("close error: %v", err)
			}
		}
	}
	fail := func(err error) (device.Hardware, func(), error) {
		release()
		return device.Hardware{}, nil, err
	}

	var hw device.Hardware

	button, err := gpio.NewRealButton(cfg.Pins.Chip, cfg.Pins.Button)
	if err != nil {
		return fail(fmt.Errorf("init button: %w", err))
	}
	closers = append(closers, func() error { return releaseButton(button, log) })
	hw.Button = button

	ind, err := gpio.NewRealOutput(cfg.Pins.Chip, cfg.Pins.Indicator)
	if err != nil {
		return fail(fmt.Errorf("init indicator: %w", err))
	}
	closers = append(closers, ind.Close)
	hw.Indicator = ind

	led, err := gpio.NewRealOutput(cfg.Pins.Chip, cfg.Pins.StatusLED)
	if err != nil {
		return fail(fmt.Errorf("init status led: %w", err))
	}
	closers = append(closers, led.Close)
	hw.StatusLED = led

	if cfg.Waveform.Enabled {
		fader, err := pwm.NewSysfsGenerator(pwm.DefaultSysfsRoot, cfg.Pins.PWMChip, cfg.Pins.PWMChannel, cfg.Waveform.BasePeriod, cfg.Waveform.Top)
		if err != nil {
			return fail(fmt.Errorf("init pwm: %w", err))
		}
		closers = append(closers, fader.Close)
		hw.Fader = fader
	}

	payload, err := cfg.Advertisement()
	if err != nil {
		return fail(fmt.Errorf("build advertisement: %w", err))
	}
	radio, err := link.Open(server, payload, link.Options{AdvertiseInterval: cfg.Link.AdvertiseInterval}, log)
	if err != nil {
		return fail(fmt.Errorf("init bluetooth: %w", err))
	}
	closers = append(closers, radio.Close)
	hw.Link = radio

	return hw, release, nil
}

// dropCounter is implemented by buttons that can overflow their edge queue.
type dropCounter interface {
	Dropped() uint64
}

// releaseButton closes the button, reporting edges lost to a full queue.
func releaseButton(button gpio.Button, log logrus.FieldLogger) error {
	if d, ok := button.(dropCounter); ok {
		if n := d.Dropped(); n > 0 {
			log.Warnf("button: %d edges dropped", n)
		}
	}
	return button.Close()
}

// waitForSignal cancels the run on SIGINT or SIGTERM and returns the
// signal name, or "" if ctx ended first.
func waitForSignal(ctx context.Context, sig <-chan os.Signal, cancel context.CancelFunc, log logrus.FieldLogger) string {
	select {
	case s := <-sig:
		log.Infof("received %v, shutting down", s)
		cancel()
		return signalName(s)
	case <-ctx.Done():
		return ""
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// publishSystem sends a retained lifecycle event carrying the full status
// snapshot. A nil publisher is a no-op.
func publishSystem(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string, log logrus.FieldLogger) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.Warnf("failed to publish %s event: %v", event, err)
		return
	}
	log.Infof("published %s event", event)
}
