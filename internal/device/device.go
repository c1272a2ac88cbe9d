// Package device assembles the buses and tasks of the button peripheral
// and runs them until shutdown.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/bus"
	"github.com/sweeney/ble-button/internal/config"
	"github.com/sweeney/ble-button/internal/gatt"
	"github.com/sweeney/ble-button/internal/gpio"
	"github.com/sweeney/ble-button/internal/indicator"
	"github.com/sweeney/ble-button/internal/logic"
	"github.com/sweeney/ble-button/internal/mqtt"
	"github.com/sweeney/ble-button/internal/peripheral"
	"github.com/sweeney/ble-button/internal/pwm"
	"github.com/sweeney/ble-button/internal/status"
	"github.com/sweeney/ble-button/internal/waveform"
	"github.com/sweeney/ble-button/internal/watcher"
	"github.com/sweeney/ble-button/internal/web"
)

// Hardware is everything the device drives. Fader may be nil.
type Hardware struct {
	Button    gpio.Button
	Indicator gpio.Output
	StatusLED gpio.Output
	Fader     pwm.Generator
	Link      peripheral.Link
}

// Options are optional collaborators.
type Options struct {
	// Publisher mirrors events to MQTT when set.
	Publisher mqtt.Publisher

	// Tracker records state for the status page and system events.
	Tracker *status.Tracker

	// SleepHook is called after an advertise timeout.
	SleepHook peripheral.SleepHook
}

type task struct {
	name string
	run  func(context.Context) error
}

// Device owns the buses and every long-running task.
type Device struct {
	log    logrus.FieldLogger
	server *gatt.Server
	edges  *bus.Bus[logic.EdgeEvent]
	states *bus.Bus[logic.StateEvent]
	tasks  []task

	// Manager is exposed for inspection of the live connection.
	Manager *peripheral.Manager
}

// New wires the device. All subscriptions are made here, before any task
// can publish.
func New(cfg *config.Config, hw Hardware, server *gatt.Server, opts Options, log logrus.FieldLogger) (*Device, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	payload, err := cfg.Advertisement()
	if err != nil {
		return nil, fmt.Errorf("build advertisement: %w", err)
	}

	d := &Device{
		log:    log,
		server: server,
		edges:  bus.New[logic.EdgeEvent]("button", cfg.Bus.Capacity, bus.WithMaxSubscribers(cfg.Bus.MaxSubscribers), bus.WithMaxPublishers(1)),
		states: bus.New[logic.StateEvent]("state", cfg.Bus.Capacity, bus.WithMaxSubscribers(cfg.Bus.MaxSubscribers), bus.WithMaxPublishers(1)),
	}

	edgePub, err := d.edges.Publisher()
	if err != nil {
		return nil, err
	}
	statePub, err := d.states.Publisher()
	if err != nil {
		return nil, err
	}

	// Subscribers first.
	stateLED, err := d.states.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe status led to %s: %w", d.states.Name(), err)
	}
	d.add("status-led", indicator.NewStatePulser(hw.StatusLED, stateLED, cfg.StatusLED.Pattern(), log).Run)

	var managerOpts []peripheral.Option
	if opts.SleepHook != nil {
		managerOpts = append(managerOpts, peripheral.WithSleepHook(opts.SleepHook))
	}

	if opts.Tracker != nil {
		edgeSub, err := d.edges.Subscribe()
		if err != nil {
			return nil, fmt.Errorf("subscribe tracker to %s: %w", d.edges.Name(), err)
		}
		stateSub, err := d.states.Subscribe()
		if err != nil {
			return nil, fmt.Errorf("subscribe tracker to %s: %w", d.states.Name(), err)
		}
		tracker := opts.Tracker
		tracker.SetValues(server)
		d.add("tracker", func(ctx context.Context) error { return tracker.Follow(ctx, edgeSub, stateSub) })
		managerOpts = append(managerOpts, peripheral.WithObserver(tracker))
	}

	if opts.Publisher != nil {
		edgeSub, err := d.edges.Subscribe()
		if err != nil {
			return nil, fmt.Errorf("subscribe mqtt to %s: %w", d.edges.Name(), err)
		}
		stateSub, err := d.states.Subscribe()
		if err != nil {
			return nil, fmt.Errorf("subscribe mqtt to %s: %w", d.states.Name(), err)
		}
		pub := opts.Publisher
		d.add("mqtt-button", func(ctx context.Context) error { return mqtt.Forward(ctx, edgeSub, pub.PublishEdge, log) })
		d.add("mqtt-state", func(ctx context.Context) error { return mqtt.Forward(ctx, stateSub, pub.PublishState, log) })
	}

	if opts.Tracker != nil && cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, opts.Tracker)
		d.add("http", srv.Run)
	}

	// Producers.
	var watchOpts []watcher.Option
	if cfg.Button.Debounce > 0 {
		watchOpts = append(watchOpts, watcher.WithDebounce(cfg.Button.Debounce))
	}
	w := watcher.New(hw.Button, edgePub, log, watchOpts...)
	d.add("button", func(ctx context.Context) error {
		err := w.Run(ctx)
		counts := w.Counts()
		log.WithField("task", "button").Infof("stopped: presses=%d releases=%d", counts.Presses, counts.Releases)
		return err
	})

	d.Manager = peripheral.NewManager(hw.Link, server, payload, statePub, peripheral.Config{
		AdvertiseTimeout: cfg.Link.AdvertiseTimeout,
		BackoffInitial:   cfg.Link.BackoffInitial,
		BackoffMax:       cfg.Link.BackoffMax,
	}, log, managerOpts...)
	d.add("peripheral", d.Manager.Run)

	d.add("blinker", indicator.NewBlinker(hw.Indicator, cfg.Indicator.Pattern(), log).Run)

	if hw.Fader != nil && cfg.Waveform.Enabled {
		seq, err := waveform.New(hw.Fader, cfg.Waveform.Sequencer(), log)
		if err != nil {
			return nil, fmt.Errorf("waveform: %w", err)
		}
		d.add("waveform", seq.Run)
	}

	server.SetBatteryLevel(cfg.Link.BatteryLevel)
	return d, nil
}

func (d *Device) add(name string, run func(context.Context) error) {
	d.tasks = append(d.tasks, task{name: name, run: run})
}

// Tasks returns the names of the tasks Run will start.
func (d *Device) Tasks() []string {
	names := make([]string, len(d.tasks))
	for i, t := range d.tasks {
		names[i] = t.name
	}
	return names
}

// Run starts every task and blocks until ctx is done or a task fails.
// A task returning nil on its own is logged and the rest keep running.
func (d *Device) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, t := range d.tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			err := t.run(ctx)
			switch {
			case err == nil:
				if ctx.Err() == nil {
					d.log.WithField("task", t.name).Warn("task exited")
				}
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			default:
				d.log.WithField("task", t.name).Errorf("task failed: %v", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", t.name, err)
				}
				mu.Unlock()
				cancel()
			}
		}(t)
	}

	d.log.Infof("started %d tasks", len(d.tasks))
	wg.Wait()
	return firstErr
}
