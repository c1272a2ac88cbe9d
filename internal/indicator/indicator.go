// Package indicator drives LEDs: a free-running blinker and a pulser that
// reacts to system state announcements.
package indicator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/bus"
	"github.com/sweeney/ble-button/internal/gpio"
	"github.com/sweeney/ble-button/internal/logic"
)

// Pattern is one high/low cycle.
type Pattern struct {
	High time.Duration
	Low  time.Duration
}

// Blinker toggles an output forever, independent of everything else.
type Blinker struct {
	out     gpio.Output
	pattern Pattern
	log     logrus.FieldLogger
}

// NewBlinker creates a blinker for out.
func NewBlinker(out gpio.Output, pattern Pattern, log logrus.FieldLogger) *Blinker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Blinker{out: out, pattern: pattern, log: log.WithField("task", "blinker")}
}

// Run blinks until ctx is done and leaves the output low.
func (b *Blinker) Run(ctx context.Context) error {
	defer b.set(false)
	for {
		if err := pulse(ctx, b.pattern, b.set); err != nil {
			return err
		}
	}
}

func (b *Blinker) set(high bool) {
	if err := b.out.Set(high); err != nil {
		b.log.Warnf("set output: %v", err)
	}
}

// StatePulser pulses an output once for every system state announcement.
type StatePulser struct {
	out     gpio.Output
	states  *bus.Subscriber[logic.StateEvent]
	pattern Pattern
	log     logrus.FieldLogger
}

// NewStatePulser creates a pulser fed by states.
func NewStatePulser(out gpio.Output, states *bus.Subscriber[logic.StateEvent], pattern Pattern, log logrus.FieldLogger) *StatePulser {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StatePulser{out: out, states: states, pattern: pattern, log: log.WithField("task", "status-led")}
}

// Run waits for announcements and pulses for each one, until ctx is done
// or the subscription is closed.
func (p *StatePulser) Run(ctx context.Context) error {
	defer p.set(false)
	for {
		ev, err := p.states.Next(ctx)
		if errors.Is(err, bus.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		p.log.Debugf("state %s at %s", ev.State, ev.Time.Format(time.RFC3339Nano))

		if err := pulse(ctx, p.pattern, p.set); err != nil {
			return err
		}
	}
}

func (p *StatePulser) set(high bool) {
	if err := p.out.Set(high); err != nil {
		p.log.Warnf("set output: %v", err)
	}
}

// pulse drives high for pattern.High then low for pattern.Low.
func pulse(ctx context.Context, pattern Pattern, set func(bool)) error {
	set(true)
	if err := sleep(ctx, pattern.High); err != nil {
		return err
	}
	set(false)
	return sleep(ctx, pattern.Low)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
