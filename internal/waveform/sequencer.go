// Package waveform plays a fixed duty-cycle sequence on a PWM generator, forever.
package waveform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/pwm"
)

// Config describes one pass of the sequence.
// Every step is held for Repeat × BasePeriod; after the last step the
// sequencer waits Idle before starting over.
type Config struct {
	Steps      []uint16
	Repeat     int
	BasePeriod time.Duration
	Idle       time.Duration
}

// RepeatFor returns the per-step repeat count that holds a level for hold.
func RepeatFor(hold, base time.Duration) int {
	if base <= 0 {
		return 0
	}
	return int(hold / base)
}

// StepHold is how long each step is held.
func (c Config) StepHold() time.Duration {
	return time.Duration(c.Repeat) * c.BasePeriod
}

// PassDuration is the length of one full pass, excluding Idle.
func (c Config) PassDuration() time.Duration {
	return c.StepHold() * time.Duration(len(c.Steps))
}

// Validate checks the config for invalid values.
func (c Config) Validate() error {
	if len(c.Steps) == 0 {
		return errors.New("waveform: steps must not be empty")
	}
	if c.Repeat < 1 {
		return errors.New("waveform: repeat must be >= 1")
	}
	if c.BasePeriod <= 0 {
		return errors.New("waveform: base period must be > 0")
	}
	if c.Idle < 0 {
		return errors.New("waveform: idle must be >= 0")
	}
	return nil
}

// Sequencer drives a generator through Config.Steps.
type Sequencer struct {
	gen pwm.Generator
	cfg Config
	log logrus.FieldLogger

	stop     chan struct{}
	stopOnce sync.Once

	// OnPass, if set, is called after every complete pass with the pass count.
	OnPass func(pass int)
}

// New creates a sequencer. The step slice is copied.
func New(gen pwm.Generator, cfg Config, log logrus.FieldLogger) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg.Steps = append([]uint16(nil), cfg.Steps...)
	return &Sequencer{
		gen:  gen,
		cfg:  cfg,
		log:  log.WithField("task", "waveform"),
		stop: make(chan struct{}),
	}, nil
}

// Stop silences the output and makes Run return. Safe to call more than once.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Run plays the sequence until Stop is called or ctx is done.
// The output is disabled on the way out in both cases.
// Returns nil after Stop, ctx.Err() on cancellation.
func (s *Sequencer) Run(ctx context.Context) error {
	defer func() {
		if err := s.gen.Disable(); err != nil {
			s.log.Warnf("disable output: %v", err)
		}
	}()

	s.log.Debugf("started: steps=%v hold=%v idle=%v", s.cfg.Steps, s.cfg.StepHold(), s.cfg.Idle)

	for pass := 1; ; pass++ {
		for _, level := range s.cfg.Steps {
			if err := s.gen.SetDuty(level); err != nil {
				s.log.Warnf("set duty %d: %v", level, err)
			}
			if err := s.wait(ctx, s.cfg.StepHold()); err != nil {
				return s.exit(err)
			}
		}

		s.log.Debugf("pass %d complete", pass)
		if s.OnPass != nil {
			s.OnPass(pass)
		}

		if err := s.wait(ctx, s.cfg.Idle); err != nil {
			return s.exit(err)
		}
	}
}

var errStopped = errors.New("stopped")

func (s *Sequencer) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-s.stop:
			return errStopped
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-s.stop:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) exit(err error) error {
	if errors.Is(err, errStopped) {
		s.log.Info("stopped")
		return nil
	}
	return err
}
