// Package watcher turns button edges into timestamped events on the button bus.
package watcher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/bus"
	"github.com/sweeney/ble-button/internal/gpio"
	"github.com/sweeney/ble-button/internal/logic"
)

// Watcher observes a button and publishes Pressed/Released events.
//
// With Debounce == 0 every raw edge that changes the classified state is
// published as-is, bounces included. With Debounce > 0 an edge only counts
// once the line held the new level for the settle duration.
type Watcher struct {
	button   gpio.Button
	pub      *bus.Publisher[logic.EdgeEvent]
	debounce time.Duration
	now      func() time.Time
	log      logrus.FieldLogger

	classifier *logic.EdgeClassifier
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce enables the settle filter.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// New creates a watcher publishing on pub.
func New(button gpio.Button, pub *bus.Publisher[logic.EdgeEvent], log logrus.FieldLogger, opts ...Option) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	w := &Watcher{
		button:     button,
		pub:        pub,
		now:        time.Now,
		log:        log.WithField("task", "button"),
		classifier: logic.NewEdgeClassifier(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Counts returns press/release counts. Only safe once Run has returned.
func (w *Watcher) Counts() logic.EventCounts {
	return w.classifier.Counts()
}

// Run watches until ctx is done or the edge channel closes.
func (w *Watcher) Run(ctx context.Context) error {
	initial, err := w.button.Level()
	if err != nil {
		w.log.Warnf("gpio read error: %v", err)
		initial = false
	}

	// A button already held at startup counts as a press.
	if initial {
		if err := w.observe(ctx, true, w.now()); err != nil {
			return err
		}
	}

	if w.debounce > 0 {
		return w.runDebounced(ctx, initial)
	}
	return w.runRaw(ctx)
}

func (w *Watcher) runRaw(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-w.button.Edges():
			if !ok {
				w.log.Info("edge source closed")
				return nil
			}
			if err := w.observe(ctx, e.Active, w.stamp(e)); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) runDebounced(ctx context.Context, initial bool) error {
	d := logic.NewDebouncer(w.debounce, initial)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e, ok := <-w.button.Edges():
			if !ok {
				w.log.Info("edge source closed")
				return nil
			}
			d.Edge(e.Active, w.now())
			timer.Reset(w.debounce)

		case <-timer.C:
			level, err := w.button.Level()
			if err != nil {
				w.log.Warnf("gpio read error: %v", err)
				timer.Reset(w.debounce)
				continue
			}
			t := w.now()
			if confirmed, changed := d.Settle(level, t); changed {
				if err := w.observe(ctx, confirmed, t); err != nil {
					return err
				}
			} else if d.Pending() {
				// Window restarted after the timer was armed.
				timer.Reset(w.debounce)
			}
		}
	}
}

// stamp uses the capture time of the edge, falling back to the watcher clock.
func (w *Watcher) stamp(e gpio.Edge) time.Time {
	if e.Time.IsZero() {
		return w.now()
	}
	return e.Time
}

func (w *Watcher) observe(ctx context.Context, active bool, t time.Time) error {
	ev := w.classifier.Observe(active, t)
	if ev == nil {
		return nil
	}
	if err := w.pub.Publish(ctx, *ev); err != nil {
		return err
	}
	switch ev.State {
	case logic.Pressed:
		w.log.Info("button pressed")
	case logic.Released:
		w.log.Info("button released")
	}
	return nil
}
