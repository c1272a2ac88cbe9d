// Package status keeps a thread-safe view of the device for the status page
// and MQTT system events.
package status

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/ble-button/internal/bus"
	"github.com/sweeney/ble-button/internal/logic"
	"github.com/sweeney/ble-button/internal/peripheral"
)

// Config contains daemon configuration for display.
type Config struct {
	DeviceName         string
	AdvertiseTimeoutMs int64
	DebounceMs         int64
	Broker             string
	HTTPAddr           string
}

// Values reads the stored characteristic values.
type Values interface {
	BatteryLevel() uint8
	Foo() uint16
}

// Snapshot is a point-in-time view of device state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Button        logic.ButtonState
	LastEdge      time.Time
	State         logic.SystemState
	Connection    uint16
	HasConnection bool
	LastFailure   string
	Counts        logic.EventCounts
	BatteryLevel  uint8
	Foo           uint16
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable device state behind an RWMutex. It implements
// peripheral.Observer.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	values Values
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// SetValues attaches the characteristic value source.
func (t *Tracker) SetValues(v Values) {
	t.mu.Lock()
	t.values = v
	t.mu.Unlock()
}

// RecordEdge counts a button edge.
func (t *Tracker) RecordEdge(ev logic.EdgeEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Button = ev.State
	t.snap.LastEdge = ev.Time
	switch ev.State {
	case logic.Pressed:
		t.snap.Counts.Presses++
	case logic.Released:
		t.snap.Counts.Releases++
	}
}

// RecordState stores the latest lifecycle announcement.
func (t *Tracker) RecordState(ev logic.StateEvent) {
	t.mu.Lock()
	t.snap.State = ev.State
	t.mu.Unlock()
}

// Connected implements peripheral.Observer.
func (t *Tracker) Connected(handle uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Connection = handle
	t.snap.HasConnection = true
	t.snap.Counts.Connections++
}

// Disconnected implements peripheral.Observer.
func (t *Tracker) Disconnected(handle uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.HasConnection && t.snap.Connection == handle {
		t.snap.HasConnection = false
	}
}

// AdvertiseFailed implements peripheral.Observer.
func (t *Tracker) AdvertiseFailed(kind peripheral.FailureKind, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if kind == peripheral.FailureTimeout {
		t.snap.Counts.AdvertiseTimeouts++
		return
	}
	t.snap.Counts.AdvertiseFailures++
	t.snap.LastFailure = err.Error()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the device state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	values := t.values
	t.mu.RUnlock()
	if values != nil {
		s.BatteryLevel = values.BatteryLevel()
		s.Foo = values.Foo()
	}
	s.Now = t.now()
	return s
}

// Follow records events from both buses until ctx is done or both
// subscriptions close.
func (t *Tracker) Follow(ctx context.Context, edges *bus.Subscriber[logic.EdgeEvent], states *bus.Subscriber[logic.StateEvent]) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = follow(ctx, edges, t.RecordEdge)
	}()
	go func() {
		defer wg.Done()
		errs[1] = follow(ctx, states, t.RecordState)
	}()
	wg.Wait()
	return errors.Join(errs...)
}

func follow[T any](ctx context.Context, sub *bus.Subscriber[T], record func(T)) error {
	if sub == nil {
		return nil
	}
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, bus.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		record(ev)
	}
}
