package peripheral

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/adv"
	"github.com/sweeney/ble-button/internal/bus"
	"github.com/sweeney/ble-button/internal/gatt"
	"github.com/sweeney/ble-button/internal/logic"
)

// SleepHook is asked to enter low power after an advertise timeout.
type SleepHook interface {
	Sleep(ctx context.Context) error
}

// SleepFunc adapts a function to SleepHook.
type SleepFunc func(ctx context.Context) error

func (f SleepFunc) Sleep(ctx context.Context) error { return f(ctx) }

// NoSleep keeps the process awake and retries immediately.
var NoSleep SleepHook = SleepFunc(func(context.Context) error { return nil })

// Observer is told about lifecycle transitions.
type Observer interface {
	Connected(handle uint16)
	Disconnected(handle uint16)
	AdvertiseFailed(kind FailureKind, err error)
}

// Config holds lifecycle tuning.
type Config struct {
	AdvertiseTimeout time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

// Manager owns the connection and alternates between advertising and
// serving one peer.
type Manager struct {
	link     Link
	server   *gatt.Server
	payload  *adv.Payload
	states   *bus.Publisher[logic.StateEvent]
	cfg      Config
	backoff  Backoff
	log      logrus.FieldLogger
	now      func() time.Time
	sleep    SleepHook
	observer Observer

	mu   sync.Mutex
	live *uint16
}

// Option configures a Manager.
type Option func(*Manager)

// WithSleepHook sets the hook called after an advertise timeout.
func WithSleepHook(h SleepHook) Option {
	return func(m *Manager) { m.sleep = h }
}

// WithObserver registers a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithClock overrides time.Now for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager. states may be nil.
func NewManager(link Link, server *gatt.Server, payload *adv.Payload, states *bus.Publisher[logic.StateEvent], cfg Config, log logrus.FieldLogger, opts ...Option) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{
		link:    link,
		server:  server,
		payload: payload,
		states:  states,
		cfg:     cfg,
		backoff: Backoff{Initial: cfg.BackoffInitial, Max: cfg.BackoffMax},
		log:     log.WithField("task", "peripheral"),
		now:     time.Now,
		sleep:   NoSleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Live returns the handle of the current connection, if any.
func (m *Manager) Live() (uint16, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return 0, false
	}
	return *m.live, true
}

// Run loops until ctx is done, which is the only way it returns.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if err := m.announce(ctx, logic.Advertising); err != nil {
			return err
		}

		conn, err := m.advertise(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := m.failed(ctx, err); err != nil {
				return err
			}
			continue
		}

		m.backoff.Reset()
		if err := m.serve(ctx, conn); err != nil {
			return err
		}
	}
}

func (m *Manager) advertise(ctx context.Context) (Conn, error) {
	actx, cancel := context.WithTimeout(ctx, m.cfg.AdvertiseTimeout)
	defer cancel()

	m.log.Debug("advertising")
	conn, err := m.link.Advertise(actx, m.payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrAdvertiseTimeout
		}
		return nil, err
	}
	return conn, nil
}

func (m *Manager) failed(ctx context.Context, err error) error {
	kind := Classify(err)
	if m.observer != nil {
		m.observer.AdvertiseFailed(kind, err)
	}

	if kind == FailureTimeout {
		m.log.Info("advertise timed out")
		if err := m.announce(ctx, logic.Sleeping); err != nil {
			return err
		}
		if err := m.sleep.Sleep(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Warnf("sleep: %v", err)
		}
		return nil
	}

	d := m.backoff.Next()
	m.log.WithField("kind", kind).Warnf("advertise error: %v (retry in %s)", err, d)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (m *Manager) serve(ctx context.Context, conn Conn) error {
	handle := conn.Handle()
	m.mu.Lock()
	m.live = &handle
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.live = nil
		m.mu.Unlock()
	}()

	m.log.WithField("conn", handle).Info("connected")
	if m.observer != nil {
		m.observer.Connected(handle)
	}
	if err := m.announce(ctx, logic.Connected); err != nil {
		return err
	}

	err := m.server.Run(ctx, conn)

	m.log.WithField("conn", handle).Info("disconnected")
	if m.observer != nil {
		m.observer.Disconnected(handle)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, gatt.ErrDisconnected) {
		m.log.Warnf("session ended: %v", err)
	}
	return nil
}

func (m *Manager) announce(ctx context.Context, state logic.SystemState) error {
	if m.states == nil {
		return nil
	}
	return m.states.Publish(ctx, logic.StateEvent{Time: m.now(), State: state})
}
