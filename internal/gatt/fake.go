package gatt

import (
	"context"
	"sync"
)

// Notification is one notification sent to the peer.
type Notification struct {
	Handle Handle
	Value  []byte
}

// FakeConn is a scripted peer for tests.
type FakeConn struct {
	events   chan Event
	done     chan struct{}
	once     sync.Once
	notified chan Notification

	mu            sync.Mutex
	notifications []Notification

	// NotifyError, if set, is returned by Notify.
	NotifyError error

	// ID is reported as the connection handle.
	ID uint16
}

// NewFakeConn creates a connected fake peer.
func NewFakeConn(id uint16) *FakeConn {
	return &FakeConn{
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		notified: make(chan Notification, 64),
		ID:       id,
	}
}

func (c *FakeConn) Events() <-chan Event  { return c.events }
func (c *FakeConn) Done() <-chan struct{} { return c.done }
func (c *FakeConn) Handle() uint16        { return c.ID }

// Notify records the notification.
func (c *FakeConn) Notify(h Handle, value []byte) error {
	if c.NotifyError != nil {
		return c.NotifyError
	}
	n := Notification{Handle: h, Value: append([]byte(nil), value...)}
	c.mu.Lock()
	c.notifications = append(c.notifications, n)
	c.mu.Unlock()
	select {
	case c.notified <- n:
	default:
	}
	return nil
}

// Notifications returns everything sent so far.
func (c *FakeConn) Notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.notifications...)
}

// Notified delivers each notification as it is sent.
func (c *FakeConn) Notified() <-chan Notification { return c.notified }

// Write simulates a peer write.
func (c *FakeConn) Write(h Handle, value []byte) {
	c.events <- Event{Kind: EventWrite, Handle: h, Value: value}
}

// Subscribe simulates a CCCD write.
func (c *FakeConn) Subscribe(h Handle, notifications, indications bool) {
	c.events <- Event{Kind: EventSubscribe, Handle: h, Notifications: notifications, Indications: indications}
}

// Read simulates a peer read and waits for the served value.
func (c *FakeConn) Read(ctx context.Context, h Handle) ([]byte, error) {
	reply := make(chan []byte, 1)
	select {
	case c.events <- Event{Kind: EventRead, Handle: h, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect simulates the peer going away. Safe to call more than once.
func (c *FakeConn) Disconnect() {
	c.once.Do(func() { close(c.done) })
}
