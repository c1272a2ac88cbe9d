// Package link connects the lifecycle manager to the BlueZ stack.
package link

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/gatt"
	"github.com/sweeney/ble-button/internal/peripheral"
)

// eventBuffer bounds protocol events queued for a session.
const eventBuffer = 16

type notifyFunc func(h gatt.Handle, value []byte) error

// conn is one peer connection as seen by the session loop.
type conn struct {
	id     uint16
	addr   string
	events chan gatt.Event
	done   chan struct{}
	once   sync.Once
	notify notifyFunc

	claimed bool // returned by wait; guarded by slot.mu
}

func (c *conn) Events() <-chan gatt.Event { return c.events }
func (c *conn) Done() <-chan struct{}     { return c.done }
func (c *conn) Handle() uint16            { return c.id }

func (c *conn) Notify(h gatt.Handle, value []byte) error {
	select {
	case <-c.done:
		return gatt.ErrDisconnected
	default:
	}
	return c.notify(h, value)
}

func (c *conn) close() {
	c.once.Do(func() { close(c.done) })
}

// slot admits at most one live connection and hands it to Advertise.
type slot struct {
	log     logrus.FieldLogger
	notify  notifyFunc
	initial []gatt.Event

	mu      sync.Mutex
	live    *conn
	down    bool
	nextID  uint16
	pending chan *conn
}

// newSlot creates a slot. initial events are queued on every new
// connection before any peer traffic.
func newSlot(notify notifyFunc, initial []gatt.Event, log logrus.FieldLogger) *slot {
	return &slot{
		log:     log,
		notify:  notify,
		initial: initial,
		pending: make(chan *conn, 1),
	}
}

func (s *slot) connected(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		s.log.Warnf("rejecting %s: shutting down", addr)
		return
	}
	if s.live != nil {
		s.log.Warnf("rejecting %s: already connected to %s", addr, s.live.addr)
		return
	}

	s.nextID++
	c := &conn{
		id:     s.nextID,
		addr:   addr,
		events: make(chan gatt.Event, eventBuffer),
		done:   make(chan struct{}),
		notify: s.notify,
	}
	for _, ev := range s.initial {
		c.events <- ev
	}
	s.live = c

	// With no live connection anything still pending has disconnected.
	select {
	case stale := <-s.pending:
		s.log.Debugf("discarding stale connection from %s", stale.addr)
	default:
	}

	select {
	case s.pending <- c:
	default:
		s.log.Warnf("dropping connection from %s: nobody waiting", addr)
	}
}

func (s *slot) disconnected(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil || s.live.addr != addr {
		return
	}
	s.live.close()
	s.live = nil
}

// shutdown ends the live session and refuses later peers.
func (s *slot) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = true
	if s.live != nil {
		s.live.close()
		s.live = nil
	}
}

// write routes a peer write to the live session.
func (s *slot) write(h gatt.Handle, value []byte) {
	s.mu.Lock()
	c := s.live
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case c.events <- gatt.Event{Kind: gatt.EventWrite, Handle: h, Value: append([]byte(nil), value...)}:
	default:
		s.log.Warnf("write on handle %d dropped: session busy", h)
	}
}

// wait blocks until a peer connects or ctx is done.
func (s *slot) wait(ctx context.Context) (*conn, error) {
	s.mu.Lock()
	busy := s.live != nil && s.live.claimed && !closed(s.live)
	s.mu.Unlock()
	if busy {
		return nil, peripheral.ErrNoFreeConnection
	}

	for {
		select {
		case c := <-s.pending:
			if closed(c) {
				continue
			}
			s.mu.Lock()
			c.claimed = true
			s.mu.Unlock()
			return c, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func closed(c *conn) bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
