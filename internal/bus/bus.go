// Package bus provides a bounded publish/subscribe channel with one queue
// per subscriber.
//
// Publish suspends until every registered subscriber accepted the value, so
// the slowest subscriber gates publishing for everyone. Subscribers only see
// values published after they joined; there is no replay.
package bus

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by Next after Unsubscribe.
	ErrClosed = errors.New("bus: subscriber closed")
	// ErrTooManySubscribers is returned when the subscriber limit is reached.
	ErrTooManySubscribers = errors.New("bus: too many subscribers")
	// ErrTooManyPublishers is returned when the publisher limit is reached.
	ErrTooManyPublishers = errors.New("bus: too many publishers")
)

type options struct {
	maxSubscribers int
	maxPublishers  int
}

// Option configures a Bus.
type Option func(*options)

// WithMaxSubscribers bounds the number of live subscribers (0 = unbounded).
func WithMaxSubscribers(n int) Option {
	return func(o *options) { o.maxSubscribers = n }
}

// WithMaxPublishers bounds the number of live publisher handles (0 = unbounded).
func WithMaxPublishers(n int) Option {
	return func(o *options) { o.maxPublishers = n }
}

// Bus is a named topic. Create it once at startup and pass it by reference.
type Bus[T any] struct {
	name     string
	capacity int
	opts     options

	// pubMu serializes publishes so all subscribers observe the same order.
	pubMu sync.Mutex

	mu         sync.Mutex
	subs       []*Subscriber[T]
	publishers int
}

// New creates a bus whose subscribers each buffer up to capacity values.
func New[T any](name string, capacity int, opts ...Option) *Bus[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Bus[T]{name: name, capacity: capacity}
	for _, opt := range opts {
		opt(&b.opts)
	}
	return b
}

// Name returns the topic name.
func (b *Bus[T]) Name() string {
	return b.name
}

// Subscribers returns the number of live subscribers.
func (b *Bus[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscribe registers a new subscriber with its own bounded queue.
func (b *Bus[T]) Subscribe() (*Subscriber[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opts.maxSubscribers > 0 && len(b.subs) >= b.opts.maxSubscribers {
		return nil, ErrTooManySubscribers
	}

	s := &Subscriber[T]{
		bus:   b,
		queue: make(chan T, b.capacity),
		done:  make(chan struct{}),
	}
	b.subs = append(b.subs, s)
	return s, nil
}

// Publisher returns a handle allowed to publish on this bus.
func (b *Bus[T]) Publisher() (*Publisher[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opts.maxPublishers > 0 && b.publishers >= b.opts.maxPublishers {
		return nil, ErrTooManyPublishers
	}
	b.publishers++
	return &Publisher[T]{bus: b}, nil
}

func (b *Bus[T]) snapshot() []*Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]*Subscriber[T], len(b.subs))
	copy(subs, b.subs)
	return subs
}

func (b *Bus[T]) remove(s *Subscriber[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus[T]) publish(ctx context.Context, v T) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	for _, s := range b.snapshot() {
		select {
		case s.queue <- v:
			continue
		default:
		}

		// Queue full: wait for this subscriber to drain.
		select {
		case s.queue <- v:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Bus[T]) tryPublish(v T) bool {
	if !b.pubMu.TryLock() {
		return false
	}
	defer b.pubMu.Unlock()

	subs := b.snapshot()
	// Only publishers fill queues and we hold pubMu, so room can only grow
	// between this check and the sends below.
	for _, s := range subs {
		if len(s.queue) == cap(s.queue) {
			return false
		}
	}
	for _, s := range subs {
		select {
		case s.queue <- v:
		case <-s.done:
		}
	}
	return true
}

// Publisher publishes values on a bus.
type Publisher[T any] struct {
	bus  *Bus[T]
	once sync.Once
}

// Publish delivers v to every current subscriber, waiting for queue space.
// It only fails when ctx is done; some subscribers may then have received v.
func (p *Publisher[T]) Publish(ctx context.Context, v T) error {
	return p.bus.publish(ctx, v)
}

// TryPublish delivers v only if every subscriber has room right now.
// It never blocks and reports whether v was delivered.
func (p *Publisher[T]) TryPublish(v T) bool {
	return p.bus.tryPublish(v)
}

// Close releases the publisher slot.
func (p *Publisher[T]) Close() {
	p.once.Do(func() {
		p.bus.mu.Lock()
		p.bus.publishers--
		p.bus.mu.Unlock()
	})
}

// Subscriber receives values published after it joined.
type Subscriber[T any] struct {
	bus   *Bus[T]
	queue chan T
	done  chan struct{}
	once  sync.Once
}

// Next waits for the next value in publish order.
func (s *Subscriber[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case v := <-s.queue:
		return v, nil
	case <-s.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Len returns the number of queued values.
func (s *Subscriber[T]) Len() int {
	return len(s.queue)
}

// Unsubscribe detaches the subscriber. Publishers blocked on its queue are released.
func (s *Subscriber[T]) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
}
