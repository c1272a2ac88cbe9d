package mqtt

import (
	"sync"

	"github.com/sweeney/ble-button/internal/logic"
)

// FakePublisher records published events for test assertions. Safe for
// concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	edges    []logic.EdgeEvent
	states   []logic.StateEvent
	system   []SystemEvent
	payloads [][]byte
	closed   bool

	// PublishError, if set, is returned by every Publish method.
	PublishError error

	// Connected controls IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishEdge(event logic.EdgeEvent) error {
	payload, err := FormatEdgePayload(event)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.edges = append(f.edges, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *FakePublisher) PublishState(event logic.StateEvent) error {
	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.states = append(f.states, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.system = append(f.system, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

// Edges returns the recorded button edges.
func (f *FakePublisher) Edges() []logic.EdgeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.EdgeEvent(nil), f.edges...)
}

// States returns the recorded state announcements.
func (f *FakePublisher) States() []logic.StateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]logic.StateEvent(nil), f.states...)
}

// SystemEvents returns the recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.system...)
}

// Payloads returns every payload in publish order.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// Close marks the publisher closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// IsConnected reports the Connected field.
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}
