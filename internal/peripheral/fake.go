package peripheral

import (
	"context"
	"sync"

	"github.com/sweeney/ble-button/internal/adv"
)

// Outcome scripts one Advertise call on a FakeLink. A zero Outcome blocks
// until the advertise context ends.
type Outcome struct {
	Conn Conn
	Err  error
}

// FakeLink replays scripted advertise outcomes.
type FakeLink struct {
	mu         sync.Mutex
	outcomes   []Outcome
	calls      int
	current    Conn
	violations int
	payloads   []*adv.Payload
	advertised chan struct{}
}

// NewFakeLink creates a link that returns outcomes in order, then blocks.
func NewFakeLink(outcomes ...Outcome) *FakeLink {
	return &FakeLink{outcomes: outcomes, advertised: make(chan struct{}, 256)}
}

// Push appends outcomes.
func (l *FakeLink) Push(outcomes ...Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcomes...)
}

// Advertise pops the next outcome. Advertising while a previous connection
// is still open counts as a violation and fails with ErrNoFreeConnection.
func (l *FakeLink) Advertise(ctx context.Context, payload *adv.Payload) (Conn, error) {
	l.mu.Lock()
	l.calls++
	l.payloads = append(l.payloads, payload)
	if l.current != nil && !isDone(l.current) {
		l.violations++
		l.mu.Unlock()
		return nil, ErrNoFreeConnection
	}
	var next Outcome
	if len(l.outcomes) > 0 {
		next = l.outcomes[0]
		l.outcomes = l.outcomes[1:]
	}
	if next.Conn != nil {
		l.current = next.Conn
	}
	l.mu.Unlock()

	select {
	case l.advertised <- struct{}{}:
	default:
	}

	if next.Conn == nil && next.Err == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return next.Conn, next.Err
}

// Advertised signals each Advertise call.
func (l *FakeLink) Advertised() <-chan struct{} { return l.advertised }

// Calls returns the number of Advertise calls.
func (l *FakeLink) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Violations counts advertise attempts made while a connection was open.
func (l *FakeLink) Violations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.violations
}

// Payloads returns the payloads passed to Advertise.
func (l *FakeLink) Payloads() []*adv.Payload {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*adv.Payload(nil), l.payloads...)
}

func isDone(c Conn) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}
