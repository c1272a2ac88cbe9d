package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakeButton is a test double driven by Press/Release calls.
type FakeButton struct {
	mu     sync.Mutex
	level  bool
	edges  chan Edge
	closed bool

	// LevelError, if set, will be returned by Level().
	LevelError error
}

// NewFakeButton creates a FakeButton with the given initial level.
func NewFakeButton(initial bool) *FakeButton {
	return &FakeButton{
		level: initial,
		edges: make(chan Edge, 64),
	}
}

// Level returns the scripted level.
func (f *FakeButton) Level() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LevelError != nil {
		return false, f.LevelError
	}
	return f.level, nil
}

// Edges returns the channel fed by Press, Release and Bounce.
func (f *FakeButton) Edges() <-chan Edge {
	return f.edges
}

// Press drives the line active at t.
func (f *FakeButton) Press(t time.Time) {
	f.set(true, t)
}

// Release drives the line inactive at t.
func (f *FakeButton) Release(t time.Time) {
	f.set(false, t)
}

// Emit delivers an edge without changing the sampled level.
// Useful for simulating bounces.
func (f *FakeButton) Emit(active bool, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.edges <- Edge{Active: active, Time: t}
}

// SetLevelError changes LevelError while the button is in use.
func (f *FakeButton) SetLevelError(err error) {
	f.mu.Lock()
	f.LevelError = err
	f.mu.Unlock()
}

// SetLevel changes the sampled level without delivering an edge.
func (f *FakeButton) SetLevel(active bool) {
	f.mu.Lock()
	f.level = active
	f.mu.Unlock()
}

func (f *FakeButton) set(active bool, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.level = active
	f.edges <- Edge{Active: active, Time: t}
}

// Close closes the edge channel.
func (f *FakeButton) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("already closed")
	}
	f.closed = true
	close(f.edges)
	return nil
}

// Transition is a recorded output change.
type Transition struct {
	High bool
	Time time.Time
}

// FakeOutput records every Set call.
type FakeOutput struct {
	mu          sync.Mutex
	transitions []Transition
	closed      bool
	notify      chan Transition

	// SetError, if set, will be returned by Set().
	SetError error
}

// NewFakeOutput creates a FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{notify: make(chan Transition, 256)}
}

// Set records the level.
func (f *FakeOutput) Set(high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	tr := Transition{High: high, Time: time.Now()}
	f.transitions = append(f.transitions, tr)
	select {
	case f.notify <- tr:
	default:
	}
	return nil
}

// Transitions returns a copy of the recorded transitions.
func (f *FakeOutput) Transitions() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Transition, len(f.transitions))
	copy(out, f.transitions)
	return out
}

// Changes delivers transitions as they are recorded.
func (f *FakeOutput) Changes() <-chan Transition {
	return f.notify
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
