package pwm

import (
	"sync"
	"time"
)

// Sample is one recorded generator change. Disabled samples have Level 0.
type Sample struct {
	Level    uint16
	Disabled bool
	Time     time.Time
}

// FakeGenerator records duty changes for test assertions.
type FakeGenerator struct {
	mu      sync.Mutex
	samples []Sample
	enabled bool
	closed  bool
	notify  chan Sample

	// SetError, if set, will be returned by SetDuty.
	SetError error
}

// NewFakeGenerator creates a FakeGenerator.
func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{notify: make(chan Sample, 1024)}
}

// SetDuty records level.
func (f *FakeGenerator) SetDuty(level uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.enabled = true
	f.record(Sample{Level: level, Time: time.Now()})
	return nil
}

// Disable records a silenced output.
func (f *FakeGenerator) Disable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
	f.record(Sample{Disabled: true, Time: time.Now()})
	return nil
}

// Close disables and marks the generator closed.
func (f *FakeGenerator) Close() error {
	f.Disable()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakeGenerator) record(s Sample) {
	f.samples = append(f.samples, s)
	select {
	case f.notify <- s:
	default:
	}
}

// Samples returns a copy of everything recorded.
func (f *FakeGenerator) Samples() []Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sample, len(f.samples))
	copy(out, f.samples)
	return out
}

// Changes delivers samples as they are recorded.
func (f *FakeGenerator) Changes() <-chan Sample {
	return f.notify
}

// Enabled reports whether the output is currently on.
func (f *FakeGenerator) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Closed reports whether Close was called.
func (f *FakeGenerator) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
