//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// edgeBuffer bounds edges queued between the kernel event handler and the watcher.
const edgeBuffer = 32

// RealButton reads a push button wired to ground with the internal pull-up.
// The line is requested active-low, so pressed reads as logical 1.
type RealButton struct {
	line *gpiocdev.Line

	mu      sync.Mutex
	edges   chan Edge
	closed  bool
	dropped atomic.Uint64
}

// NewRealButton requests the button line on the given chip.
func NewRealButton(chip string, pin int) (*RealButton, error) {
	b := &RealButton{edges: make(chan Edge, edgeBuffer)}

	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.AsActiveLow,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(b.handle))
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	b.line = line
	return b, nil
}

// handle runs on the gpiocdev event goroutine and must not block.
// Edge types are reported in logical terms because the line is active-low.
func (b *RealButton) handle(evt gpiocdev.LineEvent) {
	e := Edge{
		Active: evt.Type == gpiocdev.LineEventRisingEdge,
		Time:   time.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.edges <- e:
	default:
		b.dropped.Add(1)
	}
}

// Level returns the logical level (true = pressed).
func (b *RealButton) Level() (bool, error) {
	v, err := b.line.Value()
	if err != nil {
		return false, fmt.Errorf("read button pin: %w", err)
	}
	return v == 1, nil
}

// Edges delivers raw transitions.
func (b *RealButton) Edges() <-chan Edge {
	return b.edges
}

// Dropped returns how many edges were discarded because the queue was full.
func (b *RealButton) Dropped() uint64 {
	return b.dropped.Load()
}

// Close releases the line.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing.
func (b *RealButton) Close() error {
	var errs []error

	if b.line != nil {
		if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure button pin: %w", err))
		}
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button pin: %w", err))
		}
	}

	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.edges)
	}
	b.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput drives an LED or similar load.
type RealOutput struct {
	line *gpiocdev.Line
}

// NewRealOutput requests pin as an output, initially low.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealOutput{line: line}, nil
}

// Set drives the line.
func (o *RealOutput) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set output pin: %w", err)
	}
	return nil
}

// Close drives the line low and returns it to input with pull-down.
func (o *RealOutput) Close() error {
	var errs []error

	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive output low: %w", err))
	}
	if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure output pin: %w", err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output pin: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
