// Package gpio provides button input and digital output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Edge is a raw transition observed on an input line.
type Edge struct {
	Active bool // logical level after the edge (true = pressed)
	Time   time.Time
}

// Button is a digital input that reports edge transitions.
type Button interface {
	// Level returns the current logical level (true = active/pressed).
	Level() (bool, error)

	// Edges delivers raw transitions in the order they were seen.
	// No debounce is applied.
	Edges() <-chan Edge

	// Close releases GPIO resources. Edges is closed afterwards.
	Close() error
}

// Output is a digital output line.
type Output interface {
	// Set drives the line high (true) or low.
	Set(high bool) error

	// Close releases GPIO resources.
	Close() error
}
