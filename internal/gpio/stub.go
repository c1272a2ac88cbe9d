//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// NewRealButton returns an error on non-Linux platforms.
func NewRealButton(chip string, pin int) (*RealButton, error) {
	return nil, errUnsupported
}

// Level is not implemented on non-Linux platforms.
func (b *RealButton) Level() (bool, error) {
	return false, errUnsupported
}

// Edges returns nil on non-Linux platforms.
func (b *RealButton) Edges() <-chan Edge {
	return nil
}

// Dropped always returns 0 on non-Linux platforms.
func (b *RealButton) Dropped() uint64 {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (b *RealButton) Close() error {
	return nil
}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (o *RealOutput) Set(high bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}
