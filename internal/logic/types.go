// Package logic contains the pure domain types and state machines of the device.
// This package has NO external dependencies (no GPIO, radio, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// ButtonState is the classified state of the button.
type ButtonState string

const (
	Pressed  ButtonState = "PRESSED"
	Released ButtonState = "RELEASED"
)

// SystemState is announced by the connection lifecycle manager.
// It is never queried, only published.
type SystemState string

const (
	Sleeping    SystemState = "SLEEPING"
	Advertising SystemState = "ADVERTISING"
	Connected   SystemState = "CONNECTED"
)

// EdgeEvent is a timestamped button transition. Immutable once published.
type EdgeEvent struct {
	Time  time.Time
	State ButtonState
}

// StateEvent is a timestamped system state announcement.
type StateEvent struct {
	Time  time.Time
	State SystemState
}

// StateFor maps a logical pin level to a button state.
// true = active (pressed).
func StateFor(active bool) ButtonState {
	if active {
		return Pressed
	}
	return Released
}

// EventCounts tracks observed events since startup.
type EventCounts struct {
	Presses           int
	Releases          int
	Connections       int
	AdvertiseTimeouts int
	AdvertiseFailures int
}
