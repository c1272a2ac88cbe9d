// Package peripheral runs the advertise/connect/serve lifecycle.
package peripheral

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/ble-button/internal/adv"
	"github.com/sweeney/ble-button/internal/gatt"
)

// Conn is a live connection to one peer.
type Conn interface {
	gatt.Conn

	// Handle identifies the connection on the link.
	Handle() uint16
}

// Link is the radio collaborator.
type Link interface {
	// Advertise broadcasts payload until a peer connects or ctx is done.
	Advertise(ctx context.Context, payload *adv.Payload) (Conn, error)
}

var (
	// ErrAdvertiseTimeout means no peer connected within the timeout.
	ErrAdvertiseTimeout = errors.New("advertise timed out")

	// ErrNoFreeConnection means the link has no connection resources left.
	ErrNoFreeConnection = errors.New("no free connection")
)

// RawError is a low-level link fault.
type RawError struct {
	Code uint32
}

func (e *RawError) Error() string {
	return fmt.Sprintf("link fault 0x%x", e.Code)
}

// FailureKind classifies an advertise failure.
type FailureKind int

const (
	FailureTimeout FailureKind = iota + 1
	FailureNoFreeConnection
	FailureRawFault
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureNoFreeConnection:
		return "no_free_connection"
	case FailureRawFault:
		return "raw_fault"
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

// Classify maps an advertise error to its kind. Unknown errors count as
// raw faults.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrAdvertiseTimeout):
		return FailureTimeout
	case errors.Is(err, ErrNoFreeConnection):
		return FailureNoFreeConnection
	}
	return FailureRawFault
}
