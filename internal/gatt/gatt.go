// Package gatt declares the exposed services and runs the per-connection
// dispatch loop for remote reads, writes and subscription changes.
package gatt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Properties is the capability set of a characteristic.
type Properties uint8

const (
	PropRead Properties = 1 << iota
	PropWrite
	PropNotify
	PropIndicate
)

// Has reports whether all bits of q are set.
func (p Properties) Has(q Properties) bool {
	return p&q == q
}

func (p Properties) String() string {
	var parts []string
	for _, f := range []struct {
		p    Properties
		name string
	}{{PropRead, "read"}, {PropWrite, "write"}, {PropNotify, "notify"}, {PropIndicate, "indicate"}} {
		if p.Has(f.p) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Handle identifies a characteristic value attribute.
type Handle uint16

// Characteristic describes one declared characteristic.
type Characteristic struct {
	UUID       uuid.UUID
	Properties Properties
	Size       int // value size in bytes
	Handle     Handle
}

// Service groups characteristics under one identifier.
type Service struct {
	UUID            uuid.UUID
	Characteristics []Characteristic
}

// EventKind classifies inbound protocol events.
type EventKind int

const (
	EventWrite EventKind = iota + 1
	EventRead
	EventSubscribe // CCCD write
)

func (k EventKind) String() string {
	switch k {
	case EventWrite:
		return "write"
	case EventRead:
		return "read"
	case EventSubscribe:
		return "cccd-write"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is an inbound protocol event delivered by the link.
type Event struct {
	Kind   EventKind
	Handle Handle

	// Value is set for EventWrite.
	Value []byte

	// Notifications and Indications are set for EventSubscribe.
	Notifications bool
	Indications   bool

	// Reply, if set on EventRead, receives the stored value.
	Reply chan<- []byte
}

// Conn is the link to the connected peer, borrowed for one session.
type Conn interface {
	// Events delivers inbound protocol events in arrival order.
	Events() <-chan Event

	// Notify sends a notification for h.
	Notify(h Handle, value []byte) error

	// Done is closed when the peer disconnects.
	Done() <-chan struct{}
}

// ErrDisconnected is returned by Run when the peer went away.
var ErrDisconnected = errors.New("gatt: disconnected")

// NotificationReason explains a NotificationError.
type NotificationReason string

const (
	ReasonNotSubscribed NotificationReason = "notifications disabled"
	ReasonDisconnected  NotificationReason = "disconnected"
	ReasonLink          NotificationReason = "link error"
)

// NotificationError is returned when a notification cannot be sent.
type NotificationError struct {
	Handle Handle
	Reason NotificationReason
	Err    error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notify handle %d: %s: %v", e.Handle, e.Reason, e.Err)
	}
	return fmt.Sprintf("notify handle %d: %s", e.Handle, e.Reason)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
