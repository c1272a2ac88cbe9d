// Package mqtt mirrors button and lifecycle events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ble-button/internal/logic"
)

// Topics.
const (
	TopicButton = "ble-button/button/events"
	TopicState  = "ble-button/peripheral/state"
	TopicSystem = "ble-button/system"
)

// timeFormat keeps milliseconds; edges closer than a second apart matter.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishEdge sends a button edge.
	PublishEdge(event logic.EdgeEvent) error

	// PublishState sends a lifecycle state announcement.
	PublishState(event logic.StateEvent) error

	// PublishSystem sends a process lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a process lifecycle event (startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g. "STARTUP", "SHUTDOWN"
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // if set, sent as-is
	Retained   bool
}

// EdgePayload is the message body for TopicButton.
type EdgePayload struct {
	Button struct {
		Timestamp string `json:"timestamp"`
		State     string `json:"state"`
	} `json:"button"`
}

// StatePayload is the message body for TopicState.
type StatePayload struct {
	Peripheral struct {
		Timestamp string `json:"timestamp"`
		State     string `json:"state"`
	} `json:"peripheral"`
}

// SystemPayload is the message body for simple system events.
type SystemPayload struct {
	System struct {
		Timestamp string `json:"timestamp,omitempty"`
		Event     string `json:"event"`
		Reason    string `json:"reason,omitempty"`
	} `json:"system"`
}

// FormatEdgePayload renders a button edge.
func FormatEdgePayload(event logic.EdgeEvent) ([]byte, error) {
	var p EdgePayload
	p.Button.Timestamp = event.Time.UTC().Format(timeFormat)
	p.Button.State = string(event.State)
	return json.Marshal(p)
}

// FormatStatePayload renders a lifecycle state announcement.
func FormatStatePayload(event logic.StateEvent) ([]byte, error) {
	var p StatePayload
	p.Peripheral.Timestamp = event.Time.UTC().Format(timeFormat)
	p.Peripheral.State = string(event.State)
	return json.Marshal(p)
}

// FormatSystemPayload renders a system event. RawPayload wins if set.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	var p SystemPayload
	if !event.Timestamp.IsZero() {
		p.System.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	p.System.Event = event.Event
	p.System.Reason = event.Reason
	return json.Marshal(p)
}

// WillPayload is the last-will message the broker publishes if the
// connection drops uncleanly.
func WillPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	return data
}
