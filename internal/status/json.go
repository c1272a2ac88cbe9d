package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Button        string         `json:"button"`
	LastEdge      string         `json:"last_edge,omitempty"`
	Peripheral    PeripheralJSON `json:"peripheral"`
	Values        ValuesJSON     `json:"values"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"event_counts"`
	Config        ConfigJSON     `json:"config"`
}

// PeripheralJSON reports the radio lifecycle.
type PeripheralJSON struct {
	State       string  `json:"state"`
	Connection  *uint16 `json:"connection,omitempty"`
	LastFailure string  `json:"last_failure,omitempty"`
}

// ValuesJSON reports stored characteristic values.
type ValuesJSON struct {
	BatteryLevel uint8  `json:"battery_level"`
	Foo          uint16 `json:"foo"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Presses           int `json:"presses"`
	Releases          int `json:"releases"`
	Connections       int `json:"connections"`
	AdvertiseTimeouts int `json:"advertise_timeouts"`
	AdvertiseFailures int `json:"advertise_failures"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceName         string `json:"device_name"`
	AdvertiseTimeoutMs int64  `json:"advertise_timeout_ms"`
	DebounceMs         int64  `json:"debounce_ms"`
	Broker             string `json:"broker,omitempty"`
	HTTPAddr           string `json:"http_addr,omitempty"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Button: orUnknown(string(snap.Button)),
		Peripheral: PeripheralJSON{
			State:       orUnknown(string(snap.State)),
			LastFailure: snap.LastFailure,
		},
		Values:        ValuesJSON{BatteryLevel: snap.BatteryLevel, Foo: snap.Foo},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Presses:           snap.Counts.Presses,
			Releases:          snap.Counts.Releases,
			Connections:       snap.Counts.Connections,
			AdvertiseTimeouts: snap.Counts.AdvertiseTimeouts,
			AdvertiseFailures: snap.Counts.AdvertiseFailures,
		},
		Config: ConfigJSON{
			DeviceName:         snap.Config.DeviceName,
			AdvertiseTimeoutMs: snap.Config.AdvertiseTimeoutMs,
			DebounceMs:         snap.Config.DebounceMs,
			Broker:             snap.Config.Broker,
			HTTPAddr:           snap.Config.HTTPAddr,
		},
	}
	if !snap.LastEdge.IsZero() {
		inner.LastEdge = snap.LastEdge.UTC().Format(time.RFC3339Nano)
	}
	if snap.HasConnection {
		h := snap.Connection
		inner.Peripheral.Connection = &h
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
