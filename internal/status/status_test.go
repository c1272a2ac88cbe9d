package status

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/ble-button/internal/bus"
	"github.com/sweeney/ble-button/internal/logic"
	"github.com/sweeney/ble-button/internal/peripheral"
)

type fixedValues struct {
	battery uint8
	foo     uint16
}

func (v fixedValues) BatteryLevel() uint8 { return v.battery }
func (v fixedValues) Foo() uint16         { return v.foo }

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{DeviceName: "BLE-Button", AdvertiseTimeoutMs: 10000, HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.DeviceName != "BLE-Button" {
		t.Errorf("Config.DeviceName: got %q", snap.Config.DeviceName)
	}
	if snap.HasConnection {
		t.Error("expected no connection initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestRecordEdge(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.RecordEdge(logic.EdgeEvent{Time: at, State: logic.Pressed})
	tr.RecordEdge(logic.EdgeEvent{Time: at.Add(150 * time.Millisecond), State: logic.Released})
	tr.RecordEdge(logic.EdgeEvent{Time: at.Add(300 * time.Millisecond), State: logic.Pressed})

	snap := tr.Snapshot()
	if snap.Button != logic.Pressed {
		t.Errorf("Button: got %q, want PRESSED", snap.Button)
	}
	if !snap.LastEdge.Equal(at.Add(300 * time.Millisecond)) {
		t.Errorf("LastEdge: got %v", snap.LastEdge)
	}
	if snap.Counts.Presses != 2 || snap.Counts.Releases != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
}

func TestObserver(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var _ peripheral.Observer = tr

	tr.AdvertiseFailed(peripheral.FailureTimeout, peripheral.ErrAdvertiseTimeout)
	tr.AdvertiseFailed(peripheral.FailureRawFault, &peripheral.RawError{Code: 8})
	tr.Connected(3)

	snap := tr.Snapshot()
	if !snap.HasConnection || snap.Connection != 3 {
		t.Errorf("expected live connection 3, got %v/%d", snap.HasConnection, snap.Connection)
	}
	if snap.Counts.Connections != 1 || snap.Counts.AdvertiseTimeouts != 1 || snap.Counts.AdvertiseFailures != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if snap.LastFailure != "link fault 0x8" {
		t.Errorf("LastFailure: got %q", snap.LastFailure)
	}

	tr.Disconnected(2) // stale handle
	if !tr.Snapshot().HasConnection {
		t.Error("stale disconnect should not clear the live connection")
	}
	tr.Disconnected(3)
	if tr.Snapshot().HasConnection {
		t.Error("expected no connection after disconnect")
	}
}

func TestSnapshotReadsValues(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetValues(fixedValues{battery: 80, foo: 42})

	snap := tr.Snapshot()
	if snap.BatteryLevel != 80 || snap.Foo != 42 {
		t.Errorf("values: got %d/%d", snap.BatteryLevel, snap.Foo)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordEdge(logic.EdgeEvent{Time: time.Now(), State: logic.Pressed})

	snap := tr.Snapshot()
	tr.RecordEdge(logic.EdgeEvent{Time: time.Now(), State: logic.Released})

	if snap.Button != logic.Pressed {
		t.Error("snapshot should not change after further updates")
	}
}

func TestUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(2*time.Hour + 3*time.Second)}
	if got := snap.Uptime(); got != 2*time.Hour+3*time.Second {
		t.Errorf("Uptime: got %v", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.RecordEdge(logic.EdgeEvent{Time: time.Now(), State: logic.StateFor(j%2 == 0)})
				tr.Connected(uint16(j))
				tr.SetMQTTConnected(j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Counts.Presses + tr.Snapshot().Counts.Releases; got != 1000 {
		t.Errorf("expected 1000 edges, got %d", got)
	}
}

func TestFollow(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	edges := bus.New[logic.EdgeEvent]("button", 4)
	states := bus.New[logic.StateEvent]("state", 4)
	edgeSub, _ := edges.Subscribe()
	stateSub, _ := states.Subscribe()
	edgePub, _ := edges.Publisher()
	statePub, _ := states.Publisher()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Follow(ctx, edgeSub, stateSub) }()

	edgePub.Publish(ctx, logic.EdgeEvent{Time: time.Now(), State: logic.Pressed})
	statePub.Publish(ctx, logic.StateEvent{Time: time.Now(), State: logic.Connected})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		snap := tr.Snapshot()
		if snap.Button == logic.Pressed && snap.State == logic.Connected {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := tr.Snapshot()
	if snap.Button != logic.Pressed || snap.State != logic.Connected {
		t.Fatalf("events not recorded: %+v", snap)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Button:        logic.Released,
		State:         logic.Connected,
		Connection:    1,
		HasConnection: true,
		Counts:        logic.EventCounts{Presses: 4, Releases: 4, Connections: 2},
		BatteryLevel:  90,
		Foo:           41,
		StartTime:     start,
		Now:           start.Add(90 * time.Second),
		Config:        Config{DeviceName: "BLE-Button", AdvertiseTimeoutMs: 10000},
	}

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &sj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := sj.Status
	if s.Button != "RELEASED" || s.Peripheral.State != "CONNECTED" {
		t.Errorf("states: got %q/%q", s.Button, s.Peripheral.State)
	}
	if s.Peripheral.Connection == nil || *s.Peripheral.Connection != 1 {
		t.Errorf("connection: got %v", s.Peripheral.Connection)
	}
	if s.Values.BatteryLevel != 90 || s.Values.Foo != 41 {
		t.Errorf("values: got %+v", s.Values)
	}
	if s.UptimeSeconds != 90 {
		t.Errorf("uptime: got %d", s.UptimeSeconds)
	}
	if s.Counts.Presses != 4 || s.Counts.Connections != 2 {
		t.Errorf("counts: got %+v", s.Counts)
	}
	if s.Event != "" {
		t.Errorf("web status should carry no event, got %q", s.Event)
	}
}

func TestFormatJSONUnknownStates(t *testing.T) {
	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(Snapshot{}), &sj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sj.Status.Button != "UNKNOWN" || sj.Status.Peripheral.State != "UNKNOWN" {
		t.Errorf("expected UNKNOWN states, got %q/%q", sj.Status.Button, sj.Status.Peripheral.State)
	}
	if sj.Status.Peripheral.Connection != nil {
		t.Error("connection should be omitted")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(Snapshot{}, "SHUTDOWN", "SIGTERM")
	var sj StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", sj.Status.Event, sj.Status.Reason)
	}
}
