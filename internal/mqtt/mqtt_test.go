package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sweeney/ble-button/internal/bus"
	"github.com/sweeney/ble-button/internal/logic"
)

func TestFormatEdgePayloadExactJSON(t *testing.T) {
	ts := time.Date(2026, 1, 3, 14, 22, 11, 250_000_000, time.UTC)
	data, err := FormatEdgePayload(logic.EdgeEvent{Time: ts, State: logic.Pressed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"button":{"timestamp":"2026-01-03T14:22:11.250Z","state":"PRESSED"}}`
	if string(data) != want {
		t.Errorf("got %s\nwant %s", data, want)
	}
}

func TestFormatEdgePayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2026, 1, 3, 16, 0, 0, 0, loc)
	data, _ := FormatEdgePayload(logic.EdgeEvent{Time: ts, State: logic.Released})

	var p EdgePayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Button.Timestamp != "2026-01-03T14:00:00.000Z" {
		t.Errorf("expected UTC timestamp, got %s", p.Button.Timestamp)
	}
	if p.Button.State != "RELEASED" {
		t.Errorf("expected RELEASED, got %s", p.Button.State)
	}
}

func TestFormatStatePayload(t *testing.T) {
	ts := time.Date(2026, 1, 3, 14, 0, 0, 0, time.UTC)
	tests := []struct {
		state logic.SystemState
		want  string
	}{
		{logic.Advertising, `{"peripheral":{"timestamp":"2026-01-03T14:00:00.000Z","state":"ADVERTISING"}}`},
		{logic.Connected, `{"peripheral":{"timestamp":"2026-01-03T14:00:00.000Z","state":"CONNECTED"}}`},
		{logic.Sleeping, `{"peripheral":{"timestamp":"2026-01-03T14:00:00.000Z","state":"SLEEPING"}}`},
	}
	for _, tt := range tests {
		data, err := FormatStatePayload(logic.StateEvent{Time: ts, State: tt.state})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != tt.want {
			t.Errorf("%s: got %s", tt.state, data)
		}
	}
}

func TestFormatSystemPayload(t *testing.T) {
	ts := time.Date(2026, 1, 3, 14, 0, 0, 0, time.UTC)
	data, _ := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM"})
	want := `{"system":{"timestamp":"2026-01-03T14:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(data) != want {
		t.Errorf("got %s\nwant %s", data, want)
	}

	raw := []byte(`{"status":{}}`)
	data, _ = FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if string(data) != string(raw) {
		t.Errorf("raw payload not passed through: %s", data)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	want := `{"system":{"event":"OFFLINE"}}`
	if got := string(WillPayload()); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

type sink struct {
	sent []queuedMsg
	err  error
}

func (s *sink) send(m queuedMsg) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

func TestPublisherQueuesWhileDisconnected(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := &sink{}
	p := newPublisher(log, 8)
	p.send = s.send

	ts := time.Now()
	p.PublishEdge(logic.EdgeEvent{Time: ts, State: logic.Pressed})
	p.PublishState(logic.StateEvent{Time: ts, State: logic.Connected})
	p.PublishEdge(logic.EdgeEvent{Time: ts, State: logic.Released})

	if len(s.sent) != 0 {
		t.Fatalf("nothing should be sent while disconnected, got %d", len(s.sent))
	}
	if p.IsConnected() {
		t.Error("should not report connected")
	}

	p.onConnect()
	if !p.IsConnected() {
		t.Error("should report connected after onConnect")
	}
	if len(s.sent) != 3 {
		t.Fatalf("expected 3 replayed messages, got %d", len(s.sent))
	}
	wantTopics := []string{TopicButton, TopicState, TopicButton}
	for i, m := range s.sent {
		if m.topic != wantTopics[i] {
			t.Errorf("message %d: topic %s, want %s", i, m.topic, wantTopics[i])
		}
	}
	if !s.sent[1].retained {
		t.Error("state messages should be retained")
	}

	p.PublishSystem(SystemEvent{Event: "SHUTDOWN"})
	if len(s.sent) != 4 || s.sent[3].qos != 1 {
		t.Errorf("system event should be sent directly with QoS 1: %+v", s.sent)
	}
}

func TestPublisherRequeuesOnFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := &sink{}
	p := newPublisher(log, 8)
	p.send = s.send
	p.onConnect()

	s.err = errors.New("broker gone")
	if err := p.PublishEdge(logic.EdgeEvent{Time: time.Now(), State: logic.Pressed}); err == nil {
		t.Error("expected publish error")
	}
	p.onConnectionLost(s.err)
	if p.backlog.len() != 1 {
		t.Fatalf("failed message should be queued, backlog=%d", p.backlog.len())
	}

	// Replay fails too: nothing lost, the link itself is up.
	p.onConnect()
	if !p.IsConnected() || p.backlog.len() != 1 {
		t.Errorf("replay failure should keep message queued (connected=%v backlog=%d)", p.IsConnected(), p.backlog.len())
	}

	// The next publish drains the backlog first.
	s.err = nil
	if err := p.PublishEdge(logic.EdgeEvent{Time: time.Now(), State: logic.Released}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.sent) != 2 || p.backlog.len() != 0 {
		t.Fatalf("expected replay before new message, sent=%d backlog=%d", len(s.sent), p.backlog.len())
	}
	if len(hook.AllEntries()) == 0 {
		t.Error("expected diagnostics to be logged")
	}
}

func TestPublisherRecoversAfterFailedReplay(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := &sink{}
	p := newPublisher(log, 8)
	p.send = s.send

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p.PublishEdge(logic.EdgeEvent{Time: ts, State: logic.Pressed})

	s.err = errors.New("publish timeout")
	p.onConnect()
	s.err = nil

	for i := 1; i <= 5; i++ {
		st := logic.Released
		if i%2 == 0 {
			st = logic.Pressed
		}
		if err := p.PublishEdge(logic.EdgeEvent{Time: ts.Add(time.Duration(i) * time.Millisecond), State: st}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	if !p.IsConnected() {
		t.Error("should stay connected after a failed replay")
	}
	if p.backlog.len() != 0 {
		t.Errorf("backlog should be empty, got %d", p.backlog.len())
	}
	if len(s.sent) != 6 {
		t.Fatalf("expected 6 messages sent, got %d", len(s.sent))
	}
	var first EdgePayload
	if err := json.Unmarshal(s.sent[0].payload, &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Button.State != "PRESSED" {
		t.Errorf("queued edge should go out first, got %s", first.Button.State)
	}
}

func TestPublisherFailedSendIsRetriedInOrder(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := &sink{}
	p := newPublisher(log, 8)
	p.send = s.send
	p.onConnect()

	s.err = errors.New("publish timeout")
	p.PublishState(logic.StateEvent{Time: time.Now(), State: logic.Advertising})
	s.err = nil
	p.PublishState(logic.StateEvent{Time: time.Now(), State: logic.Connected})

	if len(s.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(s.sent))
	}
	var a, b StatePayload
	json.Unmarshal(s.sent[0].payload, &a)
	json.Unmarshal(s.sent[1].payload, &b)
	if a.Peripheral.State != "ADVERTISING" || b.Peripheral.State != "CONNECTED" {
		t.Errorf("out of order: %s then %s", a.Peripheral.State, b.Peripheral.State)
	}
}

func TestForwardPublishesInOrder(t *testing.T) {
	log, _ := test.NewNullLogger()
	edges := bus.New[logic.EdgeEvent]("button", 4)
	sub, _ := edges.Subscribe()
	pub, _ := edges.Publisher()
	fake := NewFakePublisher()

	done := make(chan error, 1)
	go func() { done <- Forward(context.Background(), sub, fake.PublishEdge, log) }()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, st := range []logic.ButtonState{logic.Pressed, logic.Released, logic.Pressed} {
		if err := pub.Publish(context.Background(), logic.EdgeEvent{Time: ts.Add(time.Duration(i) * time.Millisecond), State: st}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	deadline := time.Now().Add(time.Second)
	for len(fake.Edges()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	sub.Unsubscribe()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop after unsubscribe")
	}

	got := fake.Edges()
	if len(got) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(got))
	}
	if got[0].State != logic.Pressed || got[1].State != logic.Released || got[2].State != logic.Pressed {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestForwardSurvivesPublishErrors(t *testing.T) {
	log, hook := test.NewNullLogger()
	states := bus.New[logic.StateEvent]("state", 4)
	sub, _ := states.Subscribe()
	pub, _ := states.Publisher()
	fake := NewFakePublisher()
	fake.PublishError = errors.New("offline")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Forward(ctx, sub, fake.PublishState, log) }()

	pub.Publish(ctx, logic.StateEvent{Time: time.Now(), State: logic.Advertising})
	pub.Publish(ctx, logic.StateEvent{Time: time.Now(), State: logic.Connected})

	deadline := time.Now().Add(time.Second)
	for len(hook.AllEntries()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(hook.AllEntries()) < 2 {
		t.Errorf("expected 2 logged errors, got %d", len(hook.AllEntries()))
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
