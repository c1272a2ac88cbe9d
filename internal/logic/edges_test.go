package logic

import (
	"testing"
	"time"
)

func TestClassifierStartsWithPressed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewEdgeClassifier()

	// Released before any press is not an edge.
	if e := c.Observe(false, now); e != nil {
		t.Fatalf("expected no event for initial release, got %+v", e)
	}

	e := c.Observe(true, now.Add(100*time.Millisecond))
	if e == nil {
		t.Fatal("expected Pressed event")
	}
	if e.State != Pressed {
		t.Errorf("expected Pressed, got %s", e.State)
	}
	if !e.Time.Equal(now.Add(100 * time.Millisecond)) {
		t.Errorf("unexpected timestamp: %v", e.Time)
	}
}

func TestClassifierPressRelease(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewEdgeClassifier()

	// button low at t=100ms, high at t=250ms
	e1 := c.Observe(true, start.Add(100*time.Millisecond))
	e2 := c.Observe(false, start.Add(250*time.Millisecond))

	if e1 == nil || e2 == nil {
		t.Fatalf("expected two events, got %v %v", e1, e2)
	}
	if e1.State != Pressed || !e1.Time.Equal(start.Add(100*time.Millisecond)) {
		t.Errorf("event 0: got %+v", e1)
	}
	if e2.State != Released || !e2.Time.Equal(start.Add(250*time.Millisecond)) {
		t.Errorf("event 1: got %+v", e2)
	}
}

func TestClassifierDropsDuplicates(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewEdgeClassifier()

	c.Observe(true, now)
	if e := c.Observe(true, now.Add(time.Millisecond)); e != nil {
		t.Errorf("expected duplicate press to be dropped, got %+v", e)
	}
	if c.Current() != Pressed {
		t.Errorf("expected current Pressed, got %s", c.Current())
	}
}

func TestClassifierAlternatesAndIsMonotonic(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewEdgeClassifier()

	// Noisy input including duplicates and an out-of-order timestamp.
	levels := []bool{true, true, false, true, false, false, true, false}
	offsets := []int{0, 5, 10, 8, 20, 25, 30, 29}

	var events []EdgeEvent
	for i, level := range levels {
		if e := c.Observe(level, start.Add(time.Duration(offsets[i])*time.Millisecond)); e != nil {
			events = append(events, *e)
		}
	}

	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}
	for i, e := range events {
		want := Pressed
		if i%2 == 1 {
			want = Released
		}
		if e.State != want {
			t.Errorf("event %d: expected %s, got %s", i, want, e.State)
		}
		if i > 0 && e.Time.Before(events[i-1].Time) {
			t.Errorf("event %d: timestamp %v before previous %v", i, e.Time, events[i-1].Time)
		}
	}

	counts := c.Counts()
	if counts.Presses != 3 || counts.Releases != 3 {
		t.Errorf("expected 3 presses and 3 releases, got %+v", counts)
	}
}

func TestStateFor(t *testing.T) {
	if StateFor(true) != Pressed {
		t.Error("active should map to Pressed")
	}
	if StateFor(false) != Released {
		t.Error("inactive should map to Released")
	}
}
