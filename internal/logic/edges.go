package logic

import "time"

// EdgeClassifier turns level observations into edge events.
//
// Published states strictly alternate starting with Pressed, and timestamps
// never go backwards: an observation older than the last published event is
// stamped with the last published time.
type EdgeClassifier struct {
	last     ButtonState
	lastTime time.Time
	counts   EventCounts
}

// NewEdgeClassifier creates a classifier that expects Pressed first.
func NewEdgeClassifier() *EdgeClassifier {
	return &EdgeClassifier{last: Released}
}

// Observe records a logical level seen at t.
// Returns the event to publish, or nil when the level does not change state.
func (c *EdgeClassifier) Observe(active bool, t time.Time) *EdgeEvent {
	state := StateFor(active)
	if state == c.last {
		return nil
	}

	if t.Before(c.lastTime) {
		t = c.lastTime
	}
	c.last = state
	c.lastTime = t

	switch state {
	case Pressed:
		c.counts.Presses++
	case Released:
		c.counts.Releases++
	}

	return &EdgeEvent{Time: t, State: state}
}

// Current returns the last published state (Released before any press).
func (c *EdgeClassifier) Current() ButtonState {
	return c.last
}

// Counts returns press/release counts so far.
func (c *EdgeClassifier) Counts() EventCounts {
	return c.counts
}
