package logic

import "time"

// Debouncer confirms a level only after it held for the settle duration.
//
// It is a two-phase state machine: Edge arms a pending level and returns the
// deadline at which the caller must re-sample; Settle re-samples and reports
// the confirmed level when it matches the pending one and differs from the
// stable level.
type Debouncer struct {
	settle time.Duration

	stable       bool
	pending      bool
	pendingSince time.Time
	armed        bool
}

// NewDebouncer creates a debouncer with the given settle duration and the
// initial stable level.
func NewDebouncer(settle time.Duration, initial bool) *Debouncer {
	return &Debouncer{
		settle: settle,
		stable: initial,
	}
}

// Edge records a raw edge to level at now and returns the time at which
// Settle should be called. A new edge restarts the settle window.
func (d *Debouncer) Edge(level bool, now time.Time) time.Time {
	d.pending = level
	d.pendingSince = now
	d.armed = true
	return now.Add(d.settle)
}

// Settle re-samples the line at now.
// Returns (level, true) when a state change is confirmed.
func (d *Debouncer) Settle(level bool, now time.Time) (bool, bool) {
	if !d.armed {
		return d.stable, false
	}

	if level != d.pending {
		// Bounced back during the window: wait for the next edge.
		d.armed = false
		return d.stable, false
	}

	if now.Sub(d.pendingSince) < d.settle {
		return d.stable, false
	}

	d.armed = false
	if level == d.stable {
		return d.stable, false
	}

	d.stable = level
	return level, true
}

// Pending reports whether a settle window is open.
func (d *Debouncer) Pending() bool {
	return d.armed
}

// Stable returns the last confirmed level.
func (d *Debouncer) Stable() bool {
	return d.stable
}
