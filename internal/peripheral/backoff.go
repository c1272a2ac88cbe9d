package peripheral

import "time"

// Backoff yields exponentially growing delays up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	attempt int
}

// Next returns the delay for the next retry.
func (b *Backoff) Next() time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	d := b.Initial << uint(b.attempt)
	if d <= 0 || (b.Max > 0 && d >= b.Max) {
		return b.Max
	}
	b.attempt++
	return d
}

// Reset starts over from Initial.
func (b *Backoff) Reset() {
	b.attempt = 0
}
