package client

import "time"

// Backoff yields reconnect delays: doubling from Base, capped at Max,
// giving up after MaxAttempts (0 means unlimited).
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int

	attempt int
}

func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 30 * time.Second, MaxAttempts: 8}
}

// Next returns the delay before the next attempt, or false when the
// attempt budget is spent.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.MaxAttempts > 0 && b.attempt >= b.MaxAttempts {
		return 0, false
	}
	d := b.Base << b.attempt
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	b.attempt++
	return d, true
}

// Reset is called after a successful connect so the next outage starts
// from the base delay again.
func (b *Backoff) Reset() { b.attempt = 0 }

func (b *Backoff) Attempts() int { return b.attempt }
