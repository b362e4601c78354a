package transport

import "time"

// Backoff computes reconnect delays: Min doubled per attempt, capped at Max.
// Attempt numbering is 1-based; out-of-range attempts clamp to the bounds.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

// Delay returns the wait before reconnect attempt n.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return b.Min
	}
	d := b.Min
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return d
}
