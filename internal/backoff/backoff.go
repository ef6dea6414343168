// Package backoff computes bounded exponential reconnect delays.
package backoff

import "time"

// Exponential doubles the base delay per attempt up to Max.
type Exponential struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the computed delay.
	Max time.Duration
}

// Delay returns the wait before retry number attempt (0-based).
func (e Exponential) Delay(attempt int) time.Duration {
	base := e.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := e.Max
	if max <= 0 {
		max = 30 * time.Second
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
