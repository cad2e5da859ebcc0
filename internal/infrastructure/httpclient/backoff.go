package httpclient

import (
	"math"
	"time"
)

// Backoff computes exponential retry delays.
// The delay before attempt n (1-based) is base * multiplier^(n-1),
// capped at max.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

// NewBackoff creates a backoff schedule with the given parameters
func NewBackoff(base, max time.Duration, multiplier float64) Backoff {
	if base <= 0 {
		base = 2 * time.Second
	}
	if max <= 0 {
		max = 60 * time.Second
	}
	if multiplier < 1.0 {
		multiplier = 2.0
	}
	return Backoff{Base: base, Max: max, Multiplier: multiplier}
}

// Delay returns the wait before retry attempt n (1-based).
// Attempt values below 1 are treated as 1.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	if d > float64(b.Max) || d < 0 {
		return b.Max
	}
	return time.Duration(d)
}
