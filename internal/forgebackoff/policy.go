// Package forgebackoff supplies the Pipeline Runner's per-node retry
// delay policy on top of github.com/cenkalti/backoff/v4, so the delay
// sequence comes from a maintained backoff implementation rather than
// a reimplementation of math.Pow jitter.
package forgebackoff

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy names the delay curve: initial delay, cap, exponential
// factor, and randomization fraction.
type Policy struct {
	InitialMs float64
	MaxMs     float64
	Factor    float64
	Jitter    float64
}

// DefaultPolicy is the stage-retry default: 100ms doubling to a 30s
// cap with 10% jitter.
func DefaultPolicy() Policy {
	return Policy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0.1}
}

// AggressivePolicy retries fast with short delays.
func AggressivePolicy() Policy {
	return Policy{InitialMs: 50, MaxMs: 5000, Factor: 1.5, Jitter: 0.05}
}

// ConservativePolicy retries slowly with long delays.
func ConservativePolicy() Policy {
	return Policy{InitialMs: 500, MaxMs: 60000, Factor: 2.5, Jitter: 0.2}
}

// NextDelay returns the delay before retry attempt (1-based):
// min(initial * factor^(attempt-1), max) with jitter, so attempt 1
// waits the initial delay; computed by stepping
// a cenkalti/backoff/v4 ExponentialBackOff attempt times rather than
// evaluating the power series by hand.
func NextDelay(p Policy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(p.InitialMs) * time.Millisecond
	eb.MaxInterval = time.Duration(p.MaxMs) * time.Millisecond
	eb.Multiplier = p.Factor
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = 0
	eb.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = eb.NextBackOff()
	}
	maxDelay := time.Duration(p.MaxMs) * time.Millisecond
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
