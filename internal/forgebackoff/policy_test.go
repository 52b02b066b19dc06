package forgebackoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayGrowsExponentiallyWithoutJitter(t *testing.T) {
	p := Policy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0}

	d1 := NextDelay(p, 1)
	d2 := NextDelay(p, 2)
	d3 := NextDelay(p, 3)

	assert.InDelta(t, 100*time.Millisecond, d1, float64(5*time.Millisecond))
	assert.Greater(t, d2, d1)
	assert.Greater(t, d3, d2)
}

func TestNextDelayRespectsMax(t *testing.T) {
	p := Policy{InitialMs: 1000, MaxMs: 2000, Factor: 4, Jitter: 0}

	d := NextDelay(p, 10)
	assert.LessOrEqual(t, d, 2000*time.Millisecond)
}

func TestNextDelayClampsAttemptBelowOne(t *testing.T) {
	p := DefaultPolicy()
	p.Jitter = 0
	assert.Equal(t, NextDelay(p, 1), NextDelay(p, 0))
	assert.Equal(t, NextDelay(p, 1), NextDelay(p, -5))
}
