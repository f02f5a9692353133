// Package backoff implements the randomized exponential backoff used by the
// Socket.IO manager to space out reconnection attempts.
package backoff

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
)

// Backoff computes successive reconnect delays in milliseconds:
// min * 2^attempts, jittered by ±(jitter * min) and clamped to [min, max].
//
// Unlike the historical `Math.random() > .5` sign flip, the jitter here is
// drawn continuously from [-jitter, +jitter] per the spec's corrected
// behavior.
type Backoff struct {
	min      atomic.Int64 // milliseconds
	max      atomic.Int64
	jitter   atomic.Value // float64
	attempts atomic.Uint64
}

// New returns a Backoff with the given minimum delay, maximum delay, and
// randomization factor (clamped to [0,1]).
func New(minMs, maxMs int64, jitter float64) *Backoff {
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	b := &Backoff{}
	b.min.Store(minMs)
	b.max.Store(maxMs)
	b.jitter.Store(jitter)
	return b
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() uint64 {
	return b.attempts.Load()
}

// Next returns the next delay in milliseconds and advances the attempt counter.
func (b *Backoff) Next() int64 {
	attempt := b.attempts.Add(1) - 1
	min := float64(b.min.Load())
	max := float64(b.max.Load())
	jitter := b.jitter.Load().(float64)

	ms := min * math.Pow(2, float64(attempt))
	if jitter > 0 {
		ms += min * jitter * (rand.Float64()*2 - 1)
	}
	if ms < min {
		ms = min
	}
	if ms > max {
		ms = max
	}
	return int64(ms)
}

// Reset zeroes the attempt counter.
func (b *Backoff) Reset() {
	b.attempts.Store(0)
}

// SetMin updates the minimum delay, clamping it below the current max.
func (b *Backoff) SetMin(minMs int64) {
	if minMs > b.max.Load() {
		minMs = b.max.Load()
	}
	b.min.Store(minMs)
}

// SetMax updates the maximum delay, clamping it above the current min.
func (b *Backoff) SetMax(maxMs int64) {
	if maxMs < b.min.Load() {
		maxMs = b.min.Load()
	}
	b.max.Store(maxMs)
}

// SetJitter updates the randomization factor, clamped to [0,1].
func (b *Backoff) SetJitter(jitter float64) {
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	b.jitter.Store(jitter)
}
