package runner

import (
	"math"
	"math/rand"
)

// defaultJitterRatio is the fraction of the current base delay added as
// random jitter when a BackoffState is built with NewBackoffFromConfig.
const defaultJitterRatio = 0.2

// BackoffState computes exponential reconnect delays with jitter so that
// multiple services recovering simultaneously don't thunder-herd against
// the same endpoint.
type BackoffState struct {
	currentDelayMs uint64
	initialDelayMs uint64
	maxDelayMs     uint64
	multiplier     float64
	jitterRatio    float64
	attempts       uint32
}

// NewBackoffState builds a BackoffState with explicit parameters.
func NewBackoffState(initialMs, maxMs uint64, multiplier, jitterRatio float64) *BackoffState {
	return &BackoffState{
		currentDelayMs: initialMs,
		initialDelayMs: initialMs,
		maxDelayMs:     maxMs,
		multiplier:     multiplier,
		jitterRatio:    jitterRatio,
	}
}

// NewBackoffFromConfig builds a BackoffState using the standard 20% jitter
// ratio, for callers configuring reconnect behavior from the supervisor's
// own topology settings rather than picking a jitter ratio directly.
func NewBackoffFromConfig(initialMs, maxMs uint64, multiplier float64) *BackoffState {
	return NewBackoffState(initialMs, maxMs, multiplier, defaultJitterRatio)
}

// NextDelayMs computes the next delay, advances internal state, and
// returns the jittered value capped at maxDelayMs.
func (b *BackoffState) NextDelayMs() uint64 {
	base := b.currentDelayMs

	jitter := uint64(float64(base) * b.jitterRatio * rand.Float64())
	result := base + jitter
	if result > b.maxDelayMs {
		result = b.maxDelayMs
	}

	nextBase := uint64(math.Round(float64(base) * b.multiplier))
	if nextBase > b.maxDelayMs {
		nextBase = b.maxDelayMs
	}
	b.currentDelayMs = nextBase

	b.attempts++
	return result
}

// Reset restores the initial delay and zeroes the attempt counter.
func (b *BackoffState) Reset() {
	b.currentDelayMs = b.initialDelayMs
	b.attempts = 0
}

// Attempts reports how many times NextDelayMs has been called since
// construction or the last Reset.
func (b *BackoffState) Attempts() uint32 {
	return b.attempts
}
