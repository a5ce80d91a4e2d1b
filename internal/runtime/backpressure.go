package runtime

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// BackpressureGate admits dispatch calls under three limits: a global
// queue-depth cap, a per-session in-flight cap, and a bounded-concurrency
// semaphore. Admission rolls back every prior increment as soon as any
// step fails, so a rejected call leaves no trace in the counters.
type BackpressureGate struct {
	sem                    *semaphore.Weighted
	queueLimit             int
	perSessionInflightLimit int

	mu              sync.Mutex
	queued          int
	inFlightBySession map[string]int
}

// NewBackpressureGate builds a gate. maxConcurrency, queueLimit, and
// perSessionInflightLimit are each floored at 1.
func NewBackpressureGate(maxConcurrency, queueLimit, perSessionInflightLimit int) *BackpressureGate {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if queueLimit < 1 {
		queueLimit = 1
	}
	if perSessionInflightLimit < 1 {
		perSessionInflightLimit = 1
	}
	return &BackpressureGate{
		sem:                    semaphore.NewWeighted(int64(maxConcurrency)),
		queueLimit:             queueLimit,
		perSessionInflightLimit: perSessionInflightLimit,
		inFlightBySession:      make(map[string]int),
	}
}

// QueueDepth returns the current number of calls waiting for or holding a lease.
func (g *BackpressureGate) QueueDepth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.queued
}

// BackpressureLease is held by a dispatch call for its lifetime. Release
// must be called exactly once, typically via defer — the closest Go
// analogue of the reference implementation's Drop-based cleanup.
type BackpressureLease struct {
	gate      *BackpressureGate
	sessionID string
	released  bool
	mu        sync.Mutex
}

// Release returns the lease's three held resources: the queued counter, the
// per-session in-flight counter, and the semaphore permit. Safe to call
// more than once; only the first call has effect.
func (l *BackpressureLease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	l.mu.Unlock()

	l.gate.sem.Release(1)
	l.gate.mu.Lock()
	l.gate.queued--
	if count, ok := l.gate.inFlightBySession[l.sessionID]; ok {
		count--
		if count <= 0 {
			delete(l.gate.inFlightBySession, l.sessionID)
		} else {
			l.gate.inFlightBySession[l.sessionID] = count
		}
	}
	l.gate.mu.Unlock()
}

// Acquire admits a dispatch call for sessionID, or returns an *Overloaded
// error describing which limit rejected it. queueWaitTimeoutMs bounds how
// long the call waits for a semaphore permit once admitted past the queue
// and per-session checks.
func (g *BackpressureGate) Acquire(ctx context.Context, sessionID string, queueWaitTimeoutMs uint64) (*BackpressureLease, error) {
	g.mu.Lock()
	g.queued++
	queuedNow := g.queued
	if queuedNow > g.queueLimit {
		g.queued--
		g.mu.Unlock()
		return nil, &Overloaded{Reason: "queue_full", RetryAfterMs: 100, QueueDepth: queuedNow}
	}

	current := g.inFlightBySession[sessionID]
	if current >= g.perSessionInflightLimit {
		g.queued--
		g.mu.Unlock()
		return nil, &Overloaded{Reason: "session_limit_exceeded", RetryAfterMs: 100, QueueDepth: queuedNow}
	}
	g.inFlightBySession[sessionID] = current + 1
	g.mu.Unlock()

	if queueWaitTimeoutMs < 1 {
		queueWaitTimeoutMs = 1
	}
	acquireCtx, cancel := context.WithTimeout(ctx, time.Duration(queueWaitTimeoutMs)*time.Millisecond)
	defer cancel()

	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		g.rollbackSession(sessionID)
		return nil, &Overloaded{Reason: "concurrency_exhausted", RetryAfterMs: queueWaitTimeoutMs, QueueDepth: queuedNow}
	}

	return &BackpressureLease{gate: g, sessionID: sessionID}, nil
}

func (g *BackpressureGate) rollbackSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued--
	if count, ok := g.inFlightBySession[sessionID]; ok {
		count--
		if count <= 0 {
			delete(g.inFlightBySession, sessionID)
		} else {
			g.inFlightBySession[sessionID] = count
		}
	}
}
