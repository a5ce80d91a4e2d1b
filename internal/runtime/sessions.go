package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RuntimeSessionState is the dispatcher session state machine. Transitions
// are monotonic and never move backward:
//
//	Initialized -> Executing -> {Completed|Failed|TimedOut}
//	Executing -> Cancelling -> Cancelled
type RuntimeSessionState string

const (
	StateInitialized RuntimeSessionState = "Initialized"
	StateExecuting   RuntimeSessionState = "Executing"
	StateCompleted   RuntimeSessionState = "Completed"
	StateFailed      RuntimeSessionState = "Failed"
	StateTimedOut    RuntimeSessionState = "TimedOut"
	StateCancelling  RuntimeSessionState = "Cancelling"
	StateCancelled   RuntimeSessionState = "Cancelled"
)

// RuntimeSessionSnapshot is an immutable view of a session record at a
// point in time.
type RuntimeSessionSnapshot struct {
	SessionID   string              `json:"session_id"`
	State       RuntimeSessionState `json:"state"`
	CreatedAtMs uint64              `json:"created_at_ms"`
	UpdatedAtMs uint64              `json:"updated_at_ms"`
	LastError   *string             `json:"last_error,omitempty"`
}

type runtimeSessionRecord struct {
	sessionID   string
	state       RuntimeSessionState
	createdAtMs uint64
	updatedAtMs uint64
	lastError   *string
}

// SessionCoordinator tracks dispatcher session state across concurrent
// dispatch calls. One mutex guards the whole record map.
type SessionCoordinator struct {
	mu      sync.Mutex
	records map[string]*runtimeSessionRecord
}

// NewSessionCoordinator builds an empty coordinator.
func NewSessionCoordinator() *SessionCoordinator {
	return &SessionCoordinator{records: make(map[string]*runtimeSessionRecord)}
}

// InitSession creates (or re-fetches, if requested already exists) a
// session record. An empty or whitespace-only requested id is replaced
// with a generated "runtime-<uuid>" id.
func (c *SessionCoordinator) InitSession(requested string) RuntimeSessionSnapshot {
	now := nowMs()
	sessionID := requested
	if trimmedEmpty(sessionID) {
		sessionID = "runtime-" + uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[sessionID]
	if !ok {
		record = &runtimeSessionRecord{
			sessionID:   sessionID,
			state:       StateInitialized,
			createdAtMs: now,
			updatedAtMs: now,
		}
		c.records[sessionID] = record
	}
	record.updatedAtMs = now
	return snapshotOf(record)
}

// SetState transitions sessionID to state, recording lastError (nil to
// clear). Returns false if the session is unknown.
func (c *SessionCoordinator) SetState(sessionID string, state RuntimeSessionState, lastError *string) (RuntimeSessionSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[sessionID]
	if !ok {
		return RuntimeSessionSnapshot{}, false
	}
	record.state = state
	record.updatedAtMs = nowMs()
	record.lastError = lastError
	return snapshotOf(record), true
}

// Snapshot returns the current record for sessionID, if known.
func (c *SessionCoordinator) Snapshot(sessionID string) (RuntimeSessionSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.records[sessionID]
	if !ok {
		return RuntimeSessionSnapshot{}, false
	}
	return snapshotOf(record), true
}

// List returns every known session, ordered by creation time ascending.
func (c *SessionCoordinator) List() []RuntimeSessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RuntimeSessionSnapshot, 0, len(c.records))
	for _, record := range c.records {
		out = append(out, snapshotOf(record))
	}
	sortSnapshotsByCreatedAt(out)
	return out
}

func snapshotOf(r *runtimeSessionRecord) RuntimeSessionSnapshot {
	return RuntimeSessionSnapshot{
		SessionID:   r.sessionID,
		State:       r.state,
		CreatedAtMs: r.createdAtMs,
		UpdatedAtMs: r.updatedAtMs,
		LastError:   r.lastError,
	}
}

func sortSnapshotsByCreatedAt(snaps []RuntimeSessionSnapshot) {
	for i := 1; i < len(snaps); i++ {
		for j := i; j > 0 && snaps[j-1].CreatedAtMs > snaps[j].CreatedAtMs; j-- {
			snaps[j-1], snaps[j] = snaps[j], snaps[j-1]
		}
	}
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

func trimmedEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
