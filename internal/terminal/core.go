package terminal

import (
	"fmt"
	"sync"
	"time"
)

// RuntimeContext describes how commands in one session should be executed:
// which shell profile, which workspace, and whether a Python virtualenv
// should be activated first.
type RuntimeContext struct {
	Profile       TerminalProfile
	WorkspacePath string
	VenvPath      string
	ActivateVenv  bool
}

type sessionState struct {
	pending     []CommandRequest
	runtime     RuntimeContext
	displayName string
	cols, rows  uint16
}

// InteractiveTerminalCore is the UI-side state machine for the
// interactive-terminal feature: per-session pending-command queues, runtime
// contexts, the selected session, and the activity clock used to decide
// when an idle UI process should exit.
type InteractiveTerminalCore struct {
	mu                sync.Mutex
	sessions          map[string]*sessionState
	selectedSessionID string
	tracker           *OutputTracker
	connected         bool
	lastActivityAt    time.Time
}

// NewInteractiveTerminalCore builds a core with no sessions, sharing
// tracker with the caller's execution layer.
func NewInteractiveTerminalCore(tracker *OutputTracker) *InteractiveTerminalCore {
	return &InteractiveTerminalCore{
		sessions:       make(map[string]*sessionState),
		tracker:        tracker,
		lastActivityAt: time.Now(),
	}
}

func (c *InteractiveTerminalCore) touch() {
	c.lastActivityAt = time.Now()
}

// CreateSession registers a new session with the given runtime context. If
// this is the first session, it becomes the selected one.
func (c *InteractiveTerminalCore) CreateSession(sessionID string, runtime RuntimeContext) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions[sessionID] = &sessionState{
		runtime:     runtime,
		displayName: sessionID,
		cols:        80,
		rows:        24,
	}
	if c.selectedSessionID == "" {
		c.selectedSessionID = sessionID
	}
	c.touch()
}

// CloseSession removes a session and returns its drained pending requests.
func (c *InteractiveTerminalCore) CloseSession(sessionID string) []CommandRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.sessions[sessionID]
	if !ok {
		return nil
	}
	drained := state.pending
	delete(c.sessions, sessionID)
	if c.selectedSessionID == sessionID {
		c.selectedSessionID = ""
		for id := range c.sessions {
			c.selectedSessionID = id
			break
		}
	}
	c.touch()
	return drained
}

// RenameSession sets a session's display name. Returns false if the session
// does not exist.
func (c *InteractiveTerminalCore) RenameSession(sessionID, displayName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.sessions[sessionID]
	if !ok {
		return false
	}
	state.displayName = displayName
	c.touch()
	return true
}

// ResizeSession records the new terminal dimensions for a session. Actual
// PTY resizing is performed by the caller against the pty-host connection;
// this only keeps the core's view of session geometry current.
func (c *InteractiveTerminalCore) ResizeSession(sessionID string, cols, rows uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.sessions[sessionID]
	if !ok {
		return false
	}
	state.cols, state.rows = cols, rows
	c.touch()
	return true
}

// SwitchActiveSession selects sessionID as the active session. Returns
// false if the session does not exist.
func (c *InteractiveTerminalCore) SwitchActiveSession(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[sessionID]; !ok {
		return false
	}
	c.selectedSessionID = sessionID
	c.touch()
	return true
}

// SelectedSession returns the currently selected session id.
func (c *InteractiveTerminalCore) SelectedSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedSessionID
}

// EnqueueRequest appends a command request to a session's FIFO pending
// queue, creating the session with a zero-value runtime context if it does
// not already exist.
func (c *InteractiveTerminalCore) EnqueueRequest(sessionID string, request CommandRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.sessions[sessionID]
	if !ok {
		state = &sessionState{displayName: sessionID, cols: 80, rows: 24}
		c.sessions[sessionID] = state
		if c.selectedSessionID == "" {
			c.selectedSessionID = sessionID
		}
	}
	state.pending = append(state.pending, request)
	c.tracker.Store(CompletedOutput{RequestID: request.ID, Running: true})
	c.touch()
}

// Approve dequeues and returns the head of a session's pending queue for
// forwarding to execution.
func (c *InteractiveTerminalCore) Approve(sessionID string) (CommandRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.sessions[sessionID]
	if !ok || len(state.pending) == 0 {
		return CommandRequest{}, false
	}
	head := state.pending[0]
	state.pending = state.pending[1:]
	c.touch()
	return head, true
}

// Decline dequeues the head of a session's pending queue and marks it
// completed with the given decline reason recorded as stderr.
func (c *InteractiveTerminalCore) Decline(sessionID, reason string) (CommandRequest, bool) {
	c.mu.Lock()
	head, state, ok := c.popHeadLocked(sessionID)
	c.mu.Unlock()
	if !ok {
		return CommandRequest{}, false
	}
	_ = state
	c.tracker.MarkCompleted(head.ID, nil, "", fmt.Sprintf("declined: %s", reason))
	return head, true
}

func (c *InteractiveTerminalCore) popHeadLocked(sessionID string) (CommandRequest, *sessionState, bool) {
	state, ok := c.sessions[sessionID]
	if !ok || len(state.pending) == 0 {
		return CommandRequest{}, nil, false
	}
	head := state.pending[0]
	state.pending = state.pending[1:]
	c.touch()
	return head, state, true
}

// PendingCount returns the number of queued requests across every session.
func (c *InteractiveTerminalCore) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, state := range c.sessions {
		total += len(state.pending)
	}
	return total
}

// IsIdle reports whether there are no sessions with pending requests.
func (c *InteractiveTerminalCore) IsIdle() bool {
	return c.PendingCount() == 0
}

// LastActivity returns the timestamp of the most recent mutation.
func (c *InteractiveTerminalCore) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivityAt
}

// ShouldExit reports whether the UI process should exit due to prolonged
// inactivity: idle and past idleTimeout since the last mutation.
func (c *InteractiveTerminalCore) ShouldExit(idleTimeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) > 0 {
		for _, state := range c.sessions {
			if len(state.pending) > 0 {
				return false
			}
		}
	}
	return time.Since(c.lastActivityAt) > idleTimeout
}

// SetConnected records whether a TCP client is currently connected.
func (c *InteractiveTerminalCore) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
	c.touch()
}

// IsConnected reports whether a client is currently connected.
func (c *InteractiveTerminalCore) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ExportCapturedOutput returns the tracked output for a command request, for
// export or clipboard-copy purposes.
func (c *InteractiveTerminalCore) ExportCapturedOutput(requestID string) ReadOutputResponse {
	return c.tracker.BuildReadOutputResponse(requestID)
}
