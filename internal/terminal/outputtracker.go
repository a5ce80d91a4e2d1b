// Package terminal implements the interactive-terminal UI-side core: the
// output tracker, the saved-command repository, output persistence, and
// the filesystem watcher that keeps saved commands in sync across
// processes.
package terminal

import (
	"sync"
	"time"
)

// evictionAge is how long a completed (non-running) output entry survives
// before OutputTracker.EvictStale drops it.
const evictionAge = 30 * time.Minute

// CompletedOutput is one tracked command's captured output.
type CompletedOutput struct {
	RequestID   string
	Stdout      string
	Stderr      string
	ExitCode    *int
	Running     bool
	CompletedAt time.Time
}

// ReadOutputResponse is returned by BuildReadOutputResponse.
type ReadOutputResponse struct {
	SessionID string
	Running   bool
	ExitCode  *int
	Stdout    string
	Stderr    string
	Truncated bool
}

// KillResult is returned by TryKill.
type KillResult struct {
	SessionID string
	Killed    bool
	Message   string
	Error     string
}

// OutputTracker holds completed/in-flight command output and the one-shot
// kill signals for commands still running, shared by the ingress (message
// handler) and egress (execution) sides of the terminal core.
type OutputTracker struct {
	mu          sync.Mutex
	completed   map[string]*CompletedOutput
	killSenders map[string]chan struct{}
}

// NewOutputTracker builds an empty tracker.
func NewOutputTracker() *OutputTracker {
	return &OutputTracker{
		completed:   make(map[string]*CompletedOutput),
		killSenders: make(map[string]chan struct{}),
	}
}

// Store records a new or replacement output entry.
func (t *OutputTracker) Store(entry CompletedOutput) {
	t.mu.Lock()
	defer t.mu.Unlock()
	stored := entry
	t.completed[entry.RequestID] = &stored
}

// MarkCompleted finalizes a tracked command's output and clears its kill
// sender, whether or not the command had previously been Store'd.
func (t *OutputTracker) MarkCompleted(requestID string, exitCode *int, stdout, stderr string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.completed[requestID]
	if !ok {
		entry = &CompletedOutput{RequestID: requestID}
		t.completed[requestID] = entry
	}
	entry.ExitCode = exitCode
	entry.Running = false
	entry.Stdout = stdout
	entry.Stderr = stderr
	entry.CompletedAt = time.Now()

	delete(t.killSenders, requestID)
}

// RegisterKillSender associates a one-shot kill channel with requestID.
func (t *OutputTracker) RegisterKillSender(requestID string, sender chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.killSenders[requestID] = sender
}

// BuildReadOutputResponse reports a tracked entry's current state, or a
// not-running empty response when the session is unknown.
func (t *OutputTracker) BuildReadOutputResponse(sessionID string) ReadOutputResponse {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.completed[sessionID]
	if !ok {
		return ReadOutputResponse{SessionID: sessionID}
	}
	return ReadOutputResponse{
		SessionID: sessionID,
		Running:   entry.Running,
		ExitCode:  entry.ExitCode,
		Stdout:    entry.Stdout,
		Stderr:    entry.Stderr,
	}
}

// TryKill consumes the one-shot kill sender for sessionID, if any, and
// reports whether the signal was delivered.
func (t *OutputTracker) TryKill(sessionID string) KillResult {
	t.mu.Lock()
	sender, ok := t.killSenders[sessionID]
	if ok {
		delete(t.killSenders, sessionID)
	}
	t.mu.Unlock()

	if !ok {
		return KillResult{SessionID: sessionID, Error: "Session not found"}
	}

	killed := sendKillSignal(sender)
	if killed {
		return KillResult{SessionID: sessionID, Killed: true, Message: "Kill signal sent"}
	}
	return KillResult{SessionID: sessionID, Error: "Kill signal failed (process may have already exited)"}
}

func sendKillSignal(sender chan struct{}) bool {
	select {
	case sender <- struct{}{}:
		return true
	default:
		return false
	}
}

// EvictStale drops every completed (non-running) entry older than 30
// minutes. Running entries are always retained.
func (t *OutputTracker) EvictStale() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for id, entry := range t.completed {
		if entry.Running {
			continue
		}
		if now.Sub(entry.CompletedAt) >= evictionAge {
			delete(t.completed, id)
		}
	}
}
