package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Policy is the dispatcher's atomically-updated admission policy.
type Policy struct {
	Enabled        bool
	Cohorts        []string
	HardStop       bool
	DefaultTimeoutMs uint64
}

// Telemetry counters tracked across the dispatcher's lifetime.
type Counters struct {
	Started    int64 `json:"started"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
	TimedOut   int64 `json:"timed_out"`
	Overloaded int64 `json:"overloaded"`
	HardStop   int64 `json:"hard_stop"`
}

// DispatchRequest is one admission request.
type DispatchRequest struct {
	SessionID string
	Cohort    string
	Action    string
	Payload   map[string]any
	// TimeoutMs, if non-nil, overrides the policy default for this call.
	TimeoutMs *uint64
}

// DispatchResult is returned for a dispatch call that reached a terminal
// state without an admission-time error.
type DispatchResult struct {
	SessionID string
	State     RuntimeSessionState
	Data      any
}

// ActionFunc performs the actual work behind a dispatch call. cancelled
// reports whether CancelSession has been called for this session; the
// action is expected to poll it at I/O boundaries.
type ActionFunc func(ctx context.Context, cancelled func() bool) (any, error)

// Dispatcher is the runtime admission/execution engine described by the
// control plane's "execute" operation.
type Dispatcher struct {
	gate      *BackpressureGate
	sessions  *SessionCoordinator
	telemetry TelemetrySink

	queueWaitTimeoutMs uint64

	mu     sync.RWMutex
	policy Policy

	cancelMu    sync.Mutex
	cancelFlags map[string]*atomic.Bool

	counters Counters
}

// NewDispatcher builds a Dispatcher. telemetry may be nil, in which case
// records are discarded.
func NewDispatcher(gate *BackpressureGate, queueWaitTimeoutMs uint64, policy Policy, telemetry TelemetrySink) *Dispatcher {
	if telemetry == nil {
		telemetry = NoopTelemetry
	}
	return &Dispatcher{
		gate:               gate,
		sessions:           NewSessionCoordinator(),
		telemetry:          telemetry,
		queueWaitTimeoutMs: queueWaitTimeoutMs,
		policy:             policy,
		cancelFlags:        make(map[string]*atomic.Bool),
	}
}

// SetPolicy atomically replaces the admission policy and returns the
// effective policy afterward.
func (d *Dispatcher) SetPolicy(update func(Policy) Policy) Policy {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.policy = update(d.policy)
	return d.policy
}

// Policy returns a copy of the current policy.
func (d *Dispatcher) Policy() Policy {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.policy
}

// TelemetrySnapshot returns a copy of the running counters.
func (d *Dispatcher) TelemetrySnapshot() Counters {
	return Counters{
		Started:    atomic.LoadInt64(&d.counters.Started),
		Completed:  atomic.LoadInt64(&d.counters.Completed),
		Failed:     atomic.LoadInt64(&d.counters.Failed),
		Cancelled:  atomic.LoadInt64(&d.counters.Cancelled),
		TimedOut:   atomic.LoadInt64(&d.counters.TimedOut),
		Overloaded: atomic.LoadInt64(&d.counters.Overloaded),
		HardStop:   atomic.LoadInt64(&d.counters.HardStop),
	}
}

// ListSessions returns every known session ordered by creation time.
func (d *Dispatcher) ListSessions() []RuntimeSessionSnapshot {
	return d.sessions.List()
}

// CancelSession flips the cooperative cancellation flag for sessionID and
// moves a session that is Initialized or Executing to Cancelling; a session
// in any other state keeps its state. Returns the current snapshot (the
// zero value for an unknown session) and whether this call newly set the
// flag (false if it was already set). An unknown sessionID still gets a
// flag, so a later Dispatch under that id is cancelled before its action
// runs.
func (d *Dispatcher) CancelSession(sessionID string) (RuntimeSessionSnapshot, bool) {
	d.cancelMu.Lock()
	flag, ok := d.cancelFlags[sessionID]
	if !ok {
		flag = &atomic.Bool{}
		d.cancelFlags[sessionID] = flag
	}
	newlySet := flag.CompareAndSwap(false, true)
	d.cancelMu.Unlock()

	snap, known := d.sessions.Snapshot(sessionID)
	if known && (snap.State == StateInitialized || snap.State == StateExecuting) {
		snap, _ = d.sessions.SetState(sessionID, StateCancelling, nil)
	}
	return snap, newlySet
}

func (d *Dispatcher) isCancelled(sessionID string) func() bool {
	return func() bool {
		d.cancelMu.Lock()
		flag, ok := d.cancelFlags[sessionID]
		d.cancelMu.Unlock()
		return ok && flag.Load()
	}
}

func (d *Dispatcher) clearCancelFlag(sessionID string) {
	d.cancelMu.Lock()
	delete(d.cancelFlags, sessionID)
	d.cancelMu.Unlock()
}

// Dispatch runs the eight-step admission algorithm and, on success, the
// supplied action to completion, cancellation, or timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest, action ActionFunc) (DispatchResult, error) {
	policy := d.Policy()

	// Step 1: runtime must be enabled.
	if !policy.Enabled {
		return DispatchResult{}, &RuntimeDisabled{Reason: "policy_disabled"}
	}

	// Step 2: hard-stop cohort gate.
	if policy.HardStop && !cohortAllowed(req.Cohort, policy.Cohorts) {
		atomic.AddInt64(&d.counters.HardStop, 1)
		return DispatchResult{}, &HardStop{
			Reason:          "cohort_not_allowed",
			RequestedCohort: req.Cohort,
			AllowedCohorts:  policy.Cohorts,
		}
	}

	session := d.sessions.InitSession(req.SessionID)
	sessionID := session.SessionID

	// Steps 3-5: backpressure admission (queue, per-session, semaphore).
	lease, err := d.gate.Acquire(ctx, sessionID, d.queueWaitTimeoutMs)
	if err != nil {
		atomic.AddInt64(&d.counters.Overloaded, 1)
		return DispatchResult{}, err
	}
	defer lease.Release()

	if d.isCancelled(sessionID)() {
		// Cancelled before execution started, but after occupying a
		// backpressure slot: the lease above still releases via defer.
		d.sessions.SetState(sessionID, StateCancelled, nil)
		atomic.AddInt64(&d.counters.Cancelled, 1)
		return DispatchResult{SessionID: sessionID, State: StateCancelled}, &Cancelled{SessionID: sessionID}
	}

	// Step 6: mark Executing and run the action under a deadline.
	d.sessions.SetState(sessionID, StateExecuting, nil)
	atomic.AddInt64(&d.counters.Started, 1)

	timeoutMs := policy.DefaultTimeoutMs
	if req.TimeoutMs != nil {
		timeoutMs = *req.TimeoutMs
	}
	if timeoutMs == 0 {
		timeoutMs = 30000
	}

	actionCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := action(actionCtx, d.isCancelled(sessionID))
		done <- outcome{data, err}
	}()

	var result DispatchResult
	var dispatchErr error

	select {
	case out := <-done:
		// Step 7: classify termination.
		switch {
		case d.isCancelled(sessionID)() && out.err != nil:
			d.sessions.SetState(sessionID, StateCancelled, nil)
			atomic.AddInt64(&d.counters.Cancelled, 1)
			result = DispatchResult{SessionID: sessionID, State: StateCancelled}
			dispatchErr = &Cancelled{SessionID: sessionID}
		case out.err != nil:
			msg := out.err.Error()
			d.sessions.SetState(sessionID, StateFailed, &msg)
			atomic.AddInt64(&d.counters.Failed, 1)
			d.recordFailure(req, out.err)
			result = DispatchResult{SessionID: sessionID, State: StateFailed}
			dispatchErr = &SubprocessFailure{Message: msg}
		default:
			d.sessions.SetState(sessionID, StateCompleted, nil)
			atomic.AddInt64(&d.counters.Completed, 1)
			result = DispatchResult{SessionID: sessionID, State: StateCompleted, Data: out.data}
		}
	case <-actionCtx.Done():
		msg := "deadline exceeded"
		d.sessions.SetState(sessionID, StateTimedOut, &msg)
		atomic.AddInt64(&d.counters.TimedOut, 1)
		result = DispatchResult{SessionID: sessionID, State: StateTimedOut}
		dispatchErr = &TimedOut{SessionID: sessionID, TimeoutMs: timeoutMs}
	}

	d.clearCancelFlag(sessionID)
	d.recordTelemetry(sessionID, result.State, req.Cohort)
	return result, dispatchErr
}

func (d *Dispatcher) recordTelemetry(sessionID string, state RuntimeSessionState, cohort string) {
	_ = d.telemetry.RecordDispatcherSession(sessionID+":"+string(state), sessionID, time.Now().UnixMilli(), string(state), cohort, nil)
}

func (d *Dispatcher) recordFailure(req DispatchRequest, actionErr error) {
	var envelope map[string]any
	if re, ok := actionErr.(RuntimeError); ok {
		envelope = re.Envelope()
	} else {
		envelope = map[string]any{"error_class": "subprocess_failure", "message": actionErr.Error()}
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	_, _ = AppendFailedToolCall(payload, actionErr.Error(), envelope)
}

func cohortAllowed(cohort string, allowed []string) bool {
	if cohort == "" {
		return true
	}
	for _, a := range allowed {
		if a == cohort {
			return true
		}
	}
	return false
}
