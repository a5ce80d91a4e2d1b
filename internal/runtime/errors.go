// Package runtime implements the supervisor's execution dispatcher: the
// backpressure gate, session coordinator, and failure journal that sit
// behind the control plane's "execute" operation.
package runtime

import "fmt"

// RuntimeError is the taxonomy of errors a dispatch call can fail with.
// Each variant carries enough detail to build the wire envelope described
// by the control protocol's error responses.
type RuntimeError interface {
	error
	// Envelope returns the JSON-serializable error body.
	Envelope() map[string]any
}

// RuntimeDisabled indicates the dispatcher has not been configured to run.
type RuntimeDisabled struct {
	Reason string
}

func (e *RuntimeDisabled) Error() string {
	return fmt.Sprintf("runtime disabled: %s", e.Reason)
}

func (e *RuntimeDisabled) Envelope() map[string]any {
	return map[string]any{"error_class": "runtime_precondition", "reason": e.Reason}
}

// InvalidRequest indicates the caller's request failed validation.
type InvalidRequest struct {
	Message string
}

func (e *InvalidRequest) Error() string { return e.Message }

func (e *InvalidRequest) Envelope() map[string]any {
	return map[string]any{"error_class": "invalid_request", "message": e.Message}
}

// Overloaded indicates the dispatcher rejected the request due to
// backpressure: a full queue, an exhausted per-session in-flight limit, or
// a timed-out concurrency acquisition.
type Overloaded struct {
	Reason       string
	RetryAfterMs uint64
	QueueDepth   int
}

func (e *Overloaded) Error() string {
	return fmt.Sprintf("runtime overloaded: %s", e.Reason)
}

func (e *Overloaded) Envelope() map[string]any {
	return map[string]any{
		"error_class":    "overload",
		"reason":         e.Reason,
		"retry_after_ms": e.RetryAfterMs,
		"queue_depth":    e.QueueDepth,
	}
}

// Cancelled indicates a session was cancelled before completion.
type Cancelled struct {
	SessionID string
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("runtime session cancelled: %s", e.SessionID)
}

func (e *Cancelled) Envelope() map[string]any {
	return map[string]any{"error_class": "cancelled", "session_id": e.SessionID}
}

// TimedOut indicates a session exceeded its deadline.
type TimedOut struct {
	SessionID string
	TimeoutMs uint64
}

func (e *TimedOut) Error() string {
	return fmt.Sprintf("runtime session timed out: %s after %dms", e.SessionID, e.TimeoutMs)
}

func (e *TimedOut) Envelope() map[string]any {
	return map[string]any{
		"error_class": "timed_out",
		"session_id":  e.SessionID,
		"timeout_ms":  e.TimeoutMs,
	}
}

// HardStop indicates a cohort-scoped kill switch rejected the dispatch.
type HardStop struct {
	Reason          string
	RequestedCohort string
	AllowedCohorts  []string
}

func (e *HardStop) Error() string {
	return fmt.Sprintf("runtime hard-stop gate blocked cohort '%s': %s", e.RequestedCohort, e.Reason)
}

func (e *HardStop) Envelope() map[string]any {
	return map[string]any{
		"error_class":      "hard_stop",
		"reason":           e.Reason,
		"requested_cohort": e.RequestedCohort,
		"allowed_cohorts":  e.AllowedCohorts,
	}
}

// SubprocessFailure indicates the spawned child process itself failed.
type SubprocessFailure struct {
	Message string
}

func (e *SubprocessFailure) Error() string { return e.Message }

func (e *SubprocessFailure) Envelope() map[string]any {
	return map[string]any{"error_class": "subprocess_failure", "message": e.Message}
}

// Internal indicates an unexpected internal failure.
type Internal struct {
	Message string
}

func (e *Internal) Error() string { return e.Message }

func (e *Internal) Envelope() map[string]any {
	return map[string]any{"error_class": "internal", "message": e.Message}
}
