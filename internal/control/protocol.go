// Package control implements the supervisor's control-plane wire protocol:
// the NDJSON request/response types, the service registry, the WhoAmI
// handshake, the request handler, and the Unix-socket/TCP transport that
// serves them.
package control

import (
	"encoding/json"
	"fmt"

	"github.com/ds-codi/pm-supervisor/internal/runtime"
)

// BackendKind selects which execution backend services run under.
type BackendKind string

const (
	BackendNode      BackendKind = "node"
	BackendContainer BackendKind = "container"
)

// ControlRequest is the tagged sum of every control-plane operation. Exactly
// one of the typed fields is populated, selected by Type.
type ControlRequest struct {
	Type string `json:"type"`

	// Start, Stop, Restart
	Service string `json:"service,omitempty"`

	// SetBackend
	Backend BackendKind `json:"backend,omitempty"`

	// AttachClient
	PID      int    `json:"pid,omitempty"`
	WindowID string `json:"window_id,omitempty"`

	// DetachClient
	ClientID string `json:"client_id,omitempty"`

	// WhoAmI
	WhoAmI *WhoAmIRequest `json:"who_am_i,omitempty"`

	// LaunchFormApp
	FormApp *FormAppRequest `json:"form_app,omitempty"`

	// Dispatch
	Dispatch *DispatchRequest `json:"dispatch,omitempty"`

	// CancelSession
	SessionID string `json:"session_id,omitempty"`

	// SetPolicy
	Policy *PolicyUpdate `json:"policy,omitempty"`
}

const (
	ReqStatus            = "status"
	ReqStart             = "start"
	ReqStop              = "stop"
	ReqRestart           = "restart"
	ReqSetBackend        = "set_backend"
	ReqListClients       = "list_clients"
	ReqAttachClient      = "attach_client"
	ReqDetachClient      = "detach_client"
	ReqWhoAmI            = "who_am_i"
	ReqLaunchFormApp     = "launch_form_app"
	ReqDispatch          = "dispatch"
	ReqCancelSession     = "cancel_session"
	ReqListSessions      = "list_sessions"
	ReqSetPolicy         = "set_policy"
	ReqTelemetrySnapshot = "telemetry_snapshot"
)

// FormAppRequest launches a registered on-demand GUI form app (e.g.
// pm-brainstorm-gui) and waits for its single NDJSON response line.
type FormAppRequest struct {
	AppName         string         `json:"app_name"`
	Payload         map[string]any `json:"payload,omitempty"`
	TimeoutOverride uint64         `json:"timeout_override,omitempty"`
}

// DispatchRequest is the runtime dispatcher's admission request: run
// AppName as a guarded action under concurrency, per-session, and deadline
// limits.
type DispatchRequest struct {
	SessionID string         `json:"session_id,omitempty"`
	Cohort    string         `json:"cohort,omitempty"`
	AppName   string         `json:"app_name"`
	Payload   map[string]any `json:"payload,omitempty"`
	TimeoutMs *uint64        `json:"timeout_ms,omitempty"`
}

// PolicyUpdate carries the fields of a set_policy request; unset fields
// leave the dispatcher's current policy value unchanged.
type PolicyUpdate struct {
	Enabled          *bool    `json:"enabled,omitempty"`
	Cohorts          []string `json:"cohorts,omitempty"`
	HardStop         *bool    `json:"hard_stop,omitempty"`
	DefaultTimeoutMs *uint64  `json:"default_timeout_ms,omitempty"`
}

// apply merges the update's set fields onto the current policy.
func (u *PolicyUpdate) apply(current runtime.Policy) runtime.Policy {
	if u.Enabled != nil {
		current.Enabled = *u.Enabled
	}
	if u.Cohorts != nil {
		current.Cohorts = u.Cohorts
	}
	if u.HardStop != nil {
		current.HardStop = *u.HardStop
	}
	if u.DefaultTimeoutMs != nil {
		current.DefaultTimeoutMs = *u.DefaultTimeoutMs
	}
	return current
}

// ControlResponse is the uniform envelope every control-plane request
// produces.
type ControlResponse struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// OKResponse builds a successful response carrying data.
func OKResponse(data any) ControlResponse {
	return ControlResponse{OK: true, Data: data}
}

// ErrResponse builds a failed response carrying a message.
func ErrResponse(message string) ControlResponse {
	return ControlResponse{OK: false, Error: message}
}

// WhoAmIRequest is sent by a handshake initiator to identify itself to a
// remote endpoint, and accepted by the supervisor's own control handler
// when a client announces itself.
type WhoAmIRequest struct {
	RequestID     string `json:"request_id"`
	Client        string `json:"client"`
	ClientVersion string `json:"client_version"`
}

// WhoAmIResponse is returned by a trusted endpoint in answer to a
// WhoAmIRequest.
type WhoAmIResponse struct {
	RequestID       string   `json:"request_id"`
	OK              bool     `json:"ok"`
	ServerName      string   `json:"server_name"`
	ServerVersion   string   `json:"server_version"`
	InstanceID      string   `json:"instance_id"`
	Mode            string   `json:"mode"`
	ProtocolVersion string   `json:"protocol_version"`
	Capabilities    []string `json:"capabilities"`
}

// DecodeRequest parses one NDJSON line into a ControlRequest.
func DecodeRequest(line string) (ControlRequest, error) {
	var req ControlRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return ControlRequest{}, fmt.Errorf("decode control request: %w", err)
	}
	return req, nil
}

// EncodeResponse serializes resp as one NDJSON line, newline-terminated.
func EncodeResponse(resp ControlResponse) (string, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encode control response: %w", err)
	}
	return string(b) + "\n", nil
}

// EncodeMessage serializes any NDJSON-framed message, newline-terminated.
// Used by the handshake initiator to send WhoAmIRequest without going
// through the response envelope.
func EncodeMessage(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(b) + "\n", nil
}
