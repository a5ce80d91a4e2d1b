package terminal

import (
	"encoding/json"
	"fmt"
)

// Message is the tagged sum of every terminal-host IPC message: the wire
// protocol between a UI client (the bundled dashboard, supctl, or any other
// local observer) and this package's IPCServer. Wire format is NDJSON over
// a local TCP socket, isolated from both the control-plane protocol and the
// pty-host protocol so none of the three wire formats constrain the others.
type Message struct {
	Type string `json:"type"`

	SessionID   string `json:"session_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	CommandID   string `json:"command_id,omitempty"`

	// CreateSession
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`

	// RenameSession / SwitchSession
	DisplayName string `json:"display_name,omitempty"`

	// EnqueueRequest
	Request *CommandRequest `json:"request,omitempty"`

	// Decline
	Reason string `json:"reason,omitempty"`

	// OutputResult / SessionOutput
	Output   *ReadOutputResponse `json:"output,omitempty"`
	Data     string              `json:"data,omitempty"`
	ExitCode *int                `json:"exit_code,omitempty"`

	// SavedCommands
	SavedCommands *WorkspaceSavedCommands `json:"saved_commands,omitempty"`
	Command       *SavedCommand           `json:"command,omitempty"`

	// Error
	Error string `json:"error,omitempty"`

	// Heartbeat
	TS uint64 `json:"ts,omitempty"`
}

const (
	// Client -> server.
	MsgCreateSession     = "create_session"
	MsgCloseSession      = "close_session"
	MsgRenameSession     = "rename_session"
	MsgResizeSession     = "resize_session"
	MsgSwitchSession     = "switch_session"
	MsgEnqueueRequest    = "enqueue_request"
	MsgApprove           = "approve"
	MsgDecline           = "decline"
	MsgReadOutput        = "read_output"
	MsgKillCommand       = "kill_command"
	MsgListSavedCommands = "list_saved_commands"
	MsgSaveCommand       = "save_command"
	MsgDeleteCommand     = "delete_command"

	// Server -> client.
	MsgSessionOutput     = "session_output"
	MsgRequestQueued     = "request_queued"
	MsgRequestApproved   = "request_approved"
	MsgRequestDeclined   = "request_declined"
	MsgOutputResult      = "output_result"
	MsgKillResult        = "kill_result"
	MsgSavedCommandsList = "saved_commands_list"
	MsgWorkspaceChanged  = "workspace_changed"
	MsgError             = "error"
	MsgHeartbeat         = "heartbeat"
)

// DecodeMessage parses one NDJSON line into a Message.
func DecodeMessage(line string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return Message{}, fmt.Errorf("decode terminal-host message: %w", err)
	}
	return msg, nil
}

// EncodeMessage serializes msg as one NDJSON line, newline-terminated.
func EncodeMessage(msg Message) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode terminal-host message: %w", err)
	}
	return string(b) + "\n", nil
}

// ErrorMessage builds the response reporting a request that failed.
func ErrorMessage(requestID, errMsg string) Message {
	return Message{Type: MsgError, RequestID: requestID, Error: errMsg}
}

// SessionOutputMessage builds a live output chunk. The IPC server sends one
// per output line of an approved command, keyed by the request id.
func SessionOutputMessage(sessionID, data string) Message {
	return Message{Type: MsgSessionOutput, SessionID: sessionID, Data: data}
}

// OutputResultMessage builds the response to a ReadOutput request.
func OutputResultMessage(resp ReadOutputResponse) Message {
	return Message{Type: MsgOutputResult, SessionID: resp.SessionID, Output: &resp}
}

// KillResultMessage builds the response to a KillCommand request.
func KillResultMessage(result KillResult) Message {
	return Message{
		Type:      MsgKillResult,
		SessionID: result.SessionID,
		Error:     result.Error,
		Data:      result.Message,
	}
}

// SavedCommandsListMessage builds the response to a ListSavedCommands,
// SaveCommand, or DeleteCommand request.
func SavedCommandsListMessage(doc WorkspaceSavedCommands) Message {
	return Message{Type: MsgSavedCommandsList, WorkspaceID: doc.WorkspaceID, SavedCommands: &doc}
}

// WorkspaceChangedMessage builds the unsolicited notification sent when the
// saved-commands watcher reloads a workspace's file after an external edit.
func WorkspaceChangedMessage(doc WorkspaceSavedCommands) Message {
	return Message{Type: MsgWorkspaceChanged, WorkspaceID: doc.WorkspaceID, SavedCommands: &doc}
}

// HeartbeatMessage builds a heartbeat ping carrying the current timestamp.
func HeartbeatMessage(ts uint64) Message {
	return Message{Type: MsgHeartbeat, TS: ts}
}
