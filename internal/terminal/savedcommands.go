package terminal

import (
	"encoding/json"
	"strings"
)

// SavedCommandsSchemaVersion is the current on-disk schema version for
// per-workspace saved-command files.
const SavedCommandsSchemaVersion = 1

const epochTimestamp = "1970-01-01T00:00:00Z"

// SavedCommand is one user-saved shell command, scoped to a workspace.
type SavedCommand struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Command    string  `json:"command"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

// WorkspaceSavedCommands is the full saved-commands document for one
// workspace, as persisted to disk.
type WorkspaceSavedCommands struct {
	WorkspaceID   string         `json:"workspace_id"`
	SchemaVersion uint32         `json:"schema_version"`
	Commands      []SavedCommand `json:"commands"`
}

type legacySavedCommand struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Command    string  `json:"command"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

type legacyRoot struct {
	WorkspaceID string               `json:"workspace_id"`
	Commands    []legacySavedCommand `json:"commands"`
}

// NormalizeWorkspaceID validates and trims a workspace id, rejecting empty,
// overlong, path-traversal, or otherwise unsafe values. The second return
// value is false when input is not a usable workspace id.
func NormalizeWorkspaceID(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || len(trimmed) > 128 {
		return "", false
	}
	if strings.Contains(trimmed, "..") || strings.ContainsAny(trimmed, "/\\") {
		return "", false
	}
	for _, ch := range trimmed {
		if !isWorkspaceIDRune(ch) {
			return "", false
		}
	}
	return trimmed, true
}

func isWorkspaceIDRune(ch rune) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	case ch == '-', ch == '_', ch == '.':
		return true
	default:
		return false
	}
}

func normalizeSavedCommand(cmd SavedCommand, fallbackIndex int) SavedCommand {
	if strings.TrimSpace(cmd.ID) == "" {
		cmd.ID = fallbackCommandID(fallbackIndex)
	}
	if strings.TrimSpace(cmd.Name) == "" {
		cmd.Name = strings.TrimSpace(cmd.Command)
	}
	if strings.TrimSpace(cmd.CreatedAt) == "" {
		cmd.CreatedAt = epochTimestamp
	}
	if strings.TrimSpace(cmd.UpdatedAt) == "" {
		cmd.UpdatedAt = cmd.CreatedAt
	}
	return cmd
}

func fallbackCommandID(index int) string {
	return "cmd-" + itoa(index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// EmptyWorkspaceSavedCommands builds an empty, normalized document for
// workspaceID. Returns false if workspaceID is not usable.
func EmptyWorkspaceSavedCommands(workspaceID string) (WorkspaceSavedCommands, bool) {
	normalized, ok := NormalizeWorkspaceID(workspaceID)
	if !ok {
		return WorkspaceSavedCommands{}, false
	}
	return WorkspaceSavedCommands{
		WorkspaceID:   normalized,
		SchemaVersion: SavedCommandsSchemaVersion,
		Commands:      []SavedCommand{},
	}, true
}

// Normalize returns a copy of w with its workspace id normalized (falling
// back to fallbackWorkspaceID when w.WorkspaceID is unusable), its schema
// version pinned to current, and every command normalized. Returns false if
// neither workspace id resolves to something usable.
func (w WorkspaceSavedCommands) Normalize(fallbackWorkspaceID string) (WorkspaceSavedCommands, bool) {
	normalized, ok := NormalizeWorkspaceID(w.WorkspaceID)
	if !ok {
		normalized, ok = NormalizeWorkspaceID(fallbackWorkspaceID)
		if !ok {
			return WorkspaceSavedCommands{}, false
		}
	}

	out := WorkspaceSavedCommands{
		WorkspaceID:   normalized,
		SchemaVersion: SavedCommandsSchemaVersion,
		Commands:      make([]SavedCommand, len(w.Commands)),
	}
	for i, cmd := range w.Commands {
		out.Commands[i] = normalizeSavedCommand(cmd, i+1)
	}
	return out, true
}

// ParseWorkspaceSavedCommandsJSON parses raw JSON into a normalized
// WorkspaceSavedCommands document, accepting the current schema, the legacy
// {workspace_id, commands:[]} root, or a bare command array, in that order.
// Returns false when raw cannot be parsed as any recognized shape.
//
// encoding/json silently zero-values absent fields rather than erroring the
// way serde's required (non-#[serde(default)]) fields do, so the three
// shapes are told apart here by explicit key presence rather than by
// Unmarshal succeeding: a command object only counts as current-schema when
// it actually carries "id", "name", and "command" keys; legacy command
// objects only need "command".
func ParseWorkspaceSavedCommandsJSON(raw []byte, workspaceID string) (WorkspaceSavedCommands, bool) {
	if !isJSONObject(raw) {
		return parseBareCommandArray(raw, workspaceID)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return WorkspaceSavedCommands{}, false
	}

	wsIDRaw, hasWorkspaceID := top["workspace_id"]
	if !hasWorkspaceID {
		return WorkspaceSavedCommands{}, false
	}
	var rawWorkspaceID string
	_ = json.Unmarshal(wsIDRaw, &rawWorkspaceID)

	var items []map[string]json.RawMessage
	if commandsRaw, ok := top["commands"]; ok {
		if err := json.Unmarshal(commandsRaw, &items); err != nil {
			return WorkspaceSavedCommands{}, false
		}
	}

	if allItemsHaveKeys(items, "id", "name", "command") {
		var current WorkspaceSavedCommands
		if err := json.Unmarshal(raw, &current); err != nil {
			return WorkspaceSavedCommands{}, false
		}
		return current.Normalize(workspaceID)
	}

	if !allItemsHaveKeys(items, "command") {
		return WorkspaceSavedCommands{}, false
	}

	normalizedWorkspaceID, ok := NormalizeWorkspaceID(rawWorkspaceID)
	if !ok {
		normalizedWorkspaceID, ok = NormalizeWorkspaceID(workspaceID)
		if !ok {
			return WorkspaceSavedCommands{}, false
		}
	}

	commands := make([]SavedCommand, len(items))
	for i, item := range items {
		cmd, err := decodeLegacyItem(item)
		if err != nil {
			return WorkspaceSavedCommands{}, false
		}
		commands[i] = normalizeSavedCommand(cmd, i+1)
	}

	return WorkspaceSavedCommands{
		WorkspaceID:   normalizedWorkspaceID,
		SchemaVersion: SavedCommandsSchemaVersion,
		Commands:      commands,
	}, true
}

func parseBareCommandArray(raw []byte, workspaceID string) (WorkspaceSavedCommands, bool) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return WorkspaceSavedCommands{}, false
	}
	if !allItemsHaveKeys(items, "command") {
		return WorkspaceSavedCommands{}, false
	}

	normalizedWorkspaceID, ok := NormalizeWorkspaceID(workspaceID)
	if !ok {
		return WorkspaceSavedCommands{}, false
	}

	commands := make([]SavedCommand, len(items))
	for i, item := range items {
		cmd, err := decodeLegacyItem(item)
		if err != nil {
			return WorkspaceSavedCommands{}, false
		}
		commands[i] = normalizeSavedCommand(cmd, i+1)
	}

	return WorkspaceSavedCommands{
		WorkspaceID:   normalizedWorkspaceID,
		SchemaVersion: SavedCommandsSchemaVersion,
		Commands:      commands,
	}, true
}

func allItemsHaveKeys(items []map[string]json.RawMessage, keys ...string) bool {
	for _, item := range items {
		for _, key := range keys {
			if _, ok := item[key]; !ok {
				return false
			}
		}
	}
	return true
}

func decodeLegacyItem(item map[string]json.RawMessage) (SavedCommand, error) {
	encoded, err := json.Marshal(item)
	if err != nil {
		return SavedCommand{}, err
	}
	var legacy legacySavedCommand
	if err := json.Unmarshal(encoded, &legacy); err != nil {
		return SavedCommand{}, err
	}
	return SavedCommand{
		ID:         legacy.ID,
		Name:       legacy.Name,
		Command:    legacy.Command,
		CreatedAt:  legacy.CreatedAt,
		UpdatedAt:  legacy.UpdatedAt,
		LastUsedAt: legacy.LastUsedAt,
	}, nil
}

func isJSONObject(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}
