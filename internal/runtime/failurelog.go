package runtime

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	failureLogFile              = "tool-call-failures.ndjson"
	defaultMaxFailureLogLines   = 500
	failureLogMaxLinesEnvVar    = "PM_TOOL_FAILURE_LOG_MAX_LINES"
	failureLogWorkspaceEnvVar   = "PM_WORKSPACE_PATH"
	identityMarkerRelPath       = ".projectmemory/identity.json"
)

var knownServiceSubdirNames = map[string]bool{
	"server":                true,
	"dashboard":             true,
	"supervisor":             true,
	"container":             true,
	"interactive-terminal":   true,
	"vscode-extension":       true,
	"pm-approval-gui":        true,
	"pm-brainstorm-gui":      true,
}

// AppendFailedToolCall writes one NDJSON record describing a failed
// dispatch call to <workspace root>/.projectmemory/tool-call-failures.ndjson,
// then trims the file to the configured maximum line count. It returns the
// path written to.
func AppendFailedToolCall(payload map[string]any, errorMessage string, errorEnvelope map[string]any) (string, error) {
	workspaceRoot := resolveWorkspaceRoot(payload)
	if workspaceRoot == "" {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		workspaceRoot = cwd
	}

	projectMemoryDir := filepath.Join(workspaceRoot, ".projectmemory")
	if err := os.MkdirAll(projectMemoryDir, 0755); err != nil {
		return "", err
	}

	logPath := filepath.Join(projectMemoryDir, failureLogFile)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", err
	}

	record := map[string]any{
		"timestamp_unix_ms": time.Now().UnixMilli(),
		"source":            "supervisor.mcp_runtime_exec",
		"workspace_root":    workspaceRoot,
		"workspace_id":      firstNonEmpty(extractString(payload, "runtime", "workspace_id"), extractString(payload, "workspace_id")),
		"runtime_session_id": extractString(payload, "runtime", "session_id"),
		"request_id":        extractString(payload, "correlation", "request_id"),
		"trace_id":          extractString(payload, "correlation", "trace_id"),
		"runtime_op":        extractString(payload, "runtime", "op"),
		"action":            extractString(payload, "action"),
		"error": map[string]any{
			"message":  errorMessage,
			"envelope": errorEnvelope,
		},
		"payload": payload,
	}

	line, err := json.Marshal(record)
	if err != nil {
		line = []byte("{}")
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	_ = trimFailureLog(logPath, failureLogMaxLines())
	return logPath, nil
}

func failureLogMaxLines() int {
	raw := strings.TrimSpace(os.Getenv(failureLogMaxLinesEnvVar))
	if raw == "" {
		return defaultMaxFailureLogLines
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return defaultMaxFailureLogLines
	}
	return value
}

func trimFailureLog(path string, maxLines int) error {
	if maxLines <= 0 {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var lines []string
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) <= maxLines {
		return nil
	}

	start := len(lines) - maxLines
	trimmed := strings.Join(lines[start:], "\n") + "\n"
	return os.WriteFile(path, []byte(trimmed), 0644)
}

func resolveWorkspaceRoot(payload map[string]any) string {
	for _, path := range [][]string{{"runtime", "workspace_path"}, {"workspace_path"}} {
		if s := extractString(payload, path...); strings.TrimSpace(s) != "" {
			normalized := absolutize(s)
			if root, ok := findWorkspaceRootWithProjectMemory(normalized); ok {
				return root
			}
			return normalized
		}
	}

	for _, path := range [][]string{{"runtime", "cwd"}, {"cwd"}} {
		if s := extractString(payload, path...); strings.TrimSpace(s) != "" {
			normalized := absolutize(s)
			if root, ok := findWorkspaceRootWithProjectMemory(normalized); ok {
				return root
			}
			if root, ok := inferWorkspaceRootFromCwd(normalized); ok {
				return root
			}
			return normalized
		}
	}

	if fromEnv := strings.TrimSpace(os.Getenv(failureLogWorkspaceEnvVar)); fromEnv != "" {
		normalized := absolutize(fromEnv)
		if root, ok := findWorkspaceRootWithProjectMemory(normalized); ok {
			return root
		}
		if _, err := os.Stat(normalized); err == nil {
			return normalized
		}
	}

	return ""
}

func inferWorkspaceRootFromCwd(cwd string) (string, bool) {
	dir := cwd
	if info, err := os.Stat(cwd); err != nil || !info.IsDir() {
		dir = filepath.Dir(cwd)
	}

	name := strings.ToLower(filepath.Base(dir))
	if knownServiceSubdirNames[name] {
		parent := filepath.Dir(dir)
		return parent, true
	}
	return dir, true
}

func findWorkspaceRootWithProjectMemory(path string) (string, bool) {
	current := path
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		current = filepath.Dir(path)
	}

	for {
		identity := filepath.Join(current, identityMarkerRelPath)
		if _, err := os.Stat(identity); err == nil {
			return current, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return "", false
}

func absolutize(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, path)
}

func extractString(payload map[string]any, path ...string) string {
	var cursor any = payload
	for _, key := range path {
		m, ok := cursor.(map[string]any)
		if !ok {
			return ""
		}
		cursor, ok = m[key]
		if !ok {
			return ""
		}
	}
	s, _ := cursor.(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
