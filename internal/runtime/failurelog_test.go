package runtime

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveWorkspaceRootPrefersPayloadCwdWithProjectMemoryAncestor(t *testing.T) {
	temp := t.TempDir()
	workspaceRoot := filepath.Join(temp, "workspace")
	nested := filepath.Join(workspaceRoot, "server", "src")
	projectMemory := filepath.Join(workspaceRoot, ".projectmemory")

	if err := os.MkdirAll(projectMemory, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(projectMemory, "identity.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	payload := map[string]any{"runtime": map[string]any{"cwd": nested}}
	resolved := resolveWorkspaceRoot(payload)
	if resolved != workspaceRoot {
		t.Fatalf("expected %q, got %q", workspaceRoot, resolved)
	}
}

func TestResolveWorkspaceRootInfersParentForKnownServiceCwd(t *testing.T) {
	temp := t.TempDir()
	workspaceRoot := filepath.Join(temp, "workspace")
	serverDir := filepath.Join(workspaceRoot, "server")
	if err := os.MkdirAll(serverDir, 0755); err != nil {
		t.Fatal(err)
	}

	payload := map[string]any{"runtime": map[string]any{"cwd": serverDir}}
	resolved := resolveWorkspaceRoot(payload)
	if resolved != workspaceRoot {
		t.Fatalf("expected %q, got %q", workspaceRoot, resolved)
	}
}

func TestTrimFailureLogKeepsNewestLinesOnly(t *testing.T) {
	temp := t.TempDir()
	logPath := filepath.Join(temp, "tool-call-failures.ndjson")

	content := strings.Join([]string{
		`{"id":1}`, `{"id":2}`, `{"id":3}`, `{"id":4}`, `{"id":5}`,
	}, "\n")
	if err := os.WriteFile(logPath, []byte(content+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := trimFailureLog(logPath, 3); err != nil {
		t.Fatalf("trimFailureLog: %v", err)
	}

	after, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(after)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], `"id":3`) || !strings.Contains(lines[2], `"id":5`) {
		t.Fatalf("expected newest 3 ids retained in order, got %v", lines)
	}
}

func TestAppendFailedToolCallCreatesJournalUnderResolvedRoot(t *testing.T) {
	temp := t.TempDir()
	workspaceRoot := filepath.Join(temp, "ws")
	if err := os.MkdirAll(workspaceRoot, 0755); err != nil {
		t.Fatal(err)
	}

	payload := map[string]any{"workspace_path": workspaceRoot, "action": "run_command"}
	path, err := AppendFailedToolCall(payload, "boom", map[string]any{"error_class": "internal"})
	if err != nil {
		t.Fatalf("AppendFailedToolCall: %v", err)
	}

	expected := filepath.Join(workspaceRoot, ".projectmemory", "tool-call-failures.ndjson")
	if path != expected {
		t.Fatalf("expected %q, got %q", expected, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "boom") {
		t.Fatalf("expected journal to contain error message, got: %s", content)
	}
}
