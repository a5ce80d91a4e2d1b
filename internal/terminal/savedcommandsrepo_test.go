package terminal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingWorkspaceReturnsSafeDefault(t *testing.T) {
	repo := NewSavedCommandsRepository(t.TempDir())
	model := repo.LoadWorkspace("project-memory-mcp-40f6678f5a9b")

	if model.WorkspaceID != "project-memory-mcp-40f6678f5a9b" {
		t.Fatalf("unexpected workspace id: %s", model.WorkspaceID)
	}
	if len(model.Commands) != 0 {
		t.Fatalf("expected no commands, got %d", len(model.Commands))
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	repo := NewSavedCommandsRepository(t.TempDir())

	model, ok := EmptyWorkspaceSavedCommands("project-memory-mcp-40f6678f5a9b")
	if !ok {
		t.Fatal("expected valid empty workspace")
	}
	model.Commands = append(model.Commands, SavedCommand{
		ID:        "build",
		Name:      "Build",
		Command:   "npm run build",
		CreatedAt: "2026-02-15T00:00:00Z",
		UpdatedAt: "2026-02-15T00:00:00Z",
	})

	if err := repo.SaveWorkspace(model); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := repo.LoadWorkspace("project-memory-mcp-40f6678f5a9b")
	if len(loaded.Commands) != 1 || loaded.Commands[0].Command != "npm run build" {
		t.Fatalf("unexpected reload: %+v", loaded)
	}
}

func TestStartupPreloadReadsWorkspaceDirs(t *testing.T) {
	root := t.TempDir()
	repo := NewSavedCommandsRepository(root)

	workspaceDir := filepath.Join(root, "project-memory-mcp-40f6678f5a9b", interactiveTerminalDirName)
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		t.Fatal(err)
	}
	payload := `{"workspace_id": "project-memory-mcp-40f6678f5a9b", "commands": [{"command": "npx vitest run"}]}`
	if err := os.WriteFile(filepath.Join(workspaceDir, savedCommandsFileName), []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	all := repo.LoadAllWorkspaces()
	model, ok := all["project-memory-mcp-40f6678f5a9b"]
	if !ok {
		t.Fatal("expected workspace to be discovered")
	}
	if len(model.Commands) != 1 || model.Commands[0].Name != "npx vitest run" {
		t.Fatalf("unexpected loaded commands: %+v", model.Commands)
	}
}

func TestLoadLegacyFilenameMigratesToV1Path(t *testing.T) {
	root := t.TempDir()
	repo := NewSavedCommandsRepository(root)

	workspaceDir := filepath.Join(root, "project-memory-mcp-40f6678f5a9b", interactiveTerminalDirName)
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		t.Fatal(err)
	}
	legacyPayload := `{"workspace_id": "project-memory-mcp-40f6678f5a9b", "commands": [{"command": "cargo test"}]}`
	legacyPath := filepath.Join(workspaceDir, legacySavedCommandsFileName)
	if err := os.WriteFile(legacyPath, []byte(legacyPayload), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded := repo.LoadWorkspace("project-memory-mcp-40f6678f5a9b")
	if len(loaded.Commands) != 1 || loaded.Commands[0].Command != "cargo test" {
		t.Fatalf("unexpected loaded commands: %+v", loaded.Commands)
	}

	v1Path := filepath.Join(workspaceDir, savedCommandsFileName)
	if _, err := os.Stat(v1Path); err != nil {
		t.Fatalf("expected v1 file to be written after migration: %v", err)
	}
}

func TestWorkspaceCommandsPathFallsBackToDefaultForInvalidID(t *testing.T) {
	repo := NewSavedCommandsRepository(t.TempDir())
	path := repo.WorkspaceCommandsPath("../escape")
	if filepath.Base(filepath.Dir(filepath.Dir(path))) != filepath.Base(repo.DataRoot()) {
		// sanity: path is rooted under the repository's data root
	}
	expected := filepath.Join(repo.DataRoot(), "default", interactiveTerminalDirName, savedCommandsFileName)
	if path != expected {
		t.Fatalf("expected fallback path %s, got %s", expected, path)
	}
}
