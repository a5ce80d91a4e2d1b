package terminal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/config"
)

const (
	savedCommandsFileName       = "saved-commands.v1.json"
	legacySavedCommandsFileName = "saved-commands.json"
	interactiveTerminalDirName  = "interactive-terminal"
)

var tempFileCounter uint64

// SavedCommandsRepository reads and writes per-workspace saved-command
// documents under a shared data root, migrating the legacy filename to the
// current one on first load.
type SavedCommandsRepository struct {
	dataRoot string
}

// NewSavedCommandsRepositoryFromEnv builds a repository rooted at the
// shared data directory (config.DataRoot).
func NewSavedCommandsRepositoryFromEnv() *SavedCommandsRepository {
	return &SavedCommandsRepository{dataRoot: config.DataRoot()}
}

// NewSavedCommandsRepository builds a repository rooted at an explicit
// directory, primarily for tests.
func NewSavedCommandsRepository(dataRoot string) *SavedCommandsRepository {
	return &SavedCommandsRepository{dataRoot: dataRoot}
}

// DataRoot returns the repository's root directory.
func (r *SavedCommandsRepository) DataRoot() string {
	return r.dataRoot
}

// LoadWorkspace returns the saved-command document for workspaceID, falling
// back to an empty document (under "default" if workspaceID itself does not
// normalize) whenever nothing usable is on disk. Loading from the legacy
// filename triggers an immediate migration save to the current filename.
func (r *SavedCommandsRepository) LoadWorkspace(workspaceID string) WorkspaceSavedCommands {
	normalized, ok := NormalizeWorkspaceID(workspaceID)
	if !ok {
		empty, _ := EmptyWorkspaceSavedCommands("default")
		return empty
	}

	path, isLegacy := r.resolveExistingPath(normalized)
	if path == "" {
		empty, _ := EmptyWorkspaceSavedCommands(normalized)
		return empty
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		empty, _ := EmptyWorkspaceSavedCommands(normalized)
		return empty
	}

	parsed, ok := ParseWorkspaceSavedCommandsJSON(raw, normalized)
	if !ok {
		parsed, _ = EmptyWorkspaceSavedCommands(normalized)
	}

	if isLegacy {
		_ = r.SaveWorkspace(parsed)
	}

	return parsed
}

// LoadAllWorkspaces scans the data root for workspace directories carrying a
// saved-commands file (current or legacy) and loads each one.
func (r *SavedCommandsRepository) LoadAllWorkspaces() map[string]WorkspaceSavedCommands {
	loaded := make(map[string]WorkspaceSavedCommands)

	entries, err := os.ReadDir(r.dataRoot)
	if err != nil {
		return loaded
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		workspaceID := entry.Name()
		if _, ok := NormalizeWorkspaceID(workspaceID); !ok {
			continue
		}

		path, _ := r.resolveExistingPath(workspaceID)
		if path == "" {
			continue
		}

		loaded[workspaceID] = r.LoadWorkspace(workspaceID)
	}

	return loaded
}

// SaveWorkspace normalizes model and atomically writes it to the current
// saved-commands path for its workspace.
func (r *SavedCommandsRepository) SaveWorkspace(model WorkspaceSavedCommands) error {
	normalized, ok := model.Normalize(model.WorkspaceID)
	if !ok {
		return fmt.Errorf("saved commands: invalid workspace_id %q", model.WorkspaceID)
	}

	path := r.WorkspaceCommandsPath(normalized.WorkspaceID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	payload, err := marshalIndented(normalized)
	if err != nil {
		return err
	}

	tempPath := tempPathFor(path)
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return err
	}

	_ = os.Remove(path)
	return os.Rename(tempPath, path)
}

// WorkspaceCommandsPath returns the current-schema saved-commands path for
// workspaceID, normalizing to "default" if it is not itself usable.
func (r *SavedCommandsRepository) WorkspaceCommandsPath(workspaceID string) string {
	normalized, ok := NormalizeWorkspaceID(workspaceID)
	if !ok {
		normalized = "default"
	}
	return r.workspaceCommandsPathFor(normalized, savedCommandsFileName)
}

func (r *SavedCommandsRepository) resolveExistingPath(workspaceID string) (path string, isLegacy bool) {
	current := r.workspaceCommandsPathFor(workspaceID, savedCommandsFileName)
	if _, err := os.Stat(current); err == nil {
		return current, false
	}
	legacy := r.workspaceCommandsPathFor(workspaceID, legacySavedCommandsFileName)
	if _, err := os.Stat(legacy); err == nil {
		return legacy, true
	}
	return "", false
}

func (r *SavedCommandsRepository) workspaceCommandsPathFor(workspaceID, fileName string) string {
	return filepath.Join(r.dataRoot, workspaceID, interactiveTerminalDirName, fileName)
}

func marshalIndented(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func tempPathFor(path string) string {
	nanos := time.Now().UnixNano()
	pid := os.Getpid()
	counter := atomic.AddUint64(&tempFileCounter, 1)
	name := filepath.Base(path)
	tempName := fmt.Sprintf("%s.%d.%d.%d.tmp", name, pid, nanos, counter)
	return filepath.Join(filepath.Dir(path), tempName)
}
