package terminal

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SavedCommandsWatcher watches the saved-commands file for one or more
// workspaces and notifies a callback whenever another process (a second
// dashboard instance, a CLI edit) rewrites one, so the in-memory view stays
// in sync without polling.
type SavedCommandsWatcher struct {
	repo    *SavedCommandsRepository
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu      sync.Mutex
	watched map[string]string // workspaceID -> watched directory
}

// NewSavedCommandsWatcher builds a watcher backed by repo. Call Watch to add
// workspaces and Run to start processing events.
func NewSavedCommandsWatcher(repo *SavedCommandsRepository, logger *slog.Logger) (*SavedCommandsWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SavedCommandsWatcher{
		repo:    repo,
		watcher: fsw,
		logger:  logger,
		watched: make(map[string]string),
	}, nil
}

// Watch begins watching workspaceID's interactive-terminal directory for
// changes. Safe to call multiple times for the same workspace.
func (w *SavedCommandsWatcher) Watch(workspaceID string) error {
	normalized, ok := NormalizeWorkspaceID(workspaceID)
	if !ok {
		normalized = "default"
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[normalized]; ok {
		return nil
	}

	dir := filepath.Dir(w.repo.WorkspaceCommandsPath(normalized))
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.watched[normalized] = dir
	return nil
}

// Close stops the underlying fsnotify watcher.
func (w *SavedCommandsWatcher) Close() error {
	return w.watcher.Close()
}

// Run processes filesystem events until the watcher is closed, invoking
// onChange with the reloaded document whenever a watched workspace's
// saved-commands file is written, created, or renamed into place.
func (w *SavedCommandsWatcher) Run(onChange func(workspaceID string, doc WorkspaceSavedCommands)) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if name != savedCommandsFileName && name != legacySavedCommandsFileName {
				continue
			}
			workspaceID := w.workspaceIDForDir(filepath.Dir(event.Name))
			if workspaceID == "" {
				continue
			}
			onChange(workspaceID, w.repo.LoadWorkspace(workspaceID))

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("saved-commands watcher error", "error", err)
		}
	}
}

func (w *SavedCommandsWatcher) workspaceIDForDir(dir string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for workspaceID, watchedDir := range w.watched {
		if watchedDir == dir {
			return workspaceID
		}
	}
	return ""
}
