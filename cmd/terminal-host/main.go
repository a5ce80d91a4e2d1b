// Command terminal-host is the out-of-process owner of the
// interactive-terminal feature: pending-command queues, captured output,
// and the saved-command store. It is managed by the supervisor exactly
// like pty-host, so a UI crash or restart never loses queued approvals or
// in-flight command output.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/logging"
	"github.com/ds-codi/pm-supervisor/internal/terminal"
)

func main() {
	var ipcPort int
	var heartbeatMs uint64
	var idleTimeoutMinutes uint64
	var logLevel string
	flag.IntVar(&ipcPort, "port", 9103, "loopback TCP port the UI connects to")
	flag.Uint64Var(&heartbeatMs, "heartbeat-ms", 10_000, "heartbeat interval sent to the UI")
	flag.Uint64Var(&idleTimeoutMinutes, "idle-timeout-minutes", 30, "how long with no pending commands before the core reports idle")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger, closer, err := logging.Init(logging.Options{Level: logLevel, LogFile: os.Getenv("PM_LOG_FILE")})
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminal-host: init logging: %v\n", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracker := terminal.NewOutputTracker()
	core := terminal.NewInteractiveTerminalCore(tracker)
	repo := terminal.NewSavedCommandsRepositoryFromEnv()

	server := terminal.NewIPCServer(core, tracker, repo, heartbeatMs, time.Duration(idleTimeoutMinutes)*time.Minute, logger)

	watcher, watchErr := terminal.NewSavedCommandsWatcher(repo, logger)
	if watchErr != nil {
		logger.Warn("terminal-host: saved-commands watcher unavailable", "error", watchErr)
	} else {
		defer watcher.Close()
		for workspaceID := range repo.LoadAllWorkspaces() {
			if err := watcher.Watch(workspaceID); err != nil {
				logger.Warn("terminal-host: failed to watch workspace", "workspace_id", workspaceID, "error", err)
			}
		}
		go watchSavedCommands(ctx, watcher, server, logger)
	}

	if err := server.Run(ctx, ipcPort); err != nil && ctx.Err() == nil {
		logger.Error("terminal-host: exited with error", "error", err)
		os.Exit(1)
	}
}

// watchSavedCommands bridges the fsnotify-backed watcher's callback style
// into the IPC server's broadcast, and stops when ctx is cancelled.
func watchSavedCommands(ctx context.Context, watcher *terminal.SavedCommandsWatcher, server *terminal.IPCServer, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		watcher.Run(func(workspaceID string, doc terminal.WorkspaceSavedCommands) {
			logger.Info("terminal-host: saved commands changed externally", "workspace_id", workspaceID)
			server.BroadcastWorkspaceChanged(doc)
		})
		close(done)
	}()

	select {
	case <-ctx.Done():
		_ = watcher.Close()
	case <-done:
	}
}
