package terminal

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// IPCServer binds a loopback TCP port and serves exactly one client at a
// time: the interactive-terminal observer (the bundled dashboard, supctl,
// or any other local client speaking the terminal-host protocol). It is
// the UI-facing counterpart to internal/ptyhost's IPCServer, translating
// session/command/saved-command requests into InteractiveTerminalCore,
// OutputTracker, and SavedCommandsRepository calls.
type IPCServer struct {
	core    *InteractiveTerminalCore
	tracker *OutputTracker
	repo    *SavedCommandsRepository

	logger      *slog.Logger
	heartbeatMs uint64
	idleTimeout time.Duration

	writeMu     sync.Mutex
	currentSend func(Message) error
}

// NewIPCServer builds an IPCServer around core, tracker, and repo.
func NewIPCServer(core *InteractiveTerminalCore, tracker *OutputTracker, repo *SavedCommandsRepository, heartbeatMs uint64, idleTimeout time.Duration, logger *slog.Logger) *IPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatMs == 0 {
		heartbeatMs = 10_000
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	return &IPCServer{core: core, tracker: tracker, repo: repo, logger: logger, heartbeatMs: heartbeatMs, idleTimeout: idleTimeout}
}

// Run binds ipcPort and serves clients, one at a time, until ctx is
// cancelled. Each client gets the read/write/heartbeat loops; when a
// client disconnects its connection is dropped and a fresh one is
// accepted, so a crashed or restarted UI never leaves this process stuck.
// A watchdog evicts stale output every minute and logs at debug level once
// the core is idle past idleTimeout with no pending work; idleness does not
// drop the connection or stop the server.
func (s *IPCServer) Run(ctx context.Context, ipcPort int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", ipcPort))
	if err != nil {
		return fmt.Errorf("bind ipc port %d: %w", ipcPort, err)
	}
	defer listener.Close()

	s.logger.Info("terminal-host: ipc server listening", "port", ipcPort)

	go s.idleWatchdog(ctx)

	for {
		conn, err := s.acceptOne(ctx, listener)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if conn == nil {
			return ctx.Err()
		}
		s.serveClient(ctx, conn)
	}
}

func (s *IPCServer) acceptOne(ctx context.Context, listener net.Listener) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := listener.Accept()
		ch <- result{conn, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("ipc accept: %w", res.err)
		}
		return res.conn, nil
	case <-ctx.Done():
		return nil, nil
	}
}

func (s *IPCServer) setCurrentSend(send func(Message) error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.currentSend = send
}

// BroadcastWorkspaceChanged notifies the currently connected client, if
// any, that a workspace's saved-commands file changed on disk. Intended to
// be wired as the SavedCommandsWatcher's onChange callback. A no-op when no
// client is connected: the next list_saved_commands request picks up the
// change instead.
func (s *IPCServer) BroadcastWorkspaceChanged(doc WorkspaceSavedCommands) {
	s.writeMu.Lock()
	send := s.currentSend
	s.writeMu.Unlock()
	if send == nil {
		return
	}
	if err := send(WorkspaceChangedMessage(doc)); err != nil {
		s.logger.Warn("terminal-host: failed to push workspace change", "error", err)
	}
}

func (s *IPCServer) idleWatchdog(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tracker.EvictStale()
			if s.core.ShouldExit(s.idleTimeout) {
				s.logger.Debug("terminal-host: idle past timeout with no pending commands", "idle_timeout", s.idleTimeout)
			}
		}
	}
}

func (s *IPCServer) serveClient(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.core.SetConnected(true)
	defer s.core.SetConnected(false)

	s.logger.Info("terminal-host: client connected", "peer", conn.RemoteAddr().String())

	var connMu sync.Mutex
	writeLine := func(msg Message) error {
		line, err := EncodeMessage(msg)
		if err != nil {
			return err
		}
		connMu.Lock()
		defer connMu.Unlock()
		_, err = conn.Write([]byte(line))
		return err
	}

	s.setCurrentSend(writeLine)
	defer s.setCurrentSend(nil)

	g, gctx := errgroup.WithContext(ctx)
	gctx, stopLoops := context.WithCancel(gctx)
	defer stopLoops()
	// Closing the connection when the loops stop unblocks the reader on
	// ctx cancellation.
	go func() {
		<-gctx.Done()
		_ = conn.Close()
	}()

	g.Go(func() error {
		ticker := time.NewTicker(time.Duration(s.heartbeatMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				if err := writeLine(HeartbeatMessage(uint64(t.Unix()))); err != nil {
					return nil
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			msg, err := DecodeMessage(line)
			if err != nil {
				s.logger.Warn("terminal-host: bad message", "error", err)
				continue
			}
			s.handleIncoming(gctx, msg, writeLine)
		}
		s.logger.Info("terminal-host: client disconnected")
		stopLoops()
		return nil
	})

	_ = g.Wait()
}

func (s *IPCServer) handleIncoming(ctx context.Context, msg Message, writeLine func(Message) error) {
	switch msg.Type {
	case MsgCreateSession:
		s.core.CreateSession(msg.SessionID, RuntimeContext{WorkspacePath: msg.WorkspaceID})
		s.core.ResizeSession(msg.SessionID, msg.Cols, msg.Rows)

	case MsgCloseSession:
		s.core.CloseSession(msg.SessionID)

	case MsgRenameSession:
		if !s.core.RenameSession(msg.SessionID, msg.DisplayName) {
			_ = writeLine(ErrorMessage(msg.RequestID, "unknown session"))
		}

	case MsgResizeSession:
		if !s.core.ResizeSession(msg.SessionID, msg.Cols, msg.Rows) {
			_ = writeLine(ErrorMessage(msg.RequestID, "unknown session"))
		}

	case MsgSwitchSession:
		if !s.core.SwitchActiveSession(msg.SessionID) {
			_ = writeLine(ErrorMessage(msg.RequestID, "unknown session"))
		}

	case MsgEnqueueRequest:
		if msg.Request == nil {
			_ = writeLine(ErrorMessage(msg.RequestID, "missing request payload"))
			return
		}
		s.core.EnqueueRequest(msg.SessionID, *msg.Request)
		_ = writeLine(Message{Type: MsgRequestQueued, SessionID: msg.SessionID, RequestID: msg.Request.ID})

	case MsgApprove:
		req, ok := s.core.Approve(msg.SessionID)
		if !ok {
			_ = writeLine(ErrorMessage(msg.RequestID, "no pending request"))
			return
		}
		_ = writeLine(Message{Type: MsgRequestApproved, SessionID: msg.SessionID, RequestID: req.ID})
		go func() {
			result := Execute(ctx, s.tracker, req, func(stream, line string) {
				_ = writeLine(SessionOutputMessage(req.ID, stream+": "+line))
			})
			_ = writeLine(OutputResultMessage(result))
		}()

	case MsgDecline:
		req, ok := s.core.Decline(msg.SessionID, msg.Reason)
		if !ok {
			_ = writeLine(ErrorMessage(msg.RequestID, "no pending request"))
			return
		}
		_ = writeLine(Message{Type: MsgRequestDeclined, SessionID: msg.SessionID, RequestID: req.ID})

	case MsgReadOutput:
		_ = writeLine(OutputResultMessage(s.core.ExportCapturedOutput(msg.CommandID)))

	case MsgKillCommand:
		_ = writeLine(KillResultMessage(s.tracker.TryKill(msg.CommandID)))

	case MsgListSavedCommands:
		_ = writeLine(SavedCommandsListMessage(s.repo.LoadWorkspace(msg.WorkspaceID)))

	case MsgSaveCommand:
		if msg.Command == nil {
			_ = writeLine(ErrorMessage(msg.RequestID, "missing command payload"))
			return
		}
		doc := s.repo.LoadWorkspace(msg.WorkspaceID)
		doc = upsertSavedCommand(doc, *msg.Command)
		if err := s.repo.SaveWorkspace(doc); err != nil {
			_ = writeLine(ErrorMessage(msg.RequestID, err.Error()))
			return
		}
		_ = writeLine(SavedCommandsListMessage(doc))

	case MsgDeleteCommand:
		doc := s.repo.LoadWorkspace(msg.WorkspaceID)
		doc = removeSavedCommand(doc, msg.CommandID)
		if err := s.repo.SaveWorkspace(doc); err != nil {
			_ = writeLine(ErrorMessage(msg.RequestID, err.Error()))
			return
		}
		_ = writeLine(SavedCommandsListMessage(doc))

	default:
		// Heartbeat and any other client->server message: nothing to do.
	}
}

func upsertSavedCommand(doc WorkspaceSavedCommands, cmd SavedCommand) WorkspaceSavedCommands {
	for i, existing := range doc.Commands {
		if existing.ID == cmd.ID {
			doc.Commands[i] = cmd
			return doc
		}
	}
	doc.Commands = append(doc.Commands, cmd)
	return doc
}

func removeSavedCommand(doc WorkspaceSavedCommands, id string) WorkspaceSavedCommands {
	filtered := doc.Commands[:0]
	for _, existing := range doc.Commands {
		if existing.ID != id {
			filtered = append(filtered, existing)
		}
	}
	doc.Commands = filtered
	return doc
}
