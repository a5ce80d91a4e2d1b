package ptyhost

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

// IPCServer binds a loopback TCP port and serves exactly one client: the
// interactive-terminal UI process. Once that client disconnects the server
// kills every session and returns.
type IPCServer struct {
	manager     *Manager
	logger      *slog.Logger
	heartbeatMs uint64
}

// NewIPCServer builds an IPCServer around manager.
func NewIPCServer(manager *Manager, heartbeatMs uint64, logger *slog.Logger) *IPCServer {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatMs == 0 {
		heartbeatMs = 10_000
	}
	return &IPCServer{manager: manager, heartbeatMs: heartbeatMs, logger: logger}
}

// Run binds ipcPort, accepts one client connection, and serves the read,
// write, event-forwarding, and heartbeat loops until the client disconnects
// or ctx is cancelled.
func (s *IPCServer) Run(ctx context.Context, ipcPort int, events <-chan HostEvent) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", ipcPort))
	if err != nil {
		return fmt.Errorf("bind ipc port %d: %w", ipcPort, err)
	}
	defer listener.Close()

	s.logger.Info("pty-host: ipc server listening", "port", ipcPort)

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := listener.Accept()
		acceptCh <- acceptResult{conn, err}
	}()

	var conn net.Conn
	select {
	case res := <-acceptCh:
		if res.err != nil {
			return fmt.Errorf("ipc accept: %w", res.err)
		}
		conn = res.conn
	case <-ctx.Done():
		return ctx.Err()
	}
	defer conn.Close()

	s.logger.Info("pty-host: ui process connected", "peer", conn.RemoteAddr().String())

	var writeMu sync.Mutex
	writeLine := func(msg Message) error {
		line, err := EncodeMessage(msg)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err = conn.Write([]byte(line))
		return err
	}

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
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return nil
				}
				var msg Message
				if event.Exited {
					msg = SessionExited(event.SessionID, event.ExitCode)
				} else {
					msg = SessionOutput(event.SessionID, string(event.Output))
				}
				if err := writeLine(msg); err != nil {
					return nil
				}
			case <-gctx.Done():
				return nil
			}
		}
	})

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
				s.logger.Warn("pty-host: bad message", "error", err)
				continue
			}
			s.handleIncoming(msg, writeLine)
		}
		s.logger.Info("pty-host: ui process disconnected")
		stopLoops()
		return nil
	})

	err = g.Wait()
	s.manager.KillAll()
	return err
}

func (s *IPCServer) handleIncoming(msg Message, writeLine func(Message) error) {
	switch msg.Type {
	case MsgSessionCreate:
		if err := s.manager.Spawn(msg); err != nil {
			_ = writeLine(SessionCreateFailed(msg.SessionID, err.Error()))
			return
		}
		_ = writeLine(SessionCreated(msg.SessionID))

	case MsgSessionInput:
		s.manager.WriteInput(msg.SessionID, []byte(msg.Data))

	case MsgSessionResize:
		s.manager.Resize(msg.SessionID, msg.Cols, msg.Rows)

	case MsgSessionKill:
		s.manager.Kill(msg.SessionID)

	case MsgSessionExited:
		s.manager.Remove(msg.SessionID)

	default:
		// Heartbeat and any other UI->host message: nothing to do.
	}
}
