package ptyhost

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	creackpty "github.com/creack/pty"
)

// HostEvent is emitted by an active session toward the IPC send loop.
type HostEvent struct {
	SessionID string
	Output    []byte
	Exited    bool
	ExitCode  *int
}

type activeSession struct {
	ptmx *os.File
	cmd  *exec.Cmd
}

// Manager owns every live PTY session spawned by this pty-host process.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*activeSession
	events   chan<- HostEvent
}

// NewManager builds a Manager that forwards session output and exit
// notifications onto events.
func NewManager(events chan<- HostEvent) *Manager {
	return &Manager{
		sessions: make(map[string]*activeSession),
		events:   events,
	}
}

// Spawn launches a new PTY session for req and starts its output reader.
func (m *Manager) Spawn(req Message) error {
	m.mu.Lock()
	if _, exists := m.sessions[req.SessionID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("session %s already exists", req.SessionID)
	}
	m.mu.Unlock()

	cmd := exec.Command(req.Program, req.Args...)
	cmd.Dir = req.Cwd
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	env := cmd.Environ()
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{Cols: req.Cols, Rows: req.Rows})
	if err != nil {
		return fmt.Errorf("spawn session %s: %w", req.SessionID, err)
	}

	session := &activeSession{ptmx: ptmx, cmd: cmd}
	m.mu.Lock()
	m.sessions[req.SessionID] = session
	m.mu.Unlock()

	go m.readLoop(req.SessionID, session)
	return nil
}

func (m *Manager) readLoop(sessionID string, session *activeSession) {
	buf := make([]byte, 32*1024)
	for {
		n, err := session.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			m.events <- HostEvent{SessionID: sessionID, Output: chunk}
		}
		if err != nil {
			break
		}
	}

	exitCode := exitCodeOf(session.cmd)
	m.events <- HostEvent{SessionID: sessionID, Exited: true, ExitCode: exitCode}
}

func exitCodeOf(cmd *exec.Cmd) *int {
	_ = cmd.Wait()
	if cmd.ProcessState == nil {
		return nil
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		return nil
	}
	return &code
}

// WriteInput writes raw bytes to a session's PTY. Unknown sessions are
// silently ignored, matching the host's own tolerance for stale commands
// racing a session's exit.
func (m *Manager) WriteInput(sessionID string, data []byte) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	_, _ = session.ptmx.Write(data)
}

// Resize changes a session's PTY window size.
func (m *Manager) Resize(sessionID string, cols, rows uint16) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}
	_ = creackpty.Setsize(session.ptmx, &creackpty.Winsize{Cols: cols, Rows: rows})
}

// Kill terminates a single session's process and removes it from the map.
func (m *Manager) Kill(sessionID string) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if session.cmd.Process != nil {
		_ = syscall.Kill(-session.cmd.Process.Pid, syscall.SIGKILL)
	}
	_ = session.ptmx.Close()
}

// KillAll terminates every active session, used during pty-host shutdown.
func (m *Manager) KillAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Kill(id)
	}
}

// Remove drops a session from the map without killing it, used once the
// session's own exit has already been observed and reported.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}
