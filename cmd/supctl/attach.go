package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ds-codi/pm-supervisor/internal/ptyhost"
)

func attachCmd(ptyHostAddr *string) *cobra.Command {
	var program string
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Put the local terminal in raw mode and attach to a pty-host session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if program == "" {
				program = os.Getenv("SHELL")
			}
			if program == "" {
				program = "/bin/sh"
			}
			return runAttach(*ptyHostAddr, program)
		},
	}
	cmd.Flags().StringVar(&program, "program", "", "program to spawn (defaults to $SHELL)")
	return cmd
}

func runAttach(addr, program string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial pty-host at %s: %w", addr, err)
	}
	defer conn.Close()

	fd := int(os.Stdin.Fd())
	cols, rows := uint16(80), uint16(24)
	if term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			cols, rows = uint16(w), uint16(h)
		}
	}

	sessionID := uuid.NewString()
	cwd, _ := os.Getwd()
	create, err := ptyhost.EncodeMessage(ptyhost.Message{
		Type:      ptyhost.MsgSessionCreate,
		SessionID: sessionID,
		Program:   program,
		Cwd:       cwd,
		Cols:      cols,
		Rows:      rows,
	})
	if err != nil {
		return err
	}
	if _, err := conn.Write([]byte(create)); err != nil {
		return fmt.Errorf("send session_create: %w", err)
	}

	var oldState *term.State
	if term.IsTerminal(fd) {
		oldState, err = term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, oldState)
		}
	}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go watchResize(conn, sessionID, fd, winch)

	done := make(chan struct{})
	go readSessionOutput(conn, done)
	go pumpStdinToSession(conn, sessionID)
	<-done
	return nil
}

func watchResize(conn net.Conn, sessionID string, fd int, winch <-chan os.Signal) {
	for range winch {
		w, h, err := term.GetSize(fd)
		if err != nil {
			continue
		}
		line, err := ptyhost.EncodeMessage(ptyhost.Message{
			Type:      ptyhost.MsgSessionResize,
			SessionID: sessionID,
			Cols:      uint16(w),
			Rows:      uint16(h),
		})
		if err != nil {
			continue
		}
		conn.Write([]byte(line))
	}
}

func pumpStdinToSession(conn net.Conn, sessionID string) {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			line, encErr := ptyhost.EncodeMessage(ptyhost.Message{
				Type:      ptyhost.MsgSessionInput,
				SessionID: sessionID,
				Data:      string(buf[:n]),
			})
			if encErr == nil {
				conn.Write([]byte(line))
			}
		}
		if err != nil {
			return
		}
	}
}

func readSessionOutput(conn net.Conn, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := ptyhost.DecodeMessage(line)
		if err != nil {
			continue
		}
		switch msg.Type {
		case ptyhost.MsgSessionOutput:
			os.Stdout.WriteString(msg.Data)
		case ptyhost.MsgSessionExited, ptyhost.MsgSessionCreateFailed:
			return
		}
	}
}
