package terminal

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/pathutil"
)

const defaultCommandTimeout = 5 * time.Minute

// Execute runs an approved CommandRequest to completion as a plain
// subprocess (not a live PTY), streaming each output line to onOutput as it
// arrives and recording the final captured output and exit code in
// tracker. It registers req.ID as a kill target for the duration of the
// run, so a concurrent OutputTracker.TryKill(req.ID) terminates it early.
// Blocks until the command exits, is killed, or its timeout elapses.
func Execute(ctx context.Context, tracker *OutputTracker, req CommandRequest, onOutput func(stream, line string)) ReadOutputResponse {
	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	if req.WorkingDirectory != "" {
		cmd.Dir = req.WorkingDirectory
	}
	env := cmd.Environ()
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = pathutil.EnvWithMergedPath(env)

	stdoutPipe, _ := cmd.StdoutPipe()
	stderrPipe, _ := cmd.StderrPipe()

	killCh := make(chan struct{}, 1)
	tracker.RegisterKillSender(req.ID, killCh)

	startedAt := NowEpochMillis()
	if err := cmd.Start(); err != nil {
		tracker.MarkCompleted(req.ID, nil, "", err.Error())
		return tracker.BuildReadOutputResponse(req.ID)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	streamDone := make(chan struct{}, 2)
	go func() { streamPipe(stdoutPipe, "stdout", &stdoutBuf, onOutput); streamDone <- struct{}{} }()
	go func() { streamPipe(stderrPipe, "stderr", &stderrBuf, onOutput); streamDone <- struct{}{} }()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-killCh:
		_ = cmd.Process.Kill()
		<-waitDone
	case <-waitDone:
	}
	<-streamDone
	<-streamDone

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	completedAt := NowEpochMillis()
	tracker.MarkCompleted(req.ID, &exitCode, stdoutBuf.String(), stderrBuf.String())

	lines := splitPersistedLines(stdoutBuf.String(), "stdout")
	lines = append(lines, splitPersistedLines(stderrBuf.String(), "stderr")...)
	_, _ = WriteCommandOutputFile(req, StatusApproved, lines, &exitCode, startedAt, completedAt)

	return tracker.BuildReadOutputResponse(req.ID)
}

func streamPipe(r io.Reader, stream string, buf *bytes.Buffer, onOutput func(stream, line string)) {
	if r == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if onOutput != nil {
			onOutput(stream, line)
		}
	}
}

func splitPersistedLines(text, stream string) []PersistedOutputLine {
	if text == "" {
		return nil
	}
	ts := NowEpochMillis()
	var lines []PersistedOutputLine
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, PersistedOutputLine{TimestampMs: ts, Stream: stream, Text: text[start:i]})
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, PersistedOutputLine{TimestampMs: ts, Stream: stream, Text: text[start:]})
	}
	return lines
}
