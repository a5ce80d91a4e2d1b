package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/pathutil"
)

// FormAppConfig describes one on-demand GUI form app (e.g.
// pm-brainstorm-gui, pm-approval-gui) the supervisor can launch.
type FormAppConfig struct {
	Command        string
	Args           []string
	WorkingDir     string
	Env            map[string]string
	TimeoutSeconds uint64
}

// FormAppResponse summarizes the outcome of one form-app launch.
type FormAppResponse struct {
	AppName         string
	Success         bool
	ResponsePayload map[string]any
	Error           string
	ElapsedMs       uint64
	TimedOut        bool
}

// LaunchFormApp spawns a form-app process, writes payload to its stdin as a
// single NDJSON line, and waits for a matching response line on stdout. If
// timeoutOverride is non-zero it replaces config.TimeoutSeconds.
func LaunchFormApp(ctx context.Context, config FormAppConfig, appName string, payload map[string]any, timeoutOverride uint64) FormAppResponse {
	timeoutSecs := config.TimeoutSeconds
	if timeoutOverride > 0 {
		timeoutSecs = timeoutOverride
	}
	if timeoutSecs == 0 {
		timeoutSecs = 30
	}

	start := time.Now()
	elapsed := func() uint64 { return uint64(time.Since(start).Milliseconds()) }

	cmd := exec.Command(config.Command, config.Args...)
	if config.WorkingDir != "" {
		cmd.Dir = config.WorkingDir
	}
	env := cmd.Environ()
	for k, v := range config.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = pathutil.EnvWithMergedPath(env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return FormAppResponse{AppName: appName, Error: fmt.Sprintf("failed to capture stdin: %v", err), ElapsedMs: elapsed()}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return FormAppResponse{AppName: appName, Error: fmt.Sprintf("failed to capture stdout: %v", err), ElapsedMs: elapsed()}
	}

	if err := cmd.Start(); err != nil {
		return FormAppResponse{AppName: appName, Error: fmt.Sprintf("failed to spawn %s: %v", appName, err), ElapsedMs: elapsed()}
	}

	line, err := json.Marshal(payload)
	if err != nil {
		killForm(cmd)
		return FormAppResponse{AppName: appName, Error: fmt.Sprintf("failed to serialize payload: %v", err), ElapsedMs: elapsed()}
	}
	if _, err := stdin.Write(append(line, '\n')); err != nil {
		killForm(cmd)
		return FormAppResponse{AppName: appName, Error: fmt.Sprintf("stdin write error: %v", err), ElapsedMs: elapsed()}
	}
	_ = stdin.Close()

	type readResult struct {
		payload map[string]any
		err     error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		reader := bufio.NewReader(stdout)
		raw, err := reader.ReadString('\n')
		if err != nil && raw == "" {
			resultCh <- readResult{err: fmt.Errorf("stdout read error: %w", err)}
			return
		}
		var v map[string]any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			resultCh <- readResult{err: fmt.Errorf("invalid response JSON: %w", err)}
			return
		}
		resultCh <- readResult{payload: v}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			killForm(cmd)
			return FormAppResponse{AppName: appName, Error: res.err.Error(), ElapsedMs: elapsed()}
		}
		_ = cmd.Wait()
		return FormAppResponse{AppName: appName, Success: true, ResponsePayload: res.payload, ElapsedMs: elapsed()}

	case <-time.After(time.Duration(timeoutSecs) * time.Second):
		killForm(cmd)
		return FormAppResponse{
			AppName:   appName,
			Error:     fmt.Sprintf("%s timed out after %ds", appName, timeoutSecs),
			ElapsedMs: elapsed(),
			TimedOut:  true,
		}

	case <-ctx.Done():
		killForm(cmd)
		return FormAppResponse{AppName: appName, Error: ctx.Err().Error(), ElapsedMs: elapsed()}
	}
}

func killForm(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
