package runner

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sync"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/control"
	"github.com/ds-codi/pm-supervisor/internal/pathutil"
)

// InteractiveTerminalConfig describes how to launch the interactive-terminal
// GUI process, which also exposes a TCP control server on Port.
type InteractiveTerminalConfig struct {
	Command    string
	Args       []string
	WorkingDir string
	Env        map[string]string
	Port       int
	StopGrace  time.Duration
}

// InteractiveTerminalRunner manages the lifecycle of the single
// interactive-terminal process the supervisor keeps alive for its lifetime.
type InteractiveTerminalRunner struct {
	config InteractiveTerminalConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	pid     int
	running bool
	exited  chan struct{}
}

// NewInteractiveTerminalRunner builds a runner from its config section.
func NewInteractiveTerminalRunner(config InteractiveTerminalConfig) *InteractiveTerminalRunner {
	if config.StopGrace <= 0 {
		config.StopGrace = 5 * time.Second
	}
	return &InteractiveTerminalRunner{config: config}
}

func (r *InteractiveTerminalRunner) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

func hasPortFlag(args []string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "--port" {
			return true
		}
	}
	return false
}

func (r *InteractiveTerminalRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	args := make([]string, 0, len(r.config.Args)+2)
	if !hasPortFlag(r.config.Args) {
		args = append(args, "--port", fmt.Sprintf("%d", r.config.Port))
	}
	args = append(args, r.config.Args...)

	cmd := exec.CommandContext(context.Background(), r.config.Command, args...)
	if r.config.WorkingDir != "" {
		cmd.Dir = r.config.WorkingDir
	}
	env := cmd.Environ()
	for k, v := range r.config.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = pathutil.EnvWithMergedPath(env)
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn interactive-terminal process %q: %w", r.config.Command, err)
	}

	r.cmd = cmd
	r.pid = cmd.Process.Pid
	r.running = true
	r.exited = make(chan struct{})

	exited := r.exited
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	return nil
}

func (r *InteractiveTerminalRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	pid := r.pid
	grace := r.config.StopGrace
	exited := r.exited
	r.mu.Unlock()

	if err := stopProcessGroup(pid, grace, exited); err != nil {
		return fmt.Errorf("stop interactive-terminal process: %w", err)
	}
	<-exited

	r.mu.Lock()
	r.running = false
	r.pid = 0
	r.mu.Unlock()
	return nil
}

func (r *InteractiveTerminalRunner) Status() control.ServiceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return control.StatusRunning
	}
	return control.StatusStopped
}

func (r *InteractiveTerminalRunner) HealthProbe(ctx context.Context) HealthStatus {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return Unhealthy("not running")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", r.config.Port)
	dialer := net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Unhealthy(fmt.Sprintf("TCP connect to %s failed: %v", addr, err))
	}
	_ = conn.Close()
	return Healthy()
}

func (r *InteractiveTerminalRunner) DiscoverEndpoint(ctx context.Context) (string, error) {
	return fmt.Sprintf("http://127.0.0.1:%d", r.config.Port), nil
}
