package runner

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/control"
	"github.com/ds-codi/pm-supervisor/internal/pathutil"
)

// NodeRunnerConfig describes how to launch a local Node.js MCP server
// process.
type NodeRunnerConfig struct {
	Command        string
	Args           []string
	WorkingDir     string
	Env            map[string]string
	HealthTimeout  time.Duration
	Port           int
	StopGrace      time.Duration
}

// NodeRunner manages the lifecycle of a local Node.js MCP server process.
type NodeRunner struct {
	config NodeRunnerConfig

	mu      sync.Mutex
	cmd     *exec.Cmd
	pid     int
	running bool
	exited  chan struct{}
}

// NewNodeRunner builds a NodeRunner from its config.
func NewNodeRunner(config NodeRunnerConfig) *NodeRunner {
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = 1500 * time.Millisecond
	}
	if config.StopGrace <= 0 {
		config.StopGrace = 5 * time.Second
	}
	return &NodeRunner{config: config}
}

// PID returns the OS PID of the running process, or 0 if stopped.
func (r *NodeRunner) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

func (r *NodeRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	cmd := exec.CommandContext(context.Background(), r.config.Command, r.config.Args...)
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
		return fmt.Errorf("spawn node process %q: %w", r.config.Command, err)
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

func (r *NodeRunner) Stop(ctx context.Context) error {
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
		return fmt.Errorf("stop node process: %w", err)
	}

	<-exited

	r.mu.Lock()
	r.running = false
	r.pid = 0
	r.mu.Unlock()
	return nil
}

func (r *NodeRunner) Status() control.ServiceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return control.StatusRunning
	}
	return control.StatusStopped
}

func (r *NodeRunner) HealthProbe(ctx context.Context) HealthStatus {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if !running {
		return Unhealthy("not running")
	}

	client := &http.Client{Timeout: r.config.HealthTimeout}
	url := fmt.Sprintf("http://127.0.0.1:%d/health", r.config.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Unhealthy(err.Error())
	}
	resp, err := client.Do(req)
	if err != nil {
		return Unhealthy(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Healthy()
	}
	return Unhealthy(fmt.Sprintf("HTTP %d", resp.StatusCode))
}

func (r *NodeRunner) DiscoverEndpoint(ctx context.Context) (string, error) {
	return fmt.Sprintf("http://127.0.0.1:%d", r.config.Port), nil
}
