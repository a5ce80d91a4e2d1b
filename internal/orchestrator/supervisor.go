package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/control"
	"github.com/ds-codi/pm-supervisor/internal/runner"
)

// healthProbeInterval is how often a connected service is re-probed.
const healthProbeInterval = 5 * time.Second

// ManagedService pairs a service's registry name with the runner that owns
// its process lifecycle, and the connection state machine + backoff state
// the health-probe loop drives for it across reconnects.
type ManagedService struct {
	Name    string
	Runner  runner.ServiceRunner
	conn    *runner.ConnectionStateMachine
	backoff *runner.BackoffState
}

// Supervisor composes every registered managed service (the Node backend,
// the dashboard, the interactive terminal) into a single startup/shutdown
// lifecycle; on-demand form apps are launched separately and are not
// registered with it. Every runner registered with it already
// places its own child in its own POSIX process group (see
// internal/runner/processgroup.go); the supervisor's job is to guarantee
// StopAll runs on every exit path so none of those groups are orphaned.
type Supervisor struct {
	mu       sync.Mutex
	services []ManagedService
	registry *control.Registry
	logger   *slog.Logger

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	probeCancel context.CancelFunc
}

// NewSupervisor builds a Supervisor that reports service state transitions
// into registry.
func NewSupervisor(registry *control.Registry, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		registry:   registry,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Register adds a service to the startup sequence, in the order its Start
// will be called. Stop runs in the reverse of registration order.
func (s *Supervisor) Register(name string, r runner.ServiceRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = append(s.services, ManagedService{
		Name:    name,
		Runner:  r,
		conn:    runner.NewConnectionStateMachine(),
		backoff: runner.NewBackoffFromConfig(1000, 30000, 2.0),
	})
}

// Runner resolves a registered service's runner by name, for callers (the
// control plane) that need to drive its lifecycle directly rather than
// through the registry alone.
func (s *Supervisor) Runner(name string) (runner.ServiceRunner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.Name == name {
			return svc.Runner, true
		}
	}
	return nil, false
}

// StartAll starts every registered service in registration order. On
// failure it stops every service that started successfully, in reverse
// order, before returning the triggering error. Each service that starts
// successfully gets a background health-probe loop that watches for
// disconnects and reconnects it with exponential backoff, until probeCtx
// is cancelled.
func (s *Supervisor) StartAll(ctx context.Context) error {
	s.mu.Lock()
	services := append([]ManagedService(nil), s.services...)
	probeCtx, cancel := context.WithCancel(context.Background())
	s.probeCancel = cancel
	s.mu.Unlock()

	started := make([]ManagedService, 0, len(services))
	for _, svc := range services {
		s.registry.SetServiceStatus(svc.Name, control.StatusStarting)
		if err := svc.Runner.Start(ctx); err != nil {
			s.registry.SetServiceStatus(svc.Name, control.StatusStopped)
			s.logger.Error("orchestrator: service failed to start", "service", svc.Name, "error", err)
			s.stopInReverse(ctx, started)
			return fmt.Errorf("starting %s: %w", svc.Name, err)
		}
		s.registry.SetServiceStatus(svc.Name, control.StatusRunning)
		started = append(started, svc)
		go s.healthProbeLoop(probeCtx, svc)
	}
	return nil
}

// healthProbeLoop drives svc's connection state machine through discovery,
// verification, steady-state health probing, and backoff-paced reconnects,
// until ctx is cancelled. A probe failure while Connected moves the service
// to Reconnecting; DiscoverEndpoint and a fresh HealthProbe are retried
// after each backoff delay until one succeeds, at which point the backoff
// state resets and the loop returns to steady-state probing.
func (s *Supervisor) healthProbeLoop(ctx context.Context, svc ManagedService) {
	svc.conn.Transition(runner.StateProbing)
	if !s.discoverAndVerify(ctx, svc) {
		return
	}

	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if ctx.Err() != nil {
			return
		}

		status := svc.Runner.HealthProbe(ctx)
		if status.Healthy {
			continue
		}

		s.logger.Warn("orchestrator: health probe failed, reconnecting", "service", svc.Name, "reason", status.Reason)
		if !svc.conn.Transition(runner.StateReconnecting) {
			return
		}
		s.registry.SetServiceStatus(svc.Name, control.StatusReconnecting)

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(svc.backoff.NextDelayMs()) * time.Millisecond):
			}
			if ctx.Err() != nil {
				return
			}
			if !svc.conn.Transition(runner.StateProbing) {
				return
			}
			if s.discoverAndVerify(ctx, svc) {
				svc.backoff.Reset()
				break
			}
			svc.conn.Transition(runner.StateReconnecting)
		}
	}
}

// discoverAndVerify attempts the Probing -> Connecting -> Verifying ->
// Connected leg of svc's connection state machine once. Returns false
// (leaving svc reset to Disconnected) on any failed step or cancellation.
func (s *Supervisor) discoverAndVerify(ctx context.Context, svc ManagedService) bool {
	if _, err := svc.Runner.DiscoverEndpoint(ctx); err != nil {
		s.logger.Warn("orchestrator: endpoint discovery failed", "service", svc.Name, "error", err)
		svc.conn.Reset()
		return false
	}
	if !svc.conn.Transition(runner.StateConnecting) {
		return false
	}
	if !svc.conn.Transition(runner.StateVerifying) {
		return false
	}
	status := svc.Runner.HealthProbe(ctx)
	if !status.Healthy {
		s.logger.Warn("orchestrator: verification probe failed", "service", svc.Name, "reason", status.Reason)
		svc.conn.Reset()
		return false
	}
	if !svc.conn.Transition(runner.StateConnected) {
		return false
	}
	s.registry.SetServiceStatus(svc.Name, control.StatusRunning)
	return true
}

// StopAll stops every registered service in reverse registration order,
// waiting for each to exit before moving to the next.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	services := append([]ManagedService(nil), s.services...)
	s.mu.Unlock()
	s.stopInReverse(ctx, services)
}

func (s *Supervisor) stopInReverse(ctx context.Context, services []ManagedService) {
	s.mu.Lock()
	if s.probeCancel != nil {
		s.probeCancel()
		s.probeCancel = nil
	}
	s.mu.Unlock()

	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		s.registry.SetServiceStatus(svc.Name, control.StatusStopping)
		if err := svc.Runner.Stop(ctx); err != nil {
			s.logger.Warn("orchestrator: service stop error", "service", svc.Name, "error", err)
		}
		s.registry.SetServiceStatus(svc.Name, control.StatusStopped)
	}
	s.registry.DetachAll()
}

// RequestShutdown signals ShutdownSignal exactly once. Safe to call from a
// tray icon callback, a QML quit handler, or a signal handler; repeated
// calls after the first are no-ops.
func (s *Supervisor) RequestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// ShutdownSignal is closed the first time RequestShutdown is called.
func (s *Supervisor) ShutdownSignal() <-chan struct{} {
	return s.shutdownCh
}

// Run starts every registered service, then blocks until the process
// receives SIGINT/SIGTERM or RequestShutdown is called, then stops every
// service in reverse dependency order and returns. A panic during StartAll
// or while blocked still runs StopAll before propagating, so no started
// child is left behind.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	defer func() {
		if r := recover(); r != nil {
			s.StopAll(context.Background())
			panic(r)
		}
	}()

	if startErr := s.StartAll(ctx); startErr != nil {
		return startErr
	}

	select {
	case <-ctx.Done():
	case <-sigCh:
		s.RequestShutdown()
	case <-s.shutdownCh:
	}

	stopCtx := context.Background()
	s.StopAll(stopCtx)
	return nil
}
