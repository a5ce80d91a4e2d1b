// Command supervisor is the long-running process that owns every managed
// service (the MCP backend, the interactive terminal, the live dashboard
// bridge), the control-plane socket, and the telemetry store.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ds-codi/pm-supervisor/internal/config"
	"github.com/ds-codi/pm-supervisor/internal/control"
	"github.com/ds-codi/pm-supervisor/internal/events"
	"github.com/ds-codi/pm-supervisor/internal/livebridge"
	"github.com/ds-codi/pm-supervisor/internal/logging"
	"github.com/ds-codi/pm-supervisor/internal/orchestrator"
	"github.com/ds-codi/pm-supervisor/internal/runner"
	"github.com/ds-codi/pm-supervisor/internal/runtime"
	"github.com/ds-codi/pm-supervisor/internal/store"
)

// dispatchMaxConcurrency, dispatchQueueLimit, and dispatchPerSessionLimit
// bound the runtime dispatcher's admission, mirroring the limits the
// interactive-terminal and form-app clients are built to expect.
const (
	dispatchMaxConcurrency  = 4
	dispatchQueueLimit      = 32
	dispatchPerSessionLimit = 2
	dispatchQueueWaitMs     = 5000
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "supervisor",
		Short: "Supervise the local MCP backend, terminal, and dashboard services",
	}
	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the supervisor version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var logLevel string
	var jsonLogs bool
	var bindAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the supervisor and every managed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), logLevel, jsonLogs, bindAddr)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")
	cmd.Flags().StringVar(&bindAddr, "bind", "127.0.0.1:8782", "HTTP bind address for the live dashboard bridge")
	return cmd
}

func runServe(ctx context.Context, logLevel string, jsonLogs bool, bindAddr string) error {
	logger, logCloser, err := logging.Init(logging.Options{
		Level:   logLevel,
		LogFile: os.Getenv("PM_LOG_FILE"),
		JSON:    jsonLogs,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	topology, err := config.LoadTopology(config.ServicesConfigPath())
	if err != nil {
		return fmt.Errorf("load services topology: %w", err)
	}

	names := make([]string, 0, len(topology.Services))
	for _, svc := range topology.Services {
		names = append(names, svc.Name)
	}
	registry := control.NewRegistry(names...)

	db, err := store.OpenDB(config.TelemetryDBPath())
	if err != nil {
		return fmt.Errorf("open telemetry db: %w", err)
	}
	telemetry := store.NewTelemetry(db)
	defer telemetry.Close()

	hub := livebridge.NewHub(logger)
	hubCtx, hubCancel := context.WithCancel(ctx)
	defer hubCancel()
	go hub.Run(hubCtx)

	eventBus := events.NewHandle(events.DefaultConfig(), nil)
	eventBus.SetEmitHook(hub.BroadcastEvent)

	supervisor := orchestrator.NewSupervisor(registry, logger)
	for _, svc := range topology.Services {
		r, ok := buildRunner(svc)
		if !ok {
			continue
		}
		supervisor.Register(svc.Name, r)
	}

	formApps := buildFormApps(topology)
	launchFormApp := func(ctx context.Context, appName string, payload map[string]any, timeoutOverride uint64) (control.FormAppResult, bool) {
		cfg, ok := formApps[appName]
		if !ok {
			return control.FormAppResult{}, false
		}
		resp := runner.LaunchFormApp(ctx, cfg, appName, payload, timeoutOverride)
		return control.FormAppResult{
			Success:         resp.Success,
			ResponsePayload: resp.ResponsePayload,
			Error:           resp.Error,
			ElapsedMs:       resp.ElapsedMs,
			TimedOut:        resp.TimedOut,
		}, true
	}

	gate := runtime.NewBackpressureGate(dispatchMaxConcurrency, dispatchQueueLimit, dispatchPerSessionLimit)
	policy := runtime.Policy{Enabled: true, DefaultTimeoutMs: 30000}
	dispatcher := runtime.NewDispatcher(gate, dispatchQueueWaitMs, policy, &dispatcherTelemetryAdapter{telemetry: telemetry})

	deps := control.Deps{
		Runners: func(service string) (control.ServiceController, bool) {
			return supervisor.Runner(service)
		},
		Dispatcher: dispatcher,
		FormApps:   launchFormApp,
	}

	controlServer := control.NewServer(registry, logger, deps)
	go func() {
		if err := controlServer.Serve(ctx, config.SocketPath(), config.TCPFallbackAddr()); err != nil {
			logger.Error("supervisor: control server exited", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/supervisor/live", hub)
	mux.Handle("/supervisor/events", events.NewHandler(eventBus, logger))
	httpServer := &http.Server{Addr: bindAddr, Handler: mux}
	go func() {
		logger.Info("supervisor: live dashboard bridge listening", "addr", bindAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("supervisor: live bridge server error", "error", err)
		}
	}()

	go snapshotLoop(hubCtx, registry, hub)

	runErr := supervisor.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	return runErr
}

// buildRunner translates one services-topology entry into a concrete
// runner.ServiceRunner. Entries the supervisor doesn't manage as a
// long-running process (form apps, the dashboard itself) report false.
func buildRunner(svc config.ServiceEntry) (runner.ServiceRunner, bool) {
	switch svc.Kind {
	case config.KindNode:
		return runner.NewNodeRunner(runner.NodeRunnerConfig{
			Command:    svc.Command,
			Args:       svc.Args,
			WorkingDir: svc.WorkingDir,
			Env:        svc.Env,
		}), true
	case config.KindTerminal:
		return runner.NewInteractiveTerminalRunner(runner.InteractiveTerminalConfig{
			Command:    svc.Command,
			Args:       svc.Args,
			WorkingDir: svc.WorkingDir,
			Env:        svc.Env,
			Port:       svc.Port,
		}), true
	default:
		// form_app entries are launched on demand via runner.LaunchFormApp,
		// not kept alive as a managed service; the dashboard kind is the
		// supervisor's own live bridge, already served above.
		return nil, false
	}
}

// buildFormApps collects every form_app topology entry into the config
// runner.LaunchFormApp needs, keyed by service name.
func buildFormApps(topology config.Topology) map[string]runner.FormAppConfig {
	apps := make(map[string]runner.FormAppConfig)
	for _, svc := range topology.Services {
		if svc.Kind != config.KindFormApp {
			continue
		}
		apps[svc.Name] = runner.FormAppConfig{
			Command:        svc.Command,
			Args:           svc.Args,
			WorkingDir:     svc.WorkingDir,
			Env:            svc.Env,
			TimeoutSeconds: svc.TimeoutSeconds,
		}
	}
	return apps
}

// dispatcherTelemetryAdapter adapts store.Telemetry's richer
// DispatcherSessionRecord shape to the runtime package's narrower
// TelemetrySink interface, so the dispatcher can write through the same
// SQLite-backed store used for every other telemetry record.
type dispatcherTelemetryAdapter struct {
	telemetry *store.Telemetry
}

func (a *dispatcherTelemetryAdapter) RecordDispatcherSession(id, sessionID string, recordedAtMs int64, state, cohort string, detail any) error {
	return a.telemetry.RecordDispatcherSession(store.DispatcherSessionRecord{
		ID:           id,
		SessionID:    sessionID,
		RecordedAtMs: recordedAtMs,
		State:        state,
		Cohort:       cohort,
		Detail:       detail,
	})
}

// snapshotLoop periodically fans the registry's service states out to every
// connected dashboard observer, independent of the event bus.
func snapshotLoop(ctx context.Context, registry *control.Registry, hub *livebridge.Hub) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records := registry.ServiceStates()
			summaries := make([]orchestrator.ServiceSummary, 0, len(records))
			for _, rec := range records {
				summary := orchestrator.ServiceSummary{Name: rec.Name, State: string(rec.Status)}
				if rec.Backend != nil {
					summary.Backend = string(*rec.Backend)
				}
				if rec.Endpoint != nil {
					summary.Endpoint = *rec.Endpoint
				}
				summaries = append(summaries, summary)
			}
			hub.BroadcastSnapshot(summaries, len(registry.ListClients()))
		}
	}
}
