// Package runner implements the supervisor's per-service lifecycle
// adapters: a uniform ServiceRunner interface over local Node processes
// and the interactive-terminal GUI process, a one-shot launcher for GUI
// form apps (LaunchFormApp, which is not a ServiceRunner), plus the
// exponential backoff and connection state machine the supervisor drives
// the runners with.
package runner

import (
	"context"

	"github.com/ds-codi/pm-supervisor/internal/control"
)

// HealthStatus is the result of one health probe against a service's
// discovered endpoint.
type HealthStatus struct {
	Healthy bool
	Reason  string
}

// Healthy reports a successful probe.
func Healthy() HealthStatus { return HealthStatus{Healthy: true} }

// Unhealthy reports a failed probe with a human-readable reason.
func Unhealthy(reason string) HealthStatus { return HealthStatus{Healthy: false, Reason: reason} }

// ServiceRunner is the lifecycle API every managed service adapter
// implements, giving the supervisor a uniform way to start, stop, and
// health-check any kind of service.
type ServiceRunner interface {
	// Start launches the service. It returns once the process/container is
	// confirmed running, or an error on permanent launch failure.
	Start(ctx context.Context) error

	// Stop shuts the service down, forcefully if necessary. Stopping an
	// already-stopped runner is a no-op that returns nil.
	Stop(ctx context.Context) error

	// Status returns the last-known ServiceStatus without performing I/O.
	Status() control.ServiceStatus

	// HealthProbe performs one health check against the service's endpoint.
	HealthProbe(ctx context.Context) HealthStatus

	// DiscoverEndpoint resolves the service's current endpoint address.
	DiscoverEndpoint(ctx context.Context) (string, error)
}
