package control

import (
	"context"

	"github.com/ds-codi/pm-supervisor/internal/runtime"
)

// ServiceController is the lifecycle surface a start/stop/restart control
// request needs from a registered service's runner. Any runner.ServiceRunner
// satisfies this through its own Start/Stop methods; control never imports
// the runner package to avoid a dependency cycle (runner already imports
// control for ServiceStatus).
type ServiceController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RunnerLookup resolves a registered service name to the ServiceController
// driving its process, if one is wired. Returning false leaves Start/Stop
// as pure registry bookkeeping, which is still correct for services (like
// the dashboard itself) that have no separate process to drive.
type RunnerLookup func(service string) (ServiceController, bool)

// FormAppResult mirrors the outcome of one runner.LaunchFormApp call
// without control depending on the runner package for the type itself.
type FormAppResult struct {
	Success         bool
	ResponsePayload map[string]any
	Error           string
	ElapsedMs       uint64
	TimedOut        bool
}

// FormAppLauncher launches a registered on-demand form app and waits for
// its response. ok is false when appName names no configured form app.
type FormAppLauncher func(ctx context.Context, appName string, payload map[string]any, timeoutOverride uint64) (result FormAppResult, ok bool)

// Deps bundles the collaborators HandleRequest needs to turn start/stop/
// restart, dispatch, and form-app requests into real actions instead of
// pure registry bookkeeping. The zero value keeps every request a no-op
// against the registry only, which is what the package's own tests use.
type Deps struct {
	Runners    RunnerLookup
	Dispatcher *runtime.Dispatcher
	FormApps   FormAppLauncher
}
