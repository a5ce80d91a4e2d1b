package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ds-codi/pm-supervisor/internal/runtime"
)

// HandleRequest dispatches one decoded ControlRequest against registry and
// deps, and returns its response. Safe for concurrent use; all registry
// mutation goes through Registry's own mutex, and deps' collaborators are
// each independently safe for concurrent use.
func HandleRequest(ctx context.Context, req ControlRequest, registry *Registry, deps Deps) ControlResponse {
	switch req.Type {
	case ReqStatus:
		return OKResponse(registry.ServiceStates())

	case ReqStart:
		return startService(ctx, req.Service, registry, deps.Runners)

	case ReqStop:
		return stopService(ctx, req.Service, registry, deps.Runners)

	case ReqRestart:
		if resp := stopService(ctx, req.Service, registry, deps.Runners); !resp.OK {
			return resp
		}
		return startService(ctx, req.Service, registry, deps.Runners)

	case ReqSetBackend:
		registry.SetBackend(req.Backend)
		return OKResponse(map[string]any{"active_backend": string(req.Backend)})

	case ReqListClients:
		return OKResponse(registry.ListClients())

	case ReqAttachClient:
		clientID := registry.AttachClient(req.PID, req.WindowID)
		return OKResponse(map[string]any{"client_id": clientID})

	case ReqDetachClient:
		if registry.DetachClient(req.ClientID) {
			return OKResponse(map[string]any{"client_id": req.ClientID, "detached": true})
		}
		return ErrResponse(fmt.Sprintf("client not found: %s", req.ClientID))

	case ReqWhoAmI:
		if req.WhoAmI == nil {
			return ErrResponse("who_am_i request missing body")
		}
		slog.Info("who_am_i request received", "client", req.WhoAmI.Client)
		return OKResponse(map[string]any{
			"message":        "WhoAmI received",
			"client":         req.WhoAmI.Client,
			"client_version": req.WhoAmI.ClientVersion,
		})

	case ReqLaunchFormApp:
		return launchFormApp(ctx, req.FormApp, deps.FormApps)

	case ReqDispatch:
		return dispatch(ctx, req.Dispatch, deps)

	case ReqCancelSession:
		if deps.Dispatcher == nil {
			return ErrResponse("dispatcher not available")
		}
		snapshot, newlySet := deps.Dispatcher.CancelSession(req.SessionID)
		return OKResponse(map[string]any{"session": snapshot, "newly_set": newlySet})

	case ReqListSessions:
		if deps.Dispatcher == nil {
			return ErrResponse("dispatcher not available")
		}
		return OKResponse(deps.Dispatcher.ListSessions())

	case ReqSetPolicy:
		if deps.Dispatcher == nil {
			return ErrResponse("dispatcher not available")
		}
		if req.Policy == nil {
			return ErrResponse("set_policy request missing body")
		}
		effective := deps.Dispatcher.SetPolicy(req.Policy.apply)
		return OKResponse(effective)

	case ReqTelemetrySnapshot:
		if deps.Dispatcher == nil {
			return ErrResponse("dispatcher not available")
		}
		return OKResponse(deps.Dispatcher.TelemetrySnapshot())

	default:
		return ErrResponse(fmt.Sprintf("unknown request type: %s", req.Type))
	}
}

// startService sets service to Starting and, when a controller is wired for
// it, actually starts the process before reporting Running. Services with no
// wired controller keep the original status-flag-only behavior.
func startService(ctx context.Context, service string, registry *Registry, runners RunnerLookup) ControlResponse {
	registry.SetServiceStatus(service, StatusStarting)
	ctrl, ok := lookupRunner(runners, service)
	if !ok {
		return OKResponse(map[string]any{"service": service, "status": string(StatusStarting)})
	}
	if err := ctrl.Start(ctx); err != nil {
		registry.SetServiceStatus(service, StatusStopped)
		return ErrResponse(fmt.Sprintf("start %s: %v", service, err))
	}
	registry.SetServiceStatus(service, StatusRunning)
	return OKResponse(map[string]any{"service": service, "status": string(StatusRunning)})
}

// stopService sets service to Stopping and, when a controller is wired for
// it, actually stops the process before reporting Stopped.
func stopService(ctx context.Context, service string, registry *Registry, runners RunnerLookup) ControlResponse {
	registry.SetServiceStatus(service, StatusStopping)
	ctrl, ok := lookupRunner(runners, service)
	if !ok {
		return OKResponse(map[string]any{"service": service, "status": string(StatusStopping)})
	}
	if err := ctrl.Stop(ctx); err != nil {
		return ErrResponse(fmt.Sprintf("stop %s: %v", service, err))
	}
	registry.SetServiceStatus(service, StatusStopped)
	return OKResponse(map[string]any{"service": service, "status": string(StatusStopped)})
}

func lookupRunner(runners RunnerLookup, service string) (ServiceController, bool) {
	if runners == nil {
		return nil, false
	}
	return runners(service)
}

func launchFormApp(ctx context.Context, req *FormAppRequest, formApps FormAppLauncher) ControlResponse {
	if req == nil {
		return ErrResponse("launch_form_app request missing body")
	}
	if formApps == nil {
		return ErrResponse("form apps not available")
	}
	result, ok := formApps(ctx, req.AppName, req.Payload, req.TimeoutOverride)
	if !ok {
		return ErrResponse(fmt.Sprintf("unknown form app: %s", req.AppName))
	}
	if !result.Success {
		return ErrResponse(result.Error)
	}
	return OKResponse(map[string]any{
		"app_name":   req.AppName,
		"response":   result.ResponsePayload,
		"elapsed_ms": result.ElapsedMs,
		"timed_out":  result.TimedOut,
	})
}

// dispatch admits req through the runtime dispatcher and, on admission,
// runs the named form app as the dispatcher's guarded action — giving
// concurrency limits, per-session caps, deadlines, and cooperative
// cancellation around a real subprocess launch.
func dispatch(ctx context.Context, req *DispatchRequest, deps Deps) ControlResponse {
	if req == nil {
		return ErrResponse("dispatch request missing body")
	}
	if deps.Dispatcher == nil {
		return ErrResponse("dispatcher not available")
	}
	if deps.FormApps == nil {
		return ErrResponse("form apps not available")
	}

	action := func(actionCtx context.Context, cancelled func() bool) (any, error) {
		result, ok := deps.FormApps(actionCtx, req.AppName, req.Payload, 0)
		if !ok {
			return nil, fmt.Errorf("unknown form app: %s", req.AppName)
		}
		if !result.Success {
			return nil, errors.New(result.Error)
		}
		return result.ResponsePayload, nil
	}

	rtReq := runtime.DispatchRequest{
		SessionID: req.SessionID,
		Cohort:    req.Cohort,
		Action:    req.AppName,
		Payload:   req.Payload,
		TimeoutMs: req.TimeoutMs,
	}
	result, err := deps.Dispatcher.Dispatch(ctx, rtReq, action)
	if err != nil {
		return ErrResponse(err.Error())
	}
	return OKResponse(map[string]any{
		"session_id": result.SessionID,
		"state":      string(result.State),
		"data":       result.Data,
	})
}
