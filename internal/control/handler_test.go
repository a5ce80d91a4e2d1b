package control

import (
	"context"
	"errors"
	"testing"

	"github.com/ds-codi/pm-supervisor/internal/runtime"
)

func TestHandleStatusReturnsThreeServices(t *testing.T) {
	r := NewRegistry()
	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqStatus}, r, Deps{})
	if !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	states, ok := resp.Data.([]ServiceRecord)
	if !ok || len(states) != 3 {
		t.Fatalf("expected 3 service records, got %+v", resp.Data)
	}
}

func TestHandleStartTransitionsToStarting(t *testing.T) {
	r := NewRegistry()
	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqStart, Service: "mcp"}, r, Deps{})
	if !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	data := resp.Data.(map[string]any)
	if data["status"] != string(StatusStarting) {
		t.Fatalf("expected starting, got %+v", data)
	}

	states := r.ServiceStates()
	found := false
	for _, s := range states {
		if s.Name == "mcp" {
			found = true
			if s.Status != StatusStarting {
				t.Fatalf("expected registry to reflect starting, got %+v", s)
			}
		}
	}
	if !found {
		t.Fatal("expected mcp service in registry")
	}
}

func TestHandleStopTransitionsToStopping(t *testing.T) {
	r := NewRegistry()
	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqStop, Service: "dashboard"}, r, Deps{})
	data := resp.Data.(map[string]any)
	if data["status"] != string(StatusStopping) {
		t.Fatalf("expected stopping, got %+v", data)
	}
}

func TestHandleRestartEndsInStarting(t *testing.T) {
	r := NewRegistry()
	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqRestart, Service: "mcp"}, r, Deps{})
	data := resp.Data.(map[string]any)
	if data["status"] != string(StatusStarting) {
		t.Fatalf("expected starting after restart, got %+v", data)
	}
}

func TestHandleSetBackendContainer(t *testing.T) {
	r := NewRegistry()
	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqSetBackend, Backend: BackendContainer}, r, Deps{})
	data := resp.Data.(map[string]any)
	if data["active_backend"] != "container" {
		t.Fatalf("expected container backend, got %+v", data)
	}
}

func TestHandleAttachAndListClients(t *testing.T) {
	r := NewRegistry()
	attachResp := HandleRequest(context.Background(), ControlRequest{Type: ReqAttachClient, PID: 999, WindowID: "win-1"}, r, Deps{})
	if !attachResp.OK {
		t.Fatalf("expected ok, got %+v", attachResp)
	}
	clientID := attachResp.Data.(map[string]any)["client_id"].(string)

	listResp := HandleRequest(context.Background(), ControlRequest{Type: ReqListClients}, r, Deps{})
	clients := listResp.Data.([]ClientAttachment)
	if len(clients) != 1 || clients[0].ClientID != clientID {
		t.Fatalf("unexpected client list: %+v", clients)
	}
}

func TestHandleDetachExistingClientSucceeds(t *testing.T) {
	r := NewRegistry()
	HandleRequest(context.Background(), ControlRequest{Type: ReqAttachClient, PID: 1, WindowID: "w"}, r, Deps{})
	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqDetachClient, ClientID: "client-1"}, r, Deps{})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
}

func TestHandleDetachUnknownClientReturnsError(t *testing.T) {
	r := NewRegistry()
	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqDetachClient, ClientID: "client-99"}, r, Deps{})
	if resp.OK {
		t.Fatal("expected error response")
	}
	if resp.Error == "" {
		t.Fatal("expected error message")
	}
}

func TestHandleWhoAmIEchoesClientIdentity(t *testing.T) {
	r := NewRegistry()
	resp := HandleRequest(context.Background(), ControlRequest{
		Type:   ReqWhoAmI,
		WhoAmI: &WhoAmIRequest{RequestID: "r1", Client: "vscode", ClientVersion: "1.0.0"},
	}, r, Deps{})
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	data := resp.Data.(map[string]any)
	if data["client"] != "vscode" || data["client_version"] != "1.0.0" || data["message"] != "WhoAmI received" {
		t.Fatalf("unexpected whoami response: %+v", data)
	}
}

// fakeController records Start/Stop calls for runner-driven lifecycle tests.
type fakeController struct {
	startCalled bool
	stopCalled  bool
	startErr    error
	stopErr     error
}

func (f *fakeController) Start(ctx context.Context) error {
	f.startCalled = true
	return f.startErr
}

func (f *fakeController) Stop(ctx context.Context) error {
	f.stopCalled = true
	return f.stopErr
}

func TestHandleStartCallsWiredRunner(t *testing.T) {
	r := NewRegistry()
	ctrl := &fakeController{}
	deps := Deps{Runners: func(service string) (ServiceController, bool) {
		if service == "mcp" {
			return ctrl, true
		}
		return nil, false
	}}

	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqStart, Service: "mcp"}, r, deps)
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if !ctrl.startCalled {
		t.Fatal("expected wired runner's Start to be called")
	}
	data := resp.Data.(map[string]any)
	if data["status"] != string(StatusRunning) {
		t.Fatalf("expected running after successful start, got %+v", data)
	}
}

func TestHandleStartReportsWiredRunnerFailure(t *testing.T) {
	r := NewRegistry()
	ctrl := &fakeController{startErr: errors.New("boom")}
	deps := Deps{Runners: func(service string) (ServiceController, bool) { return ctrl, true }}

	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqStart, Service: "mcp"}, r, deps)
	if resp.OK {
		t.Fatal("expected error response")
	}

	states := r.ServiceStates()
	for _, s := range states {
		if s.Name == "mcp" && s.Status != StatusStopped {
			t.Fatalf("expected registry reverted to stopped, got %+v", s)
		}
	}
}

func TestHandleStopCallsWiredRunner(t *testing.T) {
	r := NewRegistry()
	ctrl := &fakeController{}
	deps := Deps{Runners: func(service string) (ServiceController, bool) { return ctrl, true }}

	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqStop, Service: "dashboard"}, r, deps)
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if !ctrl.stopCalled {
		t.Fatal("expected wired runner's Stop to be called")
	}
}

func TestHandleLaunchFormApp(t *testing.T) {
	r := NewRegistry()
	deps := Deps{FormApps: func(ctx context.Context, appName string, payload map[string]any, timeoutOverride uint64) (FormAppResult, bool) {
		if appName != "brainstorm" {
			return FormAppResult{}, false
		}
		return FormAppResult{Success: true, ResponsePayload: map[string]any{"echo": payload["q"]}}, true
	}}

	resp := HandleRequest(context.Background(), ControlRequest{
		Type:    ReqLaunchFormApp,
		FormApp: &FormAppRequest{AppName: "brainstorm", Payload: map[string]any{"q": "hi"}},
	}, r, deps)
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
}

func TestHandleLaunchFormAppUnknownApp(t *testing.T) {
	r := NewRegistry()
	deps := Deps{FormApps: func(ctx context.Context, appName string, payload map[string]any, timeoutOverride uint64) (FormAppResult, bool) {
		return FormAppResult{}, false
	}}

	resp := HandleRequest(context.Background(), ControlRequest{
		Type:    ReqLaunchFormApp,
		FormApp: &FormAppRequest{AppName: "nope"},
	}, r, deps)
	if resp.OK {
		t.Fatal("expected error for unknown form app")
	}
}

func newTestDispatcher() *runtime.Dispatcher {
	gate := runtime.NewBackpressureGate(4, 16, 2)
	policy := runtime.Policy{Enabled: true, DefaultTimeoutMs: 1000}
	return runtime.NewDispatcher(gate, 50, policy, nil)
}

func TestHandleDispatchRunsFormApp(t *testing.T) {
	r := NewRegistry()
	deps := Deps{
		Dispatcher: newTestDispatcher(),
		FormApps: func(ctx context.Context, appName string, payload map[string]any, timeoutOverride uint64) (FormAppResult, bool) {
			return FormAppResult{Success: true, ResponsePayload: map[string]any{"ok": true}}, true
		},
	}

	resp := HandleRequest(context.Background(), ControlRequest{
		Type:     ReqDispatch,
		Dispatch: &DispatchRequest{SessionID: "s1", AppName: "brainstorm"},
	}, r, deps)
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	data := resp.Data.(map[string]any)
	if data["state"] != string(runtime.StateCompleted) {
		t.Fatalf("expected completed state, got %+v", data)
	}
}

func TestHandleDispatchWithoutDispatcherErrors(t *testing.T) {
	r := NewRegistry()
	resp := HandleRequest(context.Background(), ControlRequest{
		Type:     ReqDispatch,
		Dispatch: &DispatchRequest{AppName: "brainstorm"},
	}, r, Deps{})
	if resp.OK {
		t.Fatal("expected error when dispatcher not wired")
	}
}

func TestHandleCancelSessionAndListSessions(t *testing.T) {
	r := NewRegistry()
	d := newTestDispatcher()
	deps := Deps{Dispatcher: d}

	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqCancelSession, SessionID: "s1"}, r, deps)
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}

	listResp := HandleRequest(context.Background(), ControlRequest{Type: ReqListSessions}, r, deps)
	if !listResp.OK {
		t.Fatalf("expected ok, got %+v", listResp)
	}
}

func TestHandleSetPolicyUpdatesEnabled(t *testing.T) {
	r := NewRegistry()
	d := newTestDispatcher()
	deps := Deps{Dispatcher: d}

	enabled := false
	resp := HandleRequest(context.Background(), ControlRequest{
		Type:   ReqSetPolicy,
		Policy: &PolicyUpdate{Enabled: &enabled},
	}, r, deps)
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if d.Policy().Enabled {
		t.Fatal("expected policy disabled after update")
	}
}

func TestHandleTelemetrySnapshot(t *testing.T) {
	r := NewRegistry()
	d := newTestDispatcher()
	deps := Deps{Dispatcher: d}

	resp := HandleRequest(context.Background(), ControlRequest{Type: ReqTelemetrySnapshot}, r, deps)
	if !resp.OK {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if _, ok := resp.Data.(runtime.Counters); !ok {
		t.Fatalf("expected runtime.Counters, got %T", resp.Data)
	}
}
