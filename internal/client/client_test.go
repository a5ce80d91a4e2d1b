package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ds-codi/pm-supervisor/internal/control"
)

func startTestServer(t *testing.T) (socketPath string, registry *control.Registry, stop func()) {
	t.Helper()
	tmpDir := t.TempDir()
	socketPath = filepath.Join(tmpDir, "control.sock")
	registry = control.NewRegistry("mcp", "dashboard")
	server := control.NewServer(registry, nil, control.Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = server.Serve(ctx, socketPath, "")
		close(done)
	}()
	time.Sleep(50 * time.Millisecond) // let the listener bind

	return socketPath, registry, func() {
		cancel()
		<-done
	}
}

func TestClientStatusReturnsRegistrySnapshot(t *testing.T) {
	socketPath, registry, stop := startTestServer(t)
	defer stop()
	registry.SetServiceStatus("mcp", control.StatusRunning)

	c := New(socketPath, "")
	records, err := c.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(records) != 2 || records[0].Name != "mcp" || records[0].Status != control.StatusRunning {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestClientStartStopRestartService(t *testing.T) {
	socketPath, registry, stop := startTestServer(t)
	defer stop()

	c := New(socketPath, "")
	if err := c.StartService("mcp"); err != nil {
		t.Fatalf("StartService: %v", err)
	}
	if err := c.StopService("mcp"); err != nil {
		t.Fatalf("StopService: %v", err)
	}
	if err := c.RestartService("mcp"); err != nil {
		t.Fatalf("RestartService: %v", err)
	}
	_ = registry
}

func TestClientAttachAndDetach(t *testing.T) {
	socketPath, _, stop := startTestServer(t)
	defer stop()

	c := New(socketPath, "")
	id, err := c.AttachClient(1234, "win-1")
	if err != nil || id == "" {
		t.Fatalf("AttachClient: id=%q err=%v", id, err)
	}

	clients, err := c.ListClients()
	if err != nil || len(clients) != 1 || clients[0].ClientID != id {
		t.Fatalf("ListClients: %+v err=%v", clients, err)
	}

	if err := c.DetachClient(id); err != nil {
		t.Fatalf("DetachClient: %v", err)
	}
}

func TestClientDetachUnknownClientReturnsError(t *testing.T) {
	socketPath, _, stop := startTestServer(t)
	defer stop()

	c := New(socketPath, "")
	if err := c.DetachClient("does-not-exist"); err == nil {
		t.Fatal("expected error detaching unknown client")
	}
}

func TestClientFailsWithNoReachableEndpoint(t *testing.T) {
	c := New("", "")
	if _, err := c.Status(); err == nil {
		t.Fatal("expected error with no socket or tcp address configured")
	}
}
