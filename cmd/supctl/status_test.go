package main

import (
	"strings"
	"testing"

	"github.com/ds-codi/pm-supervisor/internal/control"
)

func TestWriteServiceTableRendersBackendAndEndpointPlaceholders(t *testing.T) {
	var out strings.Builder
	writeServiceTable(&out, []control.ServiceRecord{
		{Name: "mcp", Status: control.StatusRunning},
	})
	got := out.String()
	if !strings.Contains(got, "mcp") || !strings.Contains(got, "running") {
		t.Fatalf("missing service row: %q", got)
	}
	if !strings.Contains(got, "-") {
		t.Fatalf("expected placeholder dash for unset backend/endpoint: %q", got)
	}
}

func TestWriteServiceTableRendersBackendAndEndpoint(t *testing.T) {
	backend := control.BackendNode
	endpoint := "http://127.0.0.1:4000"
	var out strings.Builder
	writeServiceTable(&out, []control.ServiceRecord{
		{Name: "mcp", Status: control.StatusRunning, Backend: &backend, Endpoint: &endpoint},
	})
	got := out.String()
	if !strings.Contains(got, "node") || !strings.Contains(got, endpoint) {
		t.Fatalf("expected backend and endpoint rendered: %q", got)
	}
}

func TestWriteClientTableReportsNoneAttached(t *testing.T) {
	var out strings.Builder
	writeClientTable(&out, nil)
	if !strings.Contains(out.String(), "no attached clients") {
		t.Fatalf("expected no-clients message, got %q", out.String())
	}
}

func TestWriteClientTableRendersAttachment(t *testing.T) {
	var out strings.Builder
	writeClientTable(&out, []control.ClientAttachment{
		{ClientID: "client-1", PID: 42, WindowID: "win-1", AttachedAt: 0},
	})
	got := out.String()
	if !strings.Contains(got, "client-1") || !strings.Contains(got, "42") {
		t.Fatalf("expected client row, got %q", got)
	}
}
