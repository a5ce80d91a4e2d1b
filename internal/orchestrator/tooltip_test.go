package orchestrator

import "testing"

func TestBuildTooltipFormatsBackendAndEndpoint(t *testing.T) {
	services := []ServiceSummary{{Name: "MCP", State: "Connected", Backend: "node", Endpoint: "tcp://localhost:3000"}}
	tt := BuildTooltip(services, 2)
	lines := splitLines(tt)
	if lines[0] != "MCP: Connected (node) @ tcp://localhost:3000" {
		t.Fatalf("unexpected line: %q", lines[0])
	}
}

func TestBuildTooltipFormatsBackendOnly(t *testing.T) {
	services := []ServiceSummary{{Name: "MCP", State: "Connected", Backend: "container"}}
	tt := BuildTooltip(services, 0)
	lines := splitLines(tt)
	if lines[0] != "MCP: Connected (container)" {
		t.Fatalf("unexpected line: %q", lines[0])
	}
}

func TestBuildTooltipFormatsEndpointOnly(t *testing.T) {
	services := []ServiceSummary{{Name: "Terminal", State: "Connected", Endpoint: "tcp://localhost:4000"}}
	tt := BuildTooltip(services, 0)
	lines := splitLines(tt)
	if lines[0] != "Terminal: Connected @ tcp://localhost:4000" {
		t.Fatalf("unexpected line: %q", lines[0])
	}
}

func TestBuildTooltipFormatsNeitherBackendNorEndpoint(t *testing.T) {
	services := []ServiceSummary{{Name: "Dashboard", State: "Disconnected"}}
	tt := BuildTooltip(services, 0)
	lines := splitLines(tt)
	if lines[0] != "Dashboard: Disconnected" {
		t.Fatalf("unexpected line: %q", lines[0])
	}
}

func TestBuildTooltipPluralisesClientCount(t *testing.T) {
	services := []ServiceSummary{{Name: "MCP", State: "Connected"}}

	if tt := BuildTooltip(services, 0); !endsWith(tt, "Clients: 0 attached") {
		t.Fatalf("got: %q", tt)
	}
	if tt := BuildTooltip(services, 1); !endsWith(tt, "Client: 1 attached") {
		t.Fatalf("got: %q", tt)
	}
	if tt := BuildTooltip(services, 5); !endsWith(tt, "Clients: 5 attached") {
		t.Fatalf("got: %q", tt)
	}
}

func TestBuildTooltipMultipleServicesLineCount(t *testing.T) {
	services := []ServiceSummary{
		{Name: "MCP", State: "Connected", Backend: "node", Endpoint: "tcp://localhost:3000"},
		{Name: "Terminal", State: "Connected"},
		{Name: "Dashboard", State: "Disconnected"},
	}
	tt := BuildTooltip(services, 2)
	lines := splitLines(tt)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(lines), lines)
	}
	want := []string{
		"MCP: Connected (node) @ tcp://localhost:3000",
		"Terminal: Connected",
		"Dashboard: Disconnected",
		"Clients: 2 attached",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d: got %q, want %q", i, lines[i], w)
		}
	}
}

func TestBuildTooltipMatchesExactExample(t *testing.T) {
	services := []ServiceSummary{
		{Name: "MCP", State: "Connected", Backend: "node", Endpoint: "tcp://localhost:3000"},
		{Name: "Terminal", State: "Connected"},
		{Name: "Dashboard", State: "Disconnected"},
	}
	tt := BuildTooltip(services, 2)
	expected := "MCP: Connected (node) @ tcp://localhost:3000\nTerminal: Connected\nDashboard: Disconnected\nClients: 2 attached"
	if tt != expected {
		t.Fatalf("got:\n%s\nwant:\n%s", tt, expected)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func endsWith(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
