// Package orchestrator composes the supervisor's managed services into a
// single process lifecycle: startup containment, graceful shutdown, and the
// tray tooltip renderer.
package orchestrator

import (
	"fmt"
	"strings"
)

// ServiceSummary is a lightweight view of one managed service used by the
// tooltip renderer.
type ServiceSummary struct {
	// Name is the display name, e.g. "MCP", "Terminal", "Dashboard".
	Name string
	// State is a human-readable connection state, e.g. "Connected",
	// "Reconnecting", "Disconnected".
	State string
	// Backend is the active backend identifier, e.g. "node" or
	// "container". Empty when not applicable or not yet known.
	Backend string
	// Endpoint is the service endpoint, e.g. "tcp://localhost:3000".
	// Empty when not applicable or not yet known.
	Endpoint string
}

// BuildTooltip formats the supervisor status into a tray-tooltip string.
//
// Each service produces one line:
//
//	backend set, endpoint set:    "{name}: {state} ({backend}) @ {endpoint}"
//	backend set, endpoint empty:  "{name}: {state} ({backend})"
//	backend empty, endpoint set:  "{name}: {state} @ {endpoint}"
//	backend empty, endpoint empty: "{name}: {state}"
//
// followed by a final "Clients: N attached" line ("Client: 1 attached"
// when clientCount == 1). Lines are joined with '\n'.
func BuildTooltip(services []ServiceSummary, clientCount int) string {
	lines := make([]string, 0, len(services)+1)
	for _, svc := range services {
		lines = append(lines, formatServiceLine(svc))
	}

	if clientCount == 1 {
		lines = append(lines, "Client: 1 attached")
	} else {
		lines = append(lines, fmt.Sprintf("Clients: %d attached", clientCount))
	}

	return strings.Join(lines, "\n")
}

func formatServiceLine(svc ServiceSummary) string {
	switch {
	case svc.Backend != "" && svc.Endpoint != "":
		return fmt.Sprintf("%s: %s (%s) @ %s", svc.Name, svc.State, svc.Backend, svc.Endpoint)
	case svc.Backend != "":
		return fmt.Sprintf("%s: %s (%s)", svc.Name, svc.State, svc.Backend)
	case svc.Endpoint != "":
		return fmt.Sprintf("%s: %s @ %s", svc.Name, svc.State, svc.Endpoint)
	default:
		return fmt.Sprintf("%s: %s", svc.Name, svc.State)
	}
}
