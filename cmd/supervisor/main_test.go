package main

import (
	"testing"

	"github.com/ds-codi/pm-supervisor/internal/config"
	"github.com/ds-codi/pm-supervisor/internal/runner"
)

func TestBuildRunnerMapsNodeKindToNodeRunner(t *testing.T) {
	r, ok := buildRunner(config.ServiceEntry{Name: "mcp", Kind: config.KindNode, Command: "node"})
	if !ok {
		t.Fatal("expected a runner for node kind")
	}
	if _, isNode := r.(*runner.NodeRunner); !isNode {
		t.Fatalf("expected *runner.NodeRunner, got %T", r)
	}
}

func TestBuildRunnerMapsTerminalKindToInteractiveTerminalRunner(t *testing.T) {
	r, ok := buildRunner(config.ServiceEntry{Name: "interactive-terminal", Kind: config.KindTerminal, Command: "terminal"})
	if !ok {
		t.Fatal("expected a runner for terminal kind")
	}
	if _, isTerminal := r.(*runner.InteractiveTerminalRunner); !isTerminal {
		t.Fatalf("expected *runner.InteractiveTerminalRunner, got %T", r)
	}
}

func TestBuildRunnerSkipsFormAppAndDashboardKinds(t *testing.T) {
	if _, ok := buildRunner(config.ServiceEntry{Name: "brainstorm", Kind: config.KindFormApp}); ok {
		t.Fatal("expected form_app kind to be skipped")
	}
	if _, ok := buildRunner(config.ServiceEntry{Name: "dashboard", Kind: config.KindDashboard}); ok {
		t.Fatal("expected dashboard kind to be skipped")
	}
}
