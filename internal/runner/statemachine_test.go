package runner

import "testing"

func TestConnectionStateMachineStartsDisconnected(t *testing.T) {
	m := NewConnectionStateMachine()
	if m.State() != StateDisconnected {
		t.Fatalf("expected Disconnected, got %s", m.State())
	}
}

func TestConnectionStateMachineFollowsHappyPath(t *testing.T) {
	m := NewConnectionStateMachine()
	steps := []ConnectionState{StateProbing, StateConnecting, StateVerifying, StateConnected, StateReconnecting, StateConnected}
	for _, s := range steps {
		if !m.Transition(s) {
			t.Fatalf("expected transition to %s to succeed from %s", s, m.State())
		}
	}
}

func TestConnectionStateMachineRejectsInvalidEdge(t *testing.T) {
	m := NewConnectionStateMachine()
	if m.Transition(StateConnected) {
		t.Fatal("expected direct Disconnected -> Connected to be rejected")
	}
	if m.State() != StateDisconnected {
		t.Fatalf("expected state unchanged after rejected transition, got %s", m.State())
	}
}

func TestConnectionStateMachineCanCollapseToDisconnectedFromAnyState(t *testing.T) {
	for _, start := range []ConnectionState{StateProbing, StateConnecting, StateVerifying, StateConnected, StateReconnecting} {
		m := &ConnectionStateMachine{state: start}
		if !m.Transition(StateDisconnected) {
			t.Fatalf("expected %s -> Disconnected to succeed", start)
		}
	}
}

func TestConnectionStateMachineResetForcesDisconnected(t *testing.T) {
	m := NewConnectionStateMachine()
	m.Transition(StateProbing)
	m.Transition(StateConnecting)
	m.Reset()
	if m.State() != StateDisconnected {
		t.Fatalf("expected reset to force Disconnected, got %s", m.State())
	}
}
