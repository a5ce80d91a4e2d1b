package ptyhost

import (
	"testing"
	"time"
)

func TestSpawnAndReadOutputFromSession(t *testing.T) {
	events := make(chan HostEvent, 32)
	m := NewManager(events)

	req := Message{
		SessionID: "s1",
		Program:   "sh",
		Args:      []string{"-c", "echo hello; exit 0"},
		Cwd:       "/tmp",
		Cols:      80,
		Rows:      24,
	}
	if err := m.Spawn(req); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}

	var gotOutput, gotExit bool
	deadline := time.After(5 * time.Second)
	for !gotExit {
		select {
		case ev := <-events:
			if ev.SessionID != "s1" {
				t.Fatalf("unexpected session id: %s", ev.SessionID)
			}
			if len(ev.Output) > 0 {
				gotOutput = true
			}
			if ev.Exited {
				gotExit = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for session output/exit")
		}
	}
	if !gotOutput {
		t.Fatal("expected at least one output event before exit")
	}
}

func TestSpawnDuplicateSessionIDFails(t *testing.T) {
	events := make(chan HostEvent, 32)
	m := NewManager(events)
	req := Message{SessionID: "dup", Program: "sleep", Args: []string{"2"}, Cwd: "/tmp", Cols: 80, Rows: 24}

	if err := m.Spawn(req); err != nil {
		t.Fatalf("first spawn failed: %v", err)
	}
	defer m.KillAll()

	if err := m.Spawn(req); err == nil {
		t.Fatal("expected duplicate spawn to fail")
	}
}

func TestWriteInputToUnknownSessionIsNoop(t *testing.T) {
	events := make(chan HostEvent, 4)
	m := NewManager(events)
	m.WriteInput("nope", []byte("data"))
}

func TestKillRemovesSessionFromMap(t *testing.T) {
	events := make(chan HostEvent, 32)
	m := NewManager(events)
	req := Message{SessionID: "k1", Program: "sleep", Args: []string{"30"}, Cwd: "/tmp", Cols: 80, Rows: 24}
	if err := m.Spawn(req); err != nil {
		t.Fatalf("spawn failed: %v", err)
	}
	m.Kill("k1")

	m.mu.Lock()
	_, exists := m.sessions["k1"]
	m.mu.Unlock()
	if exists {
		t.Fatal("expected session removed after Kill")
	}
}
