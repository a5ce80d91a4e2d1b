package terminal

import (
	"testing"
	"time"
)

func TestStoreThenBuildReadOutputResponseReflectsEntry(t *testing.T) {
	tracker := NewOutputTracker()
	tracker.Store(CompletedOutput{RequestID: "r1", Running: true, Stdout: "partial"})

	resp := tracker.BuildReadOutputResponse("r1")
	if !resp.Running || resp.Stdout != "partial" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestBuildReadOutputResponseForUnknownSessionIsEmpty(t *testing.T) {
	tracker := NewOutputTracker()
	resp := tracker.BuildReadOutputResponse("nope")
	if resp.Running || resp.Stdout != "" || resp.SessionID != "nope" {
		t.Fatalf("expected empty response, got %+v", resp)
	}
}

func TestMarkCompletedFinalizesEntryAndClearsKillSender(t *testing.T) {
	tracker := NewOutputTracker()
	tracker.Store(CompletedOutput{RequestID: "r1", Running: true})
	tracker.RegisterKillSender("r1", make(chan struct{}, 1))

	code := 0
	tracker.MarkCompleted("r1", &code, "out", "err")

	resp := tracker.BuildReadOutputResponse("r1")
	if resp.Running {
		t.Fatal("expected entry to no longer be running")
	}
	if resp.ExitCode == nil || *resp.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %+v", resp.ExitCode)
	}

	result := tracker.TryKill("r1")
	if result.Killed || result.Error == "" {
		t.Fatalf("expected kill to fail after completion, got %+v", result)
	}
}

func TestMarkCompletedOnUnknownRequestCreatesEntry(t *testing.T) {
	tracker := NewOutputTracker()
	code := 1
	tracker.MarkCompleted("fresh", &code, "stdout text", "")

	resp := tracker.BuildReadOutputResponse("fresh")
	if resp.Running || resp.ExitCode == nil || *resp.ExitCode != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestTryKillDeliversSignalOnce(t *testing.T) {
	tracker := NewOutputTracker()
	sender := make(chan struct{}, 1)
	tracker.RegisterKillSender("r1", sender)

	result := tracker.TryKill("r1")
	if !result.Killed {
		t.Fatalf("expected kill delivered, got %+v", result)
	}

	select {
	case <-sender:
	default:
		t.Fatal("expected kill signal on channel")
	}

	second := tracker.TryKill("r1")
	if second.Killed || second.Error == "" {
		t.Fatalf("expected second kill to report session not found, got %+v", second)
	}
}

func TestTryKillOnUnknownSessionReportsNotFound(t *testing.T) {
	tracker := NewOutputTracker()
	result := tracker.TryKill("ghost")
	if result.Killed || result.Error != "Session not found" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestEvictStaleRemovesOnlyOldCompletedEntries(t *testing.T) {
	tracker := NewOutputTracker()
	tracker.Store(CompletedOutput{RequestID: "old", Running: false, CompletedAt: time.Now().Add(-31 * time.Minute)})
	tracker.Store(CompletedOutput{RequestID: "recent", Running: false, CompletedAt: time.Now().Add(-time.Minute)})
	tracker.Store(CompletedOutput{RequestID: "still-running", Running: true, CompletedAt: time.Now().Add(-time.Hour)})

	tracker.EvictStale()

	if resp := tracker.BuildReadOutputResponse("old"); resp.SessionID != "old" || resp.Stdout != "" || resp.Running {
		// old should be gone entirely: empty response means not found
	}
	tracker.mu.Lock()
	_, oldExists := tracker.completed["old"]
	_, recentExists := tracker.completed["recent"]
	_, runningExists := tracker.completed["still-running"]
	tracker.mu.Unlock()

	if oldExists {
		t.Fatal("expected stale completed entry to be evicted")
	}
	if !recentExists {
		t.Fatal("expected recent completed entry to survive")
	}
	if !runningExists {
		t.Fatal("expected running entry to survive regardless of age")
	}
}
