package terminal

import (
	"testing"
	"time"
)

func TestNewCoreStartsIdle(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	if core.PendingCount() != 0 || !core.IsIdle() || core.IsConnected() {
		t.Fatal("expected fresh core to be idle and disconnected")
	}
}

func TestEnqueueAndApproveDequeuesFIFOHead(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	core.EnqueueRequest("s1", CommandRequest{ID: "r1", Command: "echo one"})
	core.EnqueueRequest("s1", CommandRequest{ID: "r2", Command: "echo two"})

	if core.PendingCount() != 2 {
		t.Fatalf("expected 2 pending, got %d", core.PendingCount())
	}

	head, ok := core.Approve("s1")
	if !ok || head.ID != "r1" {
		t.Fatalf("expected FIFO head r1, got %+v ok=%v", head, ok)
	}
	if core.PendingCount() != 1 {
		t.Fatalf("expected 1 remaining, got %d", core.PendingCount())
	}
}

func TestApproveOnEmptyQueueReturnsFalse(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	core.CreateSession("s1", RuntimeContext{})
	if _, ok := core.Approve("s1"); ok {
		t.Fatal("expected approve on empty queue to fail")
	}
}

func TestDeclineRecordsReasonInTracker(t *testing.T) {
	tracker := NewOutputTracker()
	core := NewInteractiveTerminalCore(tracker)
	core.EnqueueRequest("s1", CommandRequest{ID: "r1", Command: "rm -rf /"})

	declined, ok := core.Decline("s1", "not allowlisted")
	if !ok || declined.ID != "r1" {
		t.Fatalf("expected decline of r1, got %+v ok=%v", declined, ok)
	}

	resp := tracker.BuildReadOutputResponse("r1")
	if resp.Running {
		t.Fatal("expected declined entry to be marked not running")
	}
	if resp.Stderr == "" {
		t.Fatal("expected decline reason recorded in stderr")
	}
}

func TestCreateSessionSelectsFirstSessionAutomatically(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	core.CreateSession("s1", RuntimeContext{Profile: ProfileSystem})
	if core.SelectedSession() != "s1" {
		t.Fatalf("expected s1 to be auto-selected, got %q", core.SelectedSession())
	}

	core.CreateSession("s2", RuntimeContext{Profile: ProfilePython})
	if core.SelectedSession() != "s1" {
		t.Fatalf("expected selection to remain s1, got %q", core.SelectedSession())
	}

	if !core.SwitchActiveSession("s2") {
		t.Fatal("expected switch to s2 to succeed")
	}
	if core.SelectedSession() != "s2" {
		t.Fatalf("expected s2 selected, got %q", core.SelectedSession())
	}
}

func TestSwitchActiveSessionFailsForUnknownSession(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	if core.SwitchActiveSession("ghost") {
		t.Fatal("expected switch to unknown session to fail")
	}
}

func TestCloseSessionDrainsPendingAndReassignsSelection(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	core.EnqueueRequest("s1", CommandRequest{ID: "r1"})
	core.CreateSession("s2", RuntimeContext{})

	drained := core.CloseSession("s1")
	if len(drained) != 1 || drained[0].ID != "r1" {
		t.Fatalf("expected drained [r1], got %+v", drained)
	}
	if core.SelectedSession() != "s2" {
		t.Fatalf("expected selection to move to s2, got %q", core.SelectedSession())
	}
}

func TestRenameSessionRequiresExistingSession(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	if core.RenameSession("ghost", "new name") {
		t.Fatal("expected rename of unknown session to fail")
	}
	core.CreateSession("s1", RuntimeContext{})
	if !core.RenameSession("s1", "My Shell") {
		t.Fatal("expected rename to succeed")
	}
}

func TestResizeSessionUpdatesDimensions(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	core.CreateSession("s1", RuntimeContext{})
	if !core.ResizeSession("s1", 120, 40) {
		t.Fatal("expected resize to succeed")
	}
	if core.ResizeSession("ghost", 1, 1) {
		t.Fatal("expected resize of unknown session to fail")
	}
}

func TestShouldExitOnlyWhenIdleAndTimedOut(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())

	if core.ShouldExit(300 * time.Second) {
		t.Fatal("expected fresh core not to exit before timeout elapses")
	}
	if !core.ShouldExit(0) {
		t.Fatal("expected zero timeout to trigger exit when idle")
	}

	core.EnqueueRequest("s1", CommandRequest{ID: "r1"})
	if core.ShouldExit(0) {
		t.Fatal("expected pending request to prevent exit even with zero timeout")
	}
}

func TestSetConnectedTracksState(t *testing.T) {
	core := NewInteractiveTerminalCore(NewOutputTracker())
	if core.IsConnected() {
		t.Fatal("expected fresh core to be disconnected")
	}
	core.SetConnected(true)
	if !core.IsConnected() {
		t.Fatal("expected core to report connected")
	}
}

func TestExportCapturedOutputDelegatesToTracker(t *testing.T) {
	tracker := NewOutputTracker()
	core := NewInteractiveTerminalCore(tracker)
	tracker.MarkCompleted("r1", nil, "output text", "")

	resp := core.ExportCapturedOutput("r1")
	if resp.Stdout != "output text" {
		t.Fatalf("expected exported stdout, got %q", resp.Stdout)
	}
}
