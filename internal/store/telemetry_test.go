package store

import "testing"

func openTestDB(t *testing.T) *Telemetry {
	t.Helper()
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewTelemetry(db)
}

func TestTelemetryRoundTripsDispatcherSession(t *testing.T) {
	tel := openTestDB(t)

	err := tel.RecordDispatcherSession(DispatcherSessionRecord{
		ID:           "evt-1",
		SessionID:    "sess-1",
		RecordedAtMs: 1000,
		State:        "Completed",
		Cohort:       "default",
		Detail:       map[string]any{"exit_code": 0},
	})
	if err != nil {
		t.Fatalf("RecordDispatcherSession: %v", err)
	}

	rows, err := tel.RecentDispatcherSessions(10)
	if err != nil {
		t.Fatalf("RecentDispatcherSessions: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].SessionID != "sess-1" || rows[0].State != "Completed" {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestTelemetryRoundTripsServiceTransition(t *testing.T) {
	tel := openTestDB(t)

	err := tel.RecordServiceTransition(ServiceTransitionRecord{
		ID:           "evt-2",
		ServiceName:  "mcp",
		RecordedAtMs: 2000,
		FromState:    "Probing",
		ToState:      "Connecting",
	})
	if err != nil {
		t.Fatalf("RecordServiceTransition: %v", err)
	}

	rows, err := tel.RecentServiceTransitions(10)
	if err != nil {
		t.Fatalf("RecentServiceTransitions: %v", err)
	}
	if len(rows) != 1 || rows[0].ToState != "Connecting" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestTelemetryNilSafeOperations(t *testing.T) {
	var tel *Telemetry
	if err := tel.RecordDispatcherSession(DispatcherSessionRecord{}); err != nil {
		t.Fatalf("nil telemetry RecordDispatcherSession should be a no-op: %v", err)
	}
	rows, err := tel.RecentDispatcherSessions(5)
	if err != nil || rows != nil {
		t.Fatalf("nil telemetry RecentDispatcherSessions should be a no-op: %v %v", rows, err)
	}
}

func TestSchemaVersionAdvancesAfterMigrations(t *testing.T) {
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()

	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if version != len(migrations) {
		t.Fatalf("expected schema version %d, got %d", len(migrations), version)
	}
}
