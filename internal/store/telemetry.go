package store

import (
	"database/sql"
	"encoding/json"
)

// DispatcherSessionRecord is one row of dispatcher session history: a
// snapshot of a session at the moment it transitioned to a new state.
type DispatcherSessionRecord struct {
	ID           string
	SessionID    string
	RecordedAtMs int64
	State        string
	Cohort       string
	Detail       any
}

// ServiceTransitionRecord is one row of service connection-state-machine
// history.
type ServiceTransitionRecord struct {
	ID           string
	ServiceName  string
	RecordedAtMs int64
	FromState    string
	ToState      string
	Detail       any
}

// Telemetry records best-effort diagnostic history. The Record methods
// return write errors to their caller, which decides whether they affect
// the triggering operation.
type Telemetry struct {
	db *sql.DB
}

// NewTelemetry wraps an already-opened database handle.
func NewTelemetry(db *sql.DB) *Telemetry {
	return &Telemetry{db: db}
}

// Close releases the underlying database handle.
func (t *Telemetry) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

// RecordDispatcherSession appends a dispatcher session transition. Errors
// are returned so callers can log them, but must never be treated as
// dispatch failures.
func (t *Telemetry) RecordDispatcherSession(r DispatcherSessionRecord) error {
	if t == nil || t.db == nil {
		return nil
	}
	detail, err := marshalDetail(r.Detail)
	if err != nil {
		return err
	}
	_, err = t.db.Exec(
		`INSERT OR REPLACE INTO dispatcher_sessions (id, session_id, recorded_at_ms, state, cohort, detail_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.RecordedAtMs, r.State, nullableString(r.Cohort), detail,
	)
	return err
}

// RecordServiceTransition appends a service connection-state transition.
func (t *Telemetry) RecordServiceTransition(r ServiceTransitionRecord) error {
	if t == nil || t.db == nil {
		return nil
	}
	detail, err := marshalDetail(r.Detail)
	if err != nil {
		return err
	}
	_, err = t.db.Exec(
		`INSERT OR REPLACE INTO service_transitions (id, service_name, recorded_at_ms, from_state, to_state, detail_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ServiceName, r.RecordedAtMs, nullableString(r.FromState), r.ToState, detail,
	)
	return err
}

// RecentDispatcherSessions returns up to limit of the most recently recorded
// dispatcher session rows, newest first.
func (t *Telemetry) RecentDispatcherSessions(limit int) ([]DispatcherSessionRecord, error) {
	if t == nil || t.db == nil {
		return nil, nil
	}
	rows, err := t.db.Query(
		`SELECT id, session_id, recorded_at_ms, state, COALESCE(cohort, ''), COALESCE(detail_json, '')
		 FROM dispatcher_sessions ORDER BY recorded_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DispatcherSessionRecord
	for rows.Next() {
		var r DispatcherSessionRecord
		var detail string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.RecordedAtMs, &r.State, &r.Cohort, &detail); err != nil {
			return nil, err
		}
		if detail != "" {
			var v any
			if err := json.Unmarshal([]byte(detail), &v); err == nil {
				r.Detail = v
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentServiceTransitions returns up to limit of the most recently recorded
// service transition rows, newest first.
func (t *Telemetry) RecentServiceTransitions(limit int) ([]ServiceTransitionRecord, error) {
	if t == nil || t.db == nil {
		return nil, nil
	}
	rows, err := t.db.Query(
		`SELECT id, service_name, recorded_at_ms, COALESCE(from_state, ''), to_state, COALESCE(detail_json, '')
		 FROM service_transitions ORDER BY recorded_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ServiceTransitionRecord
	for rows.Next() {
		var r ServiceTransitionRecord
		var detail string
		if err := rows.Scan(&r.ID, &r.ServiceName, &r.RecordedAtMs, &r.FromState, &r.ToState, &detail); err != nil {
			return nil, err
		}
		if detail != "" {
			var v any
			if err := json.Unmarshal([]byte(detail), &v); err == nil {
				r.Detail = v
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func marshalDetail(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
