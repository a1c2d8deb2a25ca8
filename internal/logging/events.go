package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #region log-event
// LogEvent writes an audit entry to the event_log table.
func LogEvent(db *sql.DB, ev Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO event_log (session_id, trial_number, kind, detail_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID,
		ev.TrialNumber,
		string(ev.Kind),
		nullIfEmpty(ev.DetailJSON),
		ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event %s: %w", ev.Kind, err)
	}
	return nil
}

// #endregion log-event

// #region detail
// Detail marshals v for Event.DetailJSON. Marshal failures yield "".
func Detail(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// #endregion detail

// #region list-events
// ListEvents returns a session's events in insertion order.
func ListEvents(db *sql.DB, sessionID string) ([]Event, error) {
	rows, err := db.Query(
		`SELECT session_id, trial_number, kind, detail_json, created_at
		 FROM event_log WHERE session_id = ? ORDER BY id ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var kind, created string
		var detail sql.NullString
		if err := rows.Scan(&ev.SessionID, &ev.TrialNumber, &kind, &detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.DetailJSON = detail.String
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// #endregion list-events

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
