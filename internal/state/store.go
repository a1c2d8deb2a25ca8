package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/rdw-threshold/go-controller/internal/staircase"
)

// #region schema
// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id      TEXT PRIMARY KEY,
	participant_id  TEXT NOT NULL,
	condition       TEXT NOT NULL,
	age_group       INTEGER NOT NULL,
	seed            INTEGER NOT NULL,
	config_json     TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT,
	threshold       REAL,
	total_trials    INTEGER NOT NULL DEFAULT 0,
	total_reversals INTEGER NOT NULL DEFAULT 0,
	gate_action     TEXT,
	gate_reason     TEXT
);

CREATE TABLE IF NOT EXISTS trials (
	session_id       TEXT NOT NULL,
	trial_number     INTEGER NOT NULL,
	gain_value       REAL NOT NULL,
	is_catch         INTEGER NOT NULL,
	response_correct INTEGER NOT NULL,
	was_reversal     INTEGER NOT NULL,
	step_size        REAL NOT NULL,
	created_at       TEXT NOT NULL,
	PRIMARY KEY (session_id, trial_number),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS reversal_points (
	session_id TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	value      REAL NOT NULL,
	PRIMARY KEY (session_id, idx),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS event_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	trial_number INTEGER NOT NULL DEFAULT 0,
	kind         TEXT NOT NULL,
	detail_json  TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);
`

// #endregion schema

// #region store-struct
// Store persists sessions, trial histories and reversal points in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	// foreign_keys is per connection, so it rides on the DSN.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create-session
// CreateSession inserts a running session. An empty SessionID is replaced by
// a fresh UUID; a zero StartedAt by the current time.
func (s *Store) CreateSession(rec SessionRecord) (SessionRecord, error) {
	if rec.SessionID == "" {
		rec.SessionID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.ConfigJSON == "" {
		rec.ConfigJSON = "{}"
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, participant_id, condition, age_group, seed, config_json, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.ParticipantID, rec.Condition, rec.AgeGroup, int64(rec.Seed),
		rec.ConfigJSON, rec.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("insert session: %w", err)
	}
	return rec, nil
}

// #endregion create-session

// #region append-trial
// AppendTrial stores one trial record. Trial numbers are unique per session.
func (s *Store) AppendTrial(sessionID string, t staircase.TrialRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO trials (session_id, trial_number, gain_value, is_catch, response_correct, was_reversal, step_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, t.TrialNumber, t.GainValue, t.IsCatchTrial, t.ResponseCorrect, t.WasReversal,
		t.StepSizeUsed, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert trial %d: %w", t.TrialNumber, err)
	}
	return nil
}

// #endregion append-trial

// #region finish-session
// FinishSession records the outcome and reversal points atomically.
func (s *Store) FinishSession(sessionID string, sum Summary) error {
	if sum.FinishedAt.IsZero() {
		sum.FinishedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE sessions SET finished_at = ?, threshold = ?, total_trials = ?, total_reversals = ?,
		 gate_action = ?, gate_reason = ? WHERE session_id = ?`,
		sum.FinishedAt.UTC().Format(timeLayout), sum.Threshold, sum.TotalTrials, sum.TotalReversals,
		nullIfEmpty(sum.GateAction), nullIfEmpty(sum.GateReason), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}

	if _, err := tx.Exec(`DELETE FROM reversal_points WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear reversal points: %w", err)
	}
	for i, v := range sum.ReversalPoints {
		if _, err := tx.Exec(
			`INSERT INTO reversal_points (session_id, idx, value) VALUES (?, ?, ?)`,
			sessionID, i, v,
		); err != nil {
			return fmt.Errorf("insert reversal point %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// #endregion finish-session

// #region get-session
const sessionColumns = `session_id, participant_id, condition, age_group, seed, config_json,
	started_at, finished_at, threshold, total_trials, total_reversals, gate_action, gate_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var rec SessionRecord
	var seed int64
	var startedStr string
	var finishedStr, gateAction, gateReason sql.NullString
	var threshold sql.NullFloat64

	err := row.Scan(&rec.SessionID, &rec.ParticipantID, &rec.Condition, &rec.AgeGroup, &seed,
		&rec.ConfigJSON, &startedStr, &finishedStr, &threshold, &rec.TotalTrials, &rec.TotalReversals,
		&gateAction, &gateReason)
	if err != nil {
		return SessionRecord{}, err
	}

	rec.Seed = uint64(seed)
	rec.StartedAt, _ = time.Parse(timeLayout, startedStr)
	if finishedStr.Valid {
		rec.FinishedAt, _ = time.Parse(timeLayout, finishedStr.String)
	}
	if threshold.Valid {
		rec.Threshold = threshold.Float64
	}
	rec.GateAction = gateAction.String
	rec.GateReason = gateReason.String
	return rec, nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id,
	))
	if err != nil {
		return SessionRecord{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns the most recently started sessions.
func (s *Store) ListSessions(limit int) ([]SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion get-session

// #region trials
// Trials returns a session's trial history in trial order.
func (s *Store) Trials(sessionID string) ([]staircase.TrialRecord, error) {
	rows, err := s.db.Query(
		`SELECT trial_number, gain_value, is_catch, response_correct, was_reversal, step_size
		 FROM trials WHERE session_id = ? ORDER BY trial_number ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var trials []staircase.TrialRecord
	for rows.Next() {
		var t staircase.TrialRecord
		if err := rows.Scan(&t.TrialNumber, &t.GainValue, &t.IsCatchTrial, &t.ResponseCorrect,
			&t.WasReversal, &t.StepSizeUsed); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// ReversalPoints returns a session's reversal midpoints in order.
func (s *Store) ReversalPoints(sessionID string) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT value FROM reversal_points WHERE session_id = ? ORDER BY idx ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reversal points: %w", err)
	}
	defer rows.Close()

	var points []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan reversal point: %w", err)
		}
		points = append(points, v)
	}
	return points, rows.Err()
}

// #endregion trials

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
