package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one recorded producer connection.
type Session struct {
	ID           string     `json:"id"`
	Remote       string     `json:"remote"`
	Started      time.Time  `json:"started"`
	Ended        *time.Time `json:"ended,omitempty"`
	Bytes        int64      `json:"bytes"`
	Samples      int64      `json:"samples"`
	Malformed    int64      `json:"malformed"`
	MissingField int64      `json:"missing_field"`
	Rotations    int64      `json:"rotations"`
	EndReason    string     `json:"end_reason,omitempty"`
}

// SessionTotals are the counters written when a session ends.
type SessionTotals struct {
	Bytes        int64
	Samples      int64
	Malformed    int64
	MissingField int64
	Rotations    int64
}

// StartSession records a new session.
func (db *DB) StartSession(id, remote string, started time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, remote, started_unix) VALUES (?, ?, ?)`,
		id, remote, unixSeconds(started),
	)
	if err != nil {
		return fmt.Errorf("start session %s: %w", id, err)
	}
	return nil
}

// EndSession stores the final counters of a session and why it ended.
func (db *DB) EndSession(id string, ended time.Time, totals SessionTotals, reason string) error {
	res, err := db.Exec(
		`UPDATE sessions SET
			ended_unix = ?, bytes = ?, samples = ?, malformed = ?,
			missing_field = ?, rotations = ?, end_reason = ?
		WHERE session_id = ?`,
		unixSeconds(ended), totals.Bytes, totals.Samples, totals.Malformed,
		totals.MissingField, totals.Rotations, reason, id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("end session %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// GetSession returns one session by ID.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(`
		SELECT session_id, remote, started_unix, ended_unix, bytes, samples,
			malformed, missing_field, rotations, COALESCE(end_reason, '')
		FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return s, err
}

// Sessions returns every session, most recent first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`
		SELECT session_id, remote, started_unix, ended_unix, bytes, samples,
			malformed, missing_field, rotations, COALESCE(end_reason, '')
		FROM sessions ORDER BY started_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s       Session
		started float64
		ended   sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.Remote, &started, &ended, &s.Bytes, &s.Samples,
		&s.Malformed, &s.MissingField, &s.Rotations, &s.EndReason); err != nil {
		return nil, err
	}
	s.Started = fromUnixSeconds(started)
	if ended.Valid {
		t := fromUnixSeconds(ended.Float64)
		s.Ended = &t
	}
	return &s, nil
}
