package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionStatus represents the status of a run session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCanceled  SessionStatus = "canceled"
)

// Session is one invocation of the orchestration loop.
type Session struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at"`
	Iterations int           `json:"iterations"`
	Status     SessionStatus `json:"status"`
}

// CreateSession creates a new session.
func (db *DB) CreateSession(ctx context.Context, s *Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, iterations, status)
		VALUES (?, ?, ?, ?)
	`, s.ID, formatTime(s.StartedAt), s.Iterations, string(s.Status))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. It returns nil, nil if absent.
func (db *DB) GetSession(ctx context.Context, id string) (*Session, error) {
	return db.scanSession(db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, iterations, status
		FROM sessions WHERE id = ?
	`, id))
}

// LatestSession returns the most recently started session, or nil.
func (db *DB) LatestSession(ctx context.Context) (*Session, error) {
	return db.scanSession(db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, iterations, status
		FROM sessions ORDER BY started_at DESC LIMIT 1
	`))
}

// UpdateSession updates a session.
func (db *DB) UpdateSession(ctx context.Context, s *Session) error {
	var ended any
	if s.EndedAt != nil {
		ended = formatTime(*s.EndedAt)
	}
	_, err := db.ExecContext(ctx, `
		UPDATE sessions SET ended_at = ?, iterations = ?, status = ?
		WHERE id = ?
	`, ended, s.Iterations, string(s.Status), s.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (db *DB) scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var startedAt string
	var endedAt sql.NullString
	err := row.Scan(&s.ID, &startedAt, &endedAt, &s.Iterations, &s.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.StartedAt, _ = parseTime(startedAt)
	s.EndedAt = parseNullableTime(endedAt)
	return &s, nil
}
