package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

// AppendActionLog stores one dispatch record.
func (db *DB) AppendActionLog(ctx context.Context, rec action.Record) error {
	data, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("encode action result: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO action_log (seq, name, status, result, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Seq, rec.Name, string(rec.Result.Status), string(data), formatTime(rec.Timestamp))
	if err != nil {
		return fmt.Errorf("append action log: %w", err)
	}
	return nil
}

// RecentActions returns up to limit action log records, newest first.
func (db *DB) RecentActions(ctx context.Context, limit int) ([]action.Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, name, result, created_at FROM action_log
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list action log: %w", err)
	}
	defer rows.Close()

	var out []action.Record
	for rows.Next() {
		var rec action.Record
		var result, created string
		if err := rows.Scan(&rec.Seq, &rec.Name, &result, &created); err != nil {
			return nil, fmt.Errorf("scan action log: %w", err)
		}
		if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
			return nil, fmt.Errorf("decode action result %d: %w", rec.Seq, err)
		}
		rec.Timestamp, _ = parseTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveProgress upserts a project's progress record.
func (db *DB) SaveProgress(ctx context.Context, rec models.ProgressRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO progress (project, current_stage, record, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			current_stage = excluded.current_stage,
			record = excluded.record,
			updated_at = excluded.updated_at
	`, rec.Project, string(rec.CurrentStage), string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// GetProgress returns a project's progress record, or nil if absent.
func (db *DB) GetProgress(ctx context.Context, project string) (*models.ProgressRecord, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT record FROM progress WHERE project = ?`, project).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	var rec models.ProgressRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode progress %s: %w", project, err)
	}
	return &rec, nil
}

// ListProgress returns every progress record ordered by last update.
func (db *DB) ListProgress(ctx context.Context) ([]models.ProgressRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT record FROM progress ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []models.ProgressRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		var rec models.ProgressRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode progress: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
