package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/nimbus/pkg/models"
)

// SetMemory stores one long-term memory entry as JSON.
func (db *DB) SetMemory(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode memory %s: %w", key, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO memory (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set memory %s: %w", key, err)
	}
	return nil
}

// LongTermMemory returns every memory entry.
func (db *DB) LongTermMemory(ctx context.Context) (map[string]any, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM memory ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	defer rows.Close()

	mem := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode memory %s: %w", key, err)
		}
		mem[key] = v
	}
	return mem, rows.Err()
}

// SaveLongTermMemory replaces all memory entries in one transaction.
func (db *DB) SaveLongTermMemory(ctx context.Context, mem map[string]any) error {
	now := formatTime(time.Now())
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory`); err != nil {
			return fmt.Errorf("clear memory: %w", err)
		}
		for k, v := range mem {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode memory %s: %w", k, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO memory (key, value, updated_at) VALUES (?, ?, ?)`,
				k, string(data), now); err != nil {
				return fmt.Errorf("save memory %s: %w", k, err)
			}
		}
		return nil
	})
}

// AddExperience records an experience.
func (db *DB) AddExperience(ctx context.Context, e models.Experience) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO experiences (scenario, action, outcome, lesson, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, e.Scenario, e.Action, e.Outcome, e.LessonLearned, formatTime(e.Timestamp))
	if err != nil {
		return fmt.Errorf("add experience: %w", err)
	}
	return nil
}

// RecentExperiences returns up to limit experiences, newest first.
func (db *DB) RecentExperiences(ctx context.Context, limit int) ([]models.Experience, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT scenario, action, outcome, COALESCE(lesson, ''), created_at
		FROM experiences ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list experiences: %w", err)
	}
	defer rows.Close()

	var out []models.Experience
	for rows.Next() {
		var e models.Experience
		var created string
		if err := rows.Scan(&e.Scenario, &e.Action, &e.Outcome, &e.LessonLearned, &created); err != nil {
			return nil, fmt.Errorf("scan experience: %w", err)
		}
		e.Timestamp, _ = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
