package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ShayCichocki/nimbus/internal/persist"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

// LoadSnapshot returns the stored snapshot, or nil, nil if none exists.
func (db *DB) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var data string
	err := db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", persist.ErrCorruptSnapshot, err)
	}
	return &snap, nil
}

// WriteSnapshot replaces the stored snapshot inside one transaction.
func (db *DB) WriteSnapshot(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	savedAt := formatTime(snap.SavedAt())
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
			return fmt.Errorf("clear snapshot: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (id, data, saved_at) VALUES (1, ?, ?)`,
			string(data), savedAt); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		return nil
	})
}
