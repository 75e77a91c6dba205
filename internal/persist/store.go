// Package persist periodically snapshots long-term memory and recent
// experiences to durable storage.
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/ShayCichocki/nimbus/pkg/models"
)

// ErrCorruptSnapshot is returned when a stored snapshot cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Store is the knowledge store the scheduler reads from and writes to.
type Store interface {
	RecentExperiences(ctx context.Context, limit int) ([]models.Experience, error)
	LongTermMemory(ctx context.Context) (map[string]any, error)
	SaveLongTermMemory(ctx context.Context, mem map[string]any) error
	// LoadSnapshot returns nil, nil when no snapshot exists.
	LoadSnapshot(ctx context.Context) (*models.Snapshot, error)
	WriteSnapshot(ctx context.Context, snap models.Snapshot) error
}

// ExperienceRestorer is implemented by stores that keep experiences only in
// memory and need them restored from a snapshot. Experiences are passed
// oldest first.
type ExperienceRestorer interface {
	RestoreExperiences(ctx context.Context, exps []models.Experience) error
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
