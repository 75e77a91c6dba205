package state

import (
	"context"
	"io"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/persist"
	"github.com/ShayCichocki/nimbus/internal/progress"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

// SessionStore handles run-session persistence operations.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	LatestSession(ctx context.Context) (*Session, error)
}

// ExperienceStore records experiences.
type ExperienceStore interface {
	AddExperience(ctx context.Context, e models.Experience) error
}

// Migrator handles database schema migrations.
type Migrator interface {
	Migrate() error
}

// StateStore is the complete SQLite-backed store.
type StateStore interface {
	io.Closer
	Migrator
	SessionStore
	ExperienceStore
	persist.Store
	progress.Store
	action.LogSink
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore      = (*DB)(nil)
	_ persist.Store   = (*DB)(nil)
	_ progress.Store  = (*DB)(nil)
	_ action.LogSink  = (*DB)(nil)
	_ SessionStore    = (*DB)(nil)
	_ ExperienceStore = (*DB)(nil)
)
