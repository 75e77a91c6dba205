package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/nimbus/internal/metrics"
	"github.com/ShayCichocki/nimbus/pkg/models"
	"go.uber.org/zap"
)

// DefaultInterval is the minimum time between periodic saves.
const DefaultInterval = 150 * time.Second

// DefaultRecentExperiences is how many experiences a snapshot carries.
const DefaultRecentExperiences = 5

// Scheduler decides when to snapshot the store.
type Scheduler struct {
	mu        sync.Mutex
	store     Store
	clock     Clock
	interval  time.Duration
	recent    int
	last      time.Time
	logger    *zap.Logger
	metrics   *metrics.Collectors
	afterSave func(models.Snapshot)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithInterval sets the save interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRecentExperiences sets how many experiences a snapshot carries.
func WithRecentExperiences(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.recent = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithMetrics sets the collectors updated on each save.
func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithAfterSave registers a hook run after each successful save.
func WithAfterSave(fn func(models.Snapshot)) Option {
	return func(s *Scheduler) { s.afterSave = fn }
}

// NewScheduler creates a scheduler over store. The interval starts now.
func NewScheduler(store Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		clock:    SystemClock{},
		interval: DefaultInterval,
		recent:   DefaultRecentExperiences,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.last = s.clock.Now()
	return s
}

// Load restores state from the latest snapshot. A missing, unreadable or
// corrupt snapshot results in a cold start and no error. Only failures to
// restore into the store are returned.
func (s *Scheduler) Load(ctx context.Context) (*models.Snapshot, error) {
	snap, err := s.store.LoadSnapshot(ctx)
	if errors.Is(err, ErrCorruptSnapshot) {
		s.logger.Warn("snapshot is corrupt, starting cold", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("snapshot unreadable, starting cold", zap.Error(err))
		return nil, nil
	}
	if snap == nil {
		s.logger.Info("no snapshot found, starting cold")
		return nil, nil
	}

	if snap.LongTermMemory != nil {
		if err := s.store.SaveLongTermMemory(ctx, snap.LongTermMemory); err != nil {
			return nil, fmt.Errorf("restore long-term memory: %w", err)
		}
	}
	if r, ok := s.store.(ExperienceRestorer); ok {
		// Snapshots list experiences newest first; restorers take them in
		// insertion order.
		exps := make([]models.Experience, 0, len(snap.RecentExperiences))
		for i := len(snap.RecentExperiences) - 1; i >= 0; i-- {
			exps = append(exps, models.ExperienceFromMap(snap.RecentExperiences[i]))
		}
		if err := r.RestoreExperiences(ctx, exps); err != nil {
			return nil, fmt.Errorf("restore experiences: %w", err)
		}
	}

	s.logger.Info("snapshot loaded",
		zap.Time("saved_at", snap.SavedAt()),
		zap.Int("memory_keys", len(snap.LongTermMemory)),
		zap.Int("experiences", len(snap.RecentExperiences)))
	return snap, nil
}

// Tick saves when at least one interval has passed since the last
// successful save. It reports whether a save happened. After a failed save
// the next Tick retries.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if now.Sub(s.last) < s.interval {
		return false, nil
	}
	if err := s.saveLocked(ctx, now); err != nil {
		return false, err
	}
	return true, nil
}

// Flush saves unconditionally.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, s.clock.Now())
}

// LastSave returns the time of the last successful save, or the scheduler's
// creation time.
func (s *Scheduler) LastSave() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) saveLocked(ctx context.Context, now time.Time) error {
	snap, err := s.buildSnapshot(ctx, now)
	if err == nil {
		err = s.store.WriteSnapshot(ctx, snap)
	}
	if err != nil {
		s.count("error")
		s.logger.Warn("snapshot save failed", zap.Error(err))
		return fmt.Errorf("save snapshot: %w", err)
	}

	s.last = now
	s.count("success")
	s.logger.Debug("snapshot saved", zap.Int("experiences", len(snap.RecentExperiences)))
	if s.afterSave != nil {
		s.afterSave(snap)
	}
	return nil
}

func (s *Scheduler) buildSnapshot(ctx context.Context, now time.Time) (models.Snapshot, error) {
	ltm, err := s.store.LongTermMemory(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read long-term memory: %w", err)
	}
	exps, err := s.store.RecentExperiences(ctx, s.recent)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read recent experiences: %w", err)
	}
	if ltm == nil {
		ltm = map[string]any{}
	}
	recent := make([]map[string]any, 0, len(exps))
	for _, e := range exps {
		recent = append(recent, e.Map())
	}
	return models.Snapshot{
		LongTermMemory:    ltm,
		RecentExperiences: recent,
		Timestamp:         now.UnixMilli(),
	}, nil
}

func (s *Scheduler) count(result string) {
	if s.metrics != nil {
		s.metrics.SnapshotsTotal.WithLabelValues(result).Inc()
	}
}
