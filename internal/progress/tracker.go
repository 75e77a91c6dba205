// Package progress keeps the per-project action history and derives the
// ratios used to guide action selection.
package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/nimbus/internal/metrics"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

// Store persists progress records.
type Store interface {
	SaveProgress(ctx context.Context, rec models.ProgressRecord) error
}

// Tracker records action events per project.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*models.ProgressRecord
	policy  *policy.Config
	store   Store
	metrics *metrics.Collectors
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStore forwards every updated record to s.
func WithStore(s Store) Option {
	return func(t *Tracker) { t.store = s }
}

// WithMetrics updates the given collectors on each recorded action.
func WithMetrics(m *metrics.Collectors) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker using the given policy tables.
func NewTracker(p *policy.Config, opts ...Option) *Tracker {
	if p == nil {
		p = policy.Default()
	}
	t := &Tracker{
		records: make(map[string]*models.ProgressRecord),
		policy:  p,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordAction appends ev to the project's history, creating the record on
// first use, and updates the counters.
func (t *Tracker) RecordAction(ctx context.Context, project string, ev models.ActionEvent) error {
	if project == "" {
		return fmt.Errorf("record action %s: empty project name", ev.Action)
	}

	t.mu.Lock()
	rec := t.recordLocked(project)
	rec.Events = append(rec.Events, ev)
	rec.Counters.TotalActions++

	if isError(ev) {
		rec.Counters.Errors++
		rec.Challenges = append(rec.Challenges, ev.Context.Errors...)
	}
	rec.Counters.TestsWritten += ev.Context.TestsWritten
	if ev.Context.CommitMade {
		rec.Counters.CommitsMade++
	}

	stage := ev.Context.Stage
	if stage == "" {
		stage = ev.Result.StageHint
	}
	if stage.Valid() && stage != rec.CurrentStage {
		if rec.CurrentStage != "" {
			markCompleted(rec, rec.CurrentStage)
		}
		rec.CurrentStage = stage
	}

	snapshot := cloneRecord(rec)
	errorRate := ratio(rec.Counters.Errors, rec.Counters.TotalActions)
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.ErrorRate.WithLabelValues(project).Set(errorRate)
	}
	return t.save(ctx, snapshot)
}

// MarkStageComplete records stage as completed without an event.
func (t *Tracker) MarkStageComplete(ctx context.Context, project string, stage models.Stage) error {
	t.mu.Lock()
	rec := t.recordLocked(project)
	markCompleted(rec, stage)
	snapshot := cloneRecord(rec)
	t.mu.Unlock()
	return t.save(ctx, snapshot)
}

// AddChallenge records a free-form challenge for the project.
func (t *Tracker) AddChallenge(project, challenge string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := t.recordLocked(project)
	rec.Challenges = append(rec.Challenges, challenge)
}

// Metrics derives ratios from the project's record. Unknown projects yield
// zero metrics.
func (t *Tracker) Metrics(project string) models.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[project]
	if !ok {
		return models.Metrics{}
	}
	elapsed := t.now().Sub(rec.StartedAt).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return models.Metrics{
		ActionFrequency:   float64(len(rec.Events)) / elapsed,
		ErrorRate:         ratio(rec.Counters.Errors, rec.Counters.TotalActions),
		TestCoverageProxy: ratio(rec.Counters.TestsWritten, rec.Counters.TotalActions),
		CommitFrequency:   ratio(rec.Counters.CommitsMade, rec.Counters.TotalActions),
	}
}

// Recommend returns the recommended next actions for the project's current
// stage.
func (t *Tracker) Recommend(project string) (string, []string) {
	t.mu.Lock()
	rec, ok := t.records[project]
	stage := models.StagePlanning
	if ok && rec.CurrentStage != "" {
		stage = rec.CurrentStage
	}
	t.mu.Unlock()
	return t.policy.Recommend(stage)
}

// IsStageComplete reports whether files satisfy the stage requirements.
func (t *Tracker) IsStageComplete(stage models.Stage, files []string) bool {
	return t.policy.IsStageComplete(stage, files)
}

// RecentEvents returns up to n of the most recent events, oldest first.
func (t *Tracker) RecentEvents(project string, n int) []models.ActionEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[project]
	if !ok || n <= 0 {
		return nil
	}
	events := rec.Events
	if len(events) > n {
		events = events[len(events)-n:]
	}
	return append([]models.ActionEvent(nil), events...)
}

// Record returns a copy of the project's record.
func (t *Tracker) Record(project string) (models.ProgressRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[project]
	if !ok {
		return models.ProgressRecord{}, false
	}
	return cloneRecord(rec), true
}

// Projects returns the names of all tracked projects.
func (t *Tracker) Projects() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	return names
}

func (t *Tracker) recordLocked(project string) *models.ProgressRecord {
	rec, ok := t.records[project]
	if !ok {
		rec = &models.ProgressRecord{
			Project:   project,
			StartedAt: t.now(),
		}
		t.records[project] = rec
	}
	return rec
}

func (t *Tracker) save(ctx context.Context, rec models.ProgressRecord) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.SaveProgress(ctx, rec); err != nil {
		return fmt.Errorf("save progress for %s: %w", rec.Project, err)
	}
	return nil
}

func isError(ev models.ActionEvent) bool {
	switch ev.Result.Status {
	case models.StatusError, models.StatusTimeout:
		return true
	case models.StatusFailed:
		return len(ev.Context.Errors) > 0
	default:
		return false
	}
}

func markCompleted(rec *models.ProgressRecord, stage models.Stage) {
	for _, s := range rec.StagesCompleted {
		if s == stage {
			return
		}
	}
	rec.StagesCompleted = append(rec.StagesCompleted, stage)
}

func ratio(n, total int) float64 {
	if total < 1 {
		total = 1
	}
	return float64(n) / float64(total)
}

func cloneRecord(rec *models.ProgressRecord) models.ProgressRecord {
	cp := *rec
	cp.StagesCompleted = append([]models.Stage(nil), rec.StagesCompleted...)
	cp.Events = append([]models.ActionEvent(nil), rec.Events...)
	cp.Challenges = append([]string(nil), rec.Challenges...)
	return cp
}
