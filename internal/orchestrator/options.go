package orchestrator

import (
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/metrics"
	"github.com/ShayCichocki/nimbus/internal/oracle"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
	"github.com/ShayCichocki/nimbus/internal/persist"
	"github.com/ShayCichocki/nimbus/internal/progress"
	"github.com/ShayCichocki/nimbus/internal/workspace"
)

// Config contains the collaborators an Orchestrator cannot run without.
// All fields are required.
type Config struct {
	Dispatcher *action.Dispatcher
	Adapter    *oracle.Adapter
	Tracker    *progress.Tracker
	Scheduler  *persist.Scheduler
	// Store supplies long-term memory and recent experiences for decision
	// contexts. If it also implements ExperienceRecorder every dispatched
	// action is recorded as an experience.
	Store     persist.Store
	Workspace workspace.Workspace
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	catalog           *action.Catalog
	policy            *policy.Config
	logger            *zap.Logger
	metrics           *metrics.Collectors
	signals           *SignalWatcher
	pause             *PauseController
	interval          time.Duration
	maxIterations     int
	recentExperiences int
	eventBuffer       int
	now               func() time.Time
}

func defaultOptions() *orchestratorOptions {
	return &orchestratorOptions{
		catalog:           action.DefaultCatalog(),
		policy:            policy.Default(),
		logger:            zap.NewNop(),
		interval:          time.Second,
		recentExperiences: persist.DefaultRecentExperiences,
		eventBuffer:       100,
		now:               time.Now,
	}
}

// WithCatalog sets the action catalog.
func WithCatalog(c *action.Catalog) Option {
	return func(o *orchestratorOptions) { o.catalog = c }
}

// WithPolicy sets the stage tables.
func WithPolicy(p *policy.Config) Option {
	return func(o *orchestratorOptions) { o.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithMetrics sets the collectors updated on transitions.
func WithMetrics(m *metrics.Collectors) Option {
	return func(o *orchestratorOptions) { o.metrics = m }
}

// WithSignals sets the stop/pause signal watcher and its controller.
func WithSignals(sw *SignalWatcher, ctrl *PauseController) Option {
	return func(o *orchestratorOptions) {
		o.signals = sw
		o.pause = ctrl
	}
}

// WithInterval sets the pause between loop iterations.
func WithInterval(d time.Duration) Option {
	return func(o *orchestratorOptions) {
		if d >= 0 {
			o.interval = d
		}
	}
}

// WithMaxIterations stops Run after n iterations. Zero means unlimited.
func WithMaxIterations(n int) Option {
	return func(o *orchestratorOptions) { o.maxIterations = n }
}

// WithRecentExperiences sets how many experiences go into each decision
// context.
func WithRecentExperiences(n int) Option {
	return func(o *orchestratorOptions) { o.recentExperiences = n }
}

// WithEventBuffer sets the event channel capacity.
func WithEventBuffer(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.eventBuffer = n
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorOptions) { o.now = now }
}
