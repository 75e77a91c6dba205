package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/config"
	"github.com/ShayCichocki/nimbus/internal/exec"
	"github.com/ShayCichocki/nimbus/internal/handlers"
	"github.com/ShayCichocki/nimbus/internal/metrics"
	"github.com/ShayCichocki/nimbus/internal/oracle"
	"github.com/ShayCichocki/nimbus/internal/orchestrator"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
	"github.com/ShayCichocki/nimbus/internal/persist"
	"github.com/ShayCichocki/nimbus/internal/progress"
	"github.com/ShayCichocki/nimbus/internal/state"
	"github.com/ShayCichocki/nimbus/internal/workspace"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

// appOptions are command-line overrides applied on top of the config.
type appOptions struct {
	noOracle bool
}

// app holds the wired components of one nimbus process.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	orch    *orchestrator.Orchestrator
	db      *state.DB
	decider *oracle.ClaudeDecider
	signals *orchestrator.SignalWatcher
	metrics *metrics.Collectors
}

// newApp wires storage, handlers, the oracle and the orchestrator from cfg.
func newApp(cfg *config.Config, logger *zap.Logger, opts appOptions) (*app, error) {
	pol, err := policy.Load(cfg.PolicyPath())
	if err != nil {
		return nil, err
	}

	ws, err := workspace.NewFS(cfg.Workspace.ProjectsDir)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	var (
		store     persist.Store
		logSink   action.LogSink
		progStore progress.Store
	)
	switch cfg.Persistence.Backend {
	case config.BackendFile:
		store = persist.NewFileStore(cfg.SnapshotPath())
	default:
		db, err := state.OpenWithDriver(cfg.Persistence.Driver, state.DBPath(cfg.Workspace.StateDir))
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		a.db = db
		store, logSink, progStore = db, db, db
	}

	reg := action.NewRegistry()
	set := handlers.New(handlers.Deps{
		Workspace:   ws,
		Runner:      exec.NewRunner(cfg.Workspace.CommandTimeout),
		Logger:      logger.Named("handlers"),
		Interpreter: cfg.Workspace.Interpreter,
		InitGit:     cfg.Workspace.InitGit,
	})
	if err := set.Register(reg); err != nil {
		a.Close()
		return nil, fmt.Errorf("register handlers: %w", err)
	}

	dispatcher := action.NewDispatcher(reg,
		action.WithLog(action.NewLog(logSink, logger)),
		action.WithLogger(logger.Named("dispatch")),
		action.WithMetrics(a.metrics),
	)
	tracker := progress.NewTracker(pol,
		progress.WithStore(progStore),
		progress.WithMetrics(a.metrics),
	)
	scheduler := persist.NewScheduler(store,
		persist.WithInterval(cfg.Persistence.SaveInterval),
		persist.WithRecentExperiences(cfg.Persistence.RecentExperiences),
		persist.WithLogger(logger.Named("persist")),
		persist.WithMetrics(a.metrics),
		persist.WithAfterSave(func(models.Snapshot) {
			if err := a.metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				logger.Warn("metrics export failed", zap.Error(err))
			}
		}),
	)

	adapterOpts := []oracle.Option{
		oracle.WithTimeout(cfg.Oracle.Timeout),
		oracle.WithDefaults(reg.Defaults),
		oracle.WithLogger(logger.Named("oracle")),
		oracle.WithMetrics(a.metrics),
	}
	if cfg.Oracle.Enabled && !opts.noOracle {
		if d, err := newDecider(cfg, logger); err != nil {
			logger.Warn("decision oracle unavailable, using scoring fallback", zap.Error(err))
		} else {
			a.decider = d
			adapterOpts = append(adapterOpts, oracle.WithDecider(d))
		}
	}
	adapter := oracle.NewAdapter(action.DefaultCatalog(), pol, adapterOpts...)

	ctrl := orchestrator.NewPauseController(logger)
	sw, err := orchestrator.NewSignalWatcher(cfg.Workspace.StateDir, ctrl, logger.Named("signals"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("watch signals: %w", err)
	}
	a.signals = sw

	orch, err := orchestrator.New(orchestrator.Config{
		Dispatcher: dispatcher,
		Adapter:    adapter,
		Tracker:    tracker,
		Scheduler:  scheduler,
		Store:      store,
		Workspace:  ws,
	},
		orchestrator.WithPolicy(pol),
		orchestrator.WithLogger(logger.Named("orchestrator")),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithSignals(sw, ctrl),
		orchestrator.WithInterval(cfg.Loop.Interval),
		orchestrator.WithMaxIterations(cfg.Loop.MaxIterations),
		orchestrator.WithRecentExperiences(cfg.Persistence.RecentExperiences),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch = orch
	return a, nil
}

func newDecider(cfg *config.Config, logger *zap.Logger) (*oracle.ClaudeDecider, error) {
	clientCfg := oracle.ClientConfig{
		Model:         anthropic.Model(cfg.Oracle.Model),
		UseAWSBedrock: cfg.Oracle.UseBedrock,
		AWSRegion:     cfg.Oracle.AWSRegion,
		AWSProfile:    cfg.Oracle.AWSProfile,
	}
	if !cfg.Oracle.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		clientCfg.APIKey = key
	}
	client, err := oracle.NewClient(clientCfg)
	if err != nil {
		return nil, err
	}
	return oracle.NewClaudeDecider(client,
		oracle.WithRateLimit(cfg.Oracle.RateLimit, cfg.Oracle.Burst),
		oracle.WithMaxTokens(cfg.Oracle.MaxTokens),
		oracle.WithClaudeLogger(logger.Named("claude")),
	), nil
}

// Close releases the signal watcher and the database.
func (a *app) Close() error {
	var errs []error
	if a.signals != nil {
		a.signals.Close()
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// startSession records a run session when the sqlite backend is in use.
func (a *app) startSession(ctx context.Context, id string, now time.Time) *state.Session {
	if a.db == nil {
		return nil
	}
	s := &state.Session{ID: id, StartedAt: now, Status: state.SessionActive}
	if err := a.db.CreateSession(ctx, s); err != nil {
		a.logger.Warn("create session", zap.Error(err))
		return nil
	}
	return s
}

func (a *app) finishSession(ctx context.Context, s *state.Session, status state.SessionStatus, now time.Time) {
	if s == nil {
		return
	}
	s.EndedAt = &now
	s.Iterations = a.orch.Iterations()
	s.Status = status
	if err := a.db.UpdateSession(ctx, s); err != nil {
		a.logger.Warn("update session", zap.Error(err))
	}
}
