package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/metrics"
	"github.com/ShayCichocki/nimbus/internal/oracle"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
	"github.com/ShayCichocki/nimbus/internal/persist"
	"github.com/ShayCichocki/nimbus/internal/progress"
	"github.com/ShayCichocki/nimbus/internal/workspace"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

// ErrStateViolation describes an action the lifecycle does not allow in
// the current state. It is reported through warning results.
var ErrStateViolation = errors.New("action not allowed in current state")

// ExperienceRecorder stores one experience per dispatched action.
type ExperienceRecorder interface {
	AddExperience(ctx context.Context, e models.Experience) error
}

// Orchestrator owns the lifecycle state and serialises every mutation of it.
type Orchestrator struct {
	mu sync.Mutex

	catalog    *action.Catalog
	policy     *policy.Config
	dispatcher *action.Dispatcher
	adapter    *oracle.Adapter
	tracker    *progress.Tracker
	scheduler  *persist.Scheduler
	store      persist.Store
	recorder   ExperienceRecorder
	workspace  workspace.Workspace

	emitter *EventEmitter
	signals *SignalWatcher
	pause   *PauseController
	logger  *zap.Logger
	metrics *metrics.Collectors
	now     func() time.Time

	interval          time.Duration
	maxIterations     int
	recentExperiences int

	state      models.LoopState
	project    *models.Project
	iterations int
}

// New creates an Orchestrator in the idle state.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	switch {
	case cfg.Dispatcher == nil:
		return nil, fmt.Errorf("orchestrator: dispatcher is required")
	case cfg.Adapter == nil:
		return nil, fmt.Errorf("orchestrator: oracle adapter is required")
	case cfg.Tracker == nil:
		return nil, fmt.Errorf("orchestrator: progress tracker is required")
	case cfg.Scheduler == nil:
		return nil, fmt.Errorf("orchestrator: persistence scheduler is required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("orchestrator: store is required")
	case cfg.Workspace == nil:
		return nil, fmt.Errorf("orchestrator: workspace is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Dispatcher.Registry().Validate(o.catalog); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	orch := &Orchestrator{
		catalog:           o.catalog,
		policy:            o.policy,
		dispatcher:        cfg.Dispatcher,
		adapter:           cfg.Adapter,
		tracker:           cfg.Tracker,
		scheduler:         cfg.Scheduler,
		store:             cfg.Store,
		workspace:         cfg.Workspace,
		emitter:           NewEventEmitter(o.eventBuffer, o.logger),
		signals:           o.signals,
		pause:             o.pause,
		logger:            o.logger,
		metrics:           o.metrics,
		now:               o.now,
		interval:          o.interval,
		maxIterations:     o.maxIterations,
		recentExperiences: o.recentExperiences,
		state:             models.StateIdle,
	}
	if r, ok := cfg.Store.(ExperienceRecorder); ok {
		orch.recorder = r
	}
	if orch.pause == nil {
		orch.pause = NewPauseController(o.logger)
	}
	return orch, nil
}

// Events returns the orchestrator's event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// DroppedEvents returns how many events were dropped because nobody read
// them in time.
func (o *Orchestrator) DroppedEvents() uint64 {
	return o.emitter.DroppedCount()
}

// State returns the loop state.
func (o *Orchestrator) State() models.LoopState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stage returns the active project's stage, or "" when idle.
func (o *Orchestrator) Stage() models.Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.project == nil {
		return ""
	}
	return o.project.Stage
}

// Project returns a copy of the active project, or nil when idle.
func (o *Orchestrator) Project() *models.Project {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.project.Clone()
}

// Iterations returns how many Step calls have run.
func (o *Orchestrator) Iterations() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.iterations
}

// Stop asks Run to finish after the in-flight iteration.
func (o *Orchestrator) Stop() {
	o.pause.Stop()
}

// Execute runs one action through the lifecycle guard, the dispatcher and
// the transition rules.
func (o *Orchestrator) Execute(ctx context.Context, desc models.ActionDescriptor, details map[string]any) models.ActionResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.execute(ctx, desc, details)
}

func isEntryAction(name string) bool {
	return name == action.StartNewProject || name == action.ContinueProject
}

func isLeaveAction(name string) bool {
	return name == action.ExitProject || name == action.ProjectRetrospective
}

func (o *Orchestrator) execute(ctx context.Context, desc models.ActionDescriptor, details map[string]any) models.ActionResult {
	switch {
	case o.state == models.StateIdle && !isEntryAction(desc.Name):
		return o.refuse(desc, fmt.Errorf("%w: no active project, start or continue a project before %s",
			ErrStateViolation, desc.Name))
	case o.state == models.StateInProgress && isEntryAction(desc.Name):
		return o.refuse(desc, fmt.Errorf("%w: project %s is already in progress",
			ErrStateViolation, o.project.Name))
	}

	params := make(map[string]any, len(details)+1)
	for k, v := range details {
		params[k] = v
	}
	if o.project != nil {
		params[action.ProjectParam] = o.project.Name
	}

	stageBefore := o.currentStage()
	projectBefore := o.projectName()
	result := o.dispatcher.Dispatch(ctx, desc, params)

	o.emitter.Emit(Event{
		Type:      EventActionDispatched,
		Project:   projectBefore,
		Action:    desc.Name,
		Stage:     stageBefore,
		Status:    result.Status,
		Message:   result.Warning,
		Timestamp: o.now(),
	})

	if result.Succeeded() {
		o.applyLifecycle(ctx, desc, result)
	}
	o.recordOutcome(ctx, desc, result, projectBefore, stageBefore)
	return result
}

func (o *Orchestrator) refuse(desc models.ActionDescriptor, err error) models.ActionResult {
	o.logger.Warn("action refused",
		zap.String("action", desc.Name),
		zap.String("state", string(o.state)),
		zap.Error(err))
	o.emitter.Emit(Event{
		Type:      EventWarning,
		Project:   o.projectName(),
		Action:    desc.Name,
		Stage:     o.currentStage(),
		Message:   err.Error(),
		Timestamp: o.now(),
	})
	return models.WarningResult(err.Error())
}

// applyLifecycle runs the state effects of a successful action.
func (o *Orchestrator) applyLifecycle(ctx context.Context, desc models.ActionDescriptor, result models.ActionResult) {
	switch {
	case desc.Name == action.StartNewProject:
		o.enterProject(result, false)
	case desc.Name == action.ContinueProject:
		o.enterProject(result, true)
	case isLeaveAction(desc.Name):
		o.leaveProject(ctx, EventProjectExited, "exited")
	default:
		o.advance(ctx)
	}
}

func (o *Orchestrator) enterProject(result models.ActionResult, resume bool) {
	name := result.String(action.PayloadProject)
	files, err := o.workspace.ListFiles(name)
	if err != nil {
		o.logger.Warn("list project files", zap.String("project", name), zap.Error(err))
	}

	stage := models.StagePlanning
	if resume {
		stage = o.policy.FirstIncomplete(files)
	}
	o.project = &models.Project{
		Name:        name,
		Description: result.String("description"),
		Root:        result.String("root"),
		Files:       files,
		Stage:       stage,
		StartedAt:   o.now(),
	}
	o.state = models.StateInProgress

	msg := "started project " + name
	if resume {
		msg = fmt.Sprintf("resumed project %s at %s", name, stage)
	}
	o.logger.Info("project entered",
		zap.String("project", name),
		zap.String("stage", string(stage)),
		zap.Bool("resumed", resume))
	o.emitter.Emit(Event{
		Type:      EventProjectStarted,
		Project:   name,
		Stage:     stage,
		Message:   msg,
		Timestamp: o.now(),
	})
}

// advance refreshes the file list and moves at most one stage forward.
func (o *Orchestrator) advance(ctx context.Context) {
	files, err := o.workspace.ListFiles(o.project.Name)
	if err != nil {
		o.logger.Warn("refresh project files", zap.String("project", o.project.Name), zap.Error(err))
		return
	}
	o.project.Files = files

	stage := o.project.Stage
	if !o.policy.IsStageComplete(stage, files) {
		return
	}

	next, ok := stage.Next()
	if !ok {
		o.leaveProject(ctx, EventProjectCompleted, "completed")
		return
	}

	o.project.Stage = next
	if o.metrics != nil {
		o.metrics.StageTransitionsTotal.WithLabelValues(string(stage), string(next)).Inc()
	}
	o.logger.Info("stage advanced",
		zap.String("project", o.project.Name),
		zap.String("from", string(stage)),
		zap.String("to", string(next)))
	o.emitter.Emit(Event{
		Type:      EventStageAdvanced,
		Project:   o.project.Name,
		Stage:     next,
		Message:   fmt.Sprintf("%s complete, moving to %s", stage, next),
		Timestamp: o.now(),
	})
}

// leaveProject forces a save, clears the project and returns to idle.
func (o *Orchestrator) leaveProject(ctx context.Context, ev EventType, outcome string) {
	name := o.project.Name
	if outcome == "completed" {
		if err := o.tracker.MarkStageComplete(ctx, name, models.StageReview); err != nil {
			o.logger.Warn("mark review complete", zap.String("project", name), zap.Error(err))
		}
	}
	if err := o.scheduler.Flush(ctx); err != nil {
		o.logger.Warn("save on project exit failed", zap.String("project", name), zap.Error(err))
	} else {
		o.emitSaved()
	}

	o.project = nil
	o.state = models.StateIdle
	if o.metrics != nil {
		o.metrics.ProjectsTotal.WithLabelValues(outcome).Inc()
	}
	o.logger.Info("project "+outcome, zap.String("project", name))
	o.emitter.Emit(Event{
		Type:      ev,
		Project:   name,
		Message:   fmt.Sprintf("project %s %s", name, outcome),
		Timestamp: o.now(),
	})
}

// recordOutcome feeds the progress tracker and the experience store.
func (o *Orchestrator) recordOutcome(ctx context.Context, desc models.ActionDescriptor, result models.ActionResult, projectBefore string, stageBefore models.Stage) {
	name, stage := projectBefore, stageBefore
	if o.project != nil {
		name, stage = o.project.Name, o.project.Stage
	}

	if name != "" {
		ev := models.ActionEvent{
			Action:    desc.Name,
			Result:    result,
			Timestamp: o.now(),
			Context: models.EventContext{
				ProjectState:  o.state,
				Stage:         stage,
				FilesAffected: stringsOf(result.Payload[action.PayloadFilesAffected]),
				TestsWritten:  result.Int(action.PayloadTestsWritten),
				CommitMade:    result.Payload[action.PayloadCommitMade] == true,
			},
		}
		if !result.Succeeded() {
			if msg := failureMessage(result); msg != "" {
				ev.Context.Errors = []string{msg}
			}
		}
		if err := o.tracker.RecordAction(ctx, name, ev); err != nil {
			o.logger.Warn("record progress", zap.String("project", name), zap.Error(err))
		}
	}

	if o.recorder != nil {
		exp := models.Experience{
			Scenario:      scenario(o.state, stageBefore, projectBefore),
			Action:        desc.Name,
			Outcome:       string(result.Status),
			LessonLearned: failureMessage(result),
			Timestamp:     o.now(),
		}
		if err := o.recorder.AddExperience(ctx, exp); err != nil {
			o.logger.Warn("record experience", zap.String("action", desc.Name), zap.Error(err))
		}
	}
}

func (o *Orchestrator) emitSaved() {
	o.emitter.Emit(Event{
		Type:      EventSnapshotSaved,
		Project:   o.projectName(),
		Timestamp: o.now(),
	})
}

func (o *Orchestrator) currentStage() models.Stage {
	if o.project == nil {
		return ""
	}
	return o.project.Stage
}

func (o *Orchestrator) projectName() string {
	if o.project == nil {
		return ""
	}
	return o.project.Name
}

func scenario(state models.LoopState, stage models.Stage, project string) string {
	if project == "" {
		return string(state)
	}
	return fmt.Sprintf("%s:%s", project, stage)
}

func failureMessage(r models.ActionResult) string {
	if r.Warning != "" {
		return r.Warning
	}
	for _, key := range []string{"message", "reason"} {
		if s := r.String(key); s != "" {
			return s
		}
	}
	return ""
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}
