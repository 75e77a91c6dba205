package orchestrator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/nimbus/internal/oracle"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

// pollInterval bounds how long a paused loop waits between signal polls.
const pollInterval = time.Second

// StepResult describes one loop iteration.
type StepResult struct {
	Iteration int
	Decision  oracle.Decision
	Result    models.ActionResult
	State     models.LoopState
	Stage     models.Stage
	Project   string
	Saved     bool
}

// Step runs one iteration: build the decision context, ask the oracle,
// execute the action, then let the scheduler save if due. Failures inside
// the iteration are logged and absorbed.
func (o *Orchestrator) Step(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.iterations++
	dc := o.decisionContext(ctx)
	decision := o.adapter.Decide(ctx, dc)
	if decision.Source == oracle.SourceFallback && o.adapter.HasDecider() {
		o.emitter.Emit(Event{
			Type:      EventOracleFallback,
			Project:   dc.Project,
			Action:    decision.Action,
			Stage:     dc.Stage,
			Message:   decision.Reason,
			Timestamp: o.now(),
		})
	}

	desc, ok := o.catalog.Lookup(decision.Action)
	if !ok {
		desc = models.ActionDescriptor{Name: decision.Action, Category: models.CategoryDefault}
	}

	o.logger.Debug("iteration",
		zap.Int("iteration", o.iterations),
		zap.String("state", string(dc.State)),
		zap.String("stage", string(dc.Stage)),
		zap.String("action", desc.Name),
		zap.String("source", string(decision.Source)))

	result := o.execute(ctx, desc, decision.Details)

	saved, err := o.scheduler.Tick(ctx)
	if err != nil {
		o.logger.Warn("periodic save failed, will retry", zap.Error(err))
	}
	if saved {
		o.emitSaved()
	}

	return StepResult{
		Iteration: o.iterations,
		Decision:  decision,
		Result:    result,
		State:     o.state,
		Stage:     o.currentStage(),
		Project:   o.projectName(),
		Saved:     saved,
	}, nil
}

// decisionContext gathers the inputs for one decision. Store failures
// leave the corresponding fields empty.
func (o *Orchestrator) decisionContext(ctx context.Context) models.DecisionContext {
	dc := models.DecisionContext{State: o.state}

	if o.recentExperiences > 0 {
		exps, err := o.store.RecentExperiences(ctx, o.recentExperiences)
		if err != nil {
			o.logger.Warn("load recent experiences", zap.Error(err))
		}
		dc.RecentExperiences = exps
	}
	mem, err := o.store.LongTermMemory(ctx)
	if err != nil {
		o.logger.Warn("load long-term memory", zap.Error(err))
	}
	dc.LongTermMemory = mem

	if o.project != nil {
		name := o.project.Name
		if files, err := o.workspace.ListFiles(name); err == nil {
			o.project.Files = files
		} else {
			o.logger.Warn("refresh project files", zap.String("project", name), zap.Error(err))
		}
		dc.Stage = o.project.Stage
		dc.Project = name
		dc.Files = o.project.Files
		dc.IsVersioned = o.workspace.IsVersioned(name)
		dc.Metrics = o.tracker.Metrics(name)
		primary, alternatives := o.policy.Recommend(o.project.Stage)
		if primary != "" {
			dc.Recommendation = append([]string{primary}, alternatives...)
		}
	}
	return models.NewDecisionContext(dc)
}

// Run loads the latest snapshot, continuing cold if that fails, and
// iterates until ctx is cancelled, the iteration limit is reached or a stop
// signal arrives. The in-flight iteration always completes and a final save
// is forced before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.emitter.Close()
	if _, err := o.scheduler.Load(ctx); err != nil {
		o.logger.Warn("snapshot restore failed, continuing", zap.Error(err))
	}

	work := context.WithoutCancel(ctx)
	for {
		if o.shouldStop(ctx) {
			break
		}
		if err := o.waitWhilePaused(ctx); err != nil {
			break
		}

		if _, err := o.Step(work); err != nil {
			o.logger.Warn("iteration failed", zap.Error(err))
		}

		if o.shouldStop(ctx) {
			break
		}
		if o.interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.interval):
			}
		}
	}

	o.logger.Info("loop stopping", zap.Int("iterations", o.Iterations()))
	if err := o.scheduler.Flush(work); err != nil {
		o.logger.Error("final save failed", zap.Error(err))
		return err
	}
	o.mu.Lock()
	o.emitSaved()
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if o.maxIterations > 0 && o.Iterations() >= o.maxIterations {
		return true
	}
	if o.signals != nil {
		o.signals.Poll()
	}
	return o.pause.IsStopped()
}

// waitWhilePaused blocks while paused, re-polling the signal files so a
// removed pause file resumes the loop even without fsnotify events.
func (o *Orchestrator) waitWhilePaused(ctx context.Context) error {
	for {
		wctx, cancel := context.WithTimeout(ctx, pollInterval)
		err := o.pause.WaitIfPaused(wctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			if o.signals != nil {
				o.signals.Poll()
			}
			continue
		}
		return err
	}
}
