package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/exec"
	"github.com/ShayCichocki/nimbus/internal/handlers"
	"github.com/ShayCichocki/nimbus/internal/metrics"
	"github.com/ShayCichocki/nimbus/internal/oracle"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
	"github.com/ShayCichocki/nimbus/internal/persist"
	"github.com/ShayCichocki/nimbus/internal/progress"
	"github.com/ShayCichocki/nimbus/internal/workspace"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type okRunner struct{}

func (okRunner) Run(context.Context, string, string, ...string) (exec.Output, error) {
	return exec.Output{Stdout: "OK\n"}, nil
}

func (okRunner) LookPath(string) bool { return true }

type harness struct {
	orch    *Orchestrator
	ws      *workspace.Memory
	store   *persist.FileStore
	tracker *progress.Tracker
	disp    *action.Dispatcher
	clock   *fakeClock
	metrics *metrics.Collectors
}

// unreadableStore fails every snapshot read.
type unreadableStore struct {
	*persist.FileStore
}

func (unreadableStore) LoadSnapshot(context.Context) (*models.Snapshot, error) {
	return nil, errors.New("permission denied")
}

func newHarness(t *testing.T, decider oracle.Decider, opts ...Option) *harness {
	t.Helper()
	return newHarnessWithStore(t, decider, nil, opts...)
}

// newHarnessWithStore builds a harness whose orchestrator and scheduler use
// wrap(fileStore) when wrap is non-nil.
func newHarnessWithStore(t *testing.T, decider oracle.Decider, wrap func(*persist.FileStore) persist.Store, opts ...Option) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	ws := workspace.NewMemory()
	m := metrics.New()

	reg := action.NewRegistry()
	require.NoError(t, handlers.New(handlers.Deps{Workspace: ws, Runner: okRunner{}, Now: clock.Now}).Register(reg))
	disp := action.NewDispatcher(reg, action.WithMetrics(m), action.WithClock(clock.Now))

	p := policy.Default()
	adapterOpts := []oracle.Option{oracle.WithDefaults(reg.Defaults), oracle.WithMetrics(m)}
	if decider != nil {
		adapterOpts = append(adapterOpts, oracle.WithDecider(decider))
	}
	store := persist.NewFileStore(filepath.Join(t.TempDir(), "snapshot.json"))
	var backing persist.Store = store
	if wrap != nil {
		backing = wrap(store)
	}
	tracker := progress.NewTracker(p, progress.WithMetrics(m), progress.WithClock(clock.Now))

	cfg := Config{
		Dispatcher: disp,
		Adapter:    oracle.NewAdapter(action.DefaultCatalog(), p, adapterOpts...),
		Tracker:    tracker,
		Scheduler:  persist.NewScheduler(backing, persist.WithClock(clock), persist.WithMetrics(m)),
		Store:      backing,
		Workspace:  ws,
	}
	all := append([]Option{
		WithPolicy(p),
		WithMetrics(m),
		WithClock(clock.Now),
		WithInterval(0),
		WithEventBuffer(1000),
	}, opts...)
	orch, err := New(cfg, all...)
	require.NoError(t, err)

	return &harness{orch: orch, ws: ws, store: store, tracker: tracker, disp: disp, clock: clock, metrics: m}
}

func (h *harness) exec(t *testing.T, name string, details map[string]any) models.ActionResult {
	t.Helper()
	desc, ok := action.DefaultCatalog().Lookup(name)
	require.True(t, ok, name)
	return h.orch.Execute(context.Background(), desc, details)
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_RejectsHandlersOutsideCatalog(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, reg.Register("not_catalogued", action.HandlerFunc(
		func(context.Context, action.Params) (models.ActionResult, error) { return models.Success(nil), nil })))
	store := persist.NewFileStore(filepath.Join(t.TempDir(), "s.json"))

	_, err := New(Config{
		Dispatcher: action.NewDispatcher(reg),
		Adapter:    oracle.NewAdapter(action.DefaultCatalog(), nil),
		Tracker:    progress.NewTracker(nil),
		Scheduler:  persist.NewScheduler(store),
		Store:      store,
		Workspace:  workspace.NewMemory(),
	})
	assert.ErrorIs(t, err, action.ErrUnknownAction)
}

func TestExecute_IdleRefusesNonEntryActions(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, "commit_changes", nil)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Warning, ErrStateViolation.Error())
	assert.Equal(t, models.StateIdle, h.orch.State())
	assert.Equal(t, 0, h.disp.Log().Len())

	events := drain(h.orch.Events())
	require.Len(t, events, 1)
	assert.Equal(t, EventWarning, events[0].Type)
}

func TestExecute_InProgressRefusesEntryActions(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, action.StartNewProject, map[string]any{"project_name": "demo"})
	require.True(t, res.Succeeded(), res.Payload)
	assert.Equal(t, models.StagePlanning, h.orch.Stage())

	for _, name := range []string{action.StartNewProject, action.ContinueProject} {
		res = h.exec(t, name, map[string]any{"project_name": "other"})
		assert.Equal(t, models.StatusFailed, res.Status)
		assert.Contains(t, res.Warning, "already in progress")
	}
	assert.Equal(t, "demo", h.orch.Project().Name)
	assert.Equal(t, models.StagePlanning, h.orch.Stage())
	assert.Equal(t, 1, h.disp.Log().Len())
	assert.False(t, h.ws.ProjectExists("other"))
}

func TestExecute_NoAdvanceWithoutSuccessAndArtifacts(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.exec(t, action.StartNewProject, map[string]any{"project_name": "demo"}).Succeeded())

	res := h.exec(t, "view_file_content", map[string]any{"file_name": "missing.md"})
	assert.False(t, res.Succeeded())
	assert.Equal(t, models.StagePlanning, h.orch.Stage())

	res = h.exec(t, "view_files", nil)
	assert.True(t, res.Succeeded())
	assert.Equal(t, models.StagePlanning, h.orch.Stage())

	res = h.exec(t, "create_file", map[string]any{"file_name": "research_and_plan.md", "content": "# plan"})
	require.True(t, res.Succeeded())
	assert.Equal(t, models.StageImplementation, h.orch.Stage())

	rec, ok := h.tracker.Record("demo")
	require.True(t, ok)
	assert.Equal(t, 1, rec.Counters.Errors)
	assert.Contains(t, rec.StagesCompleted, models.StagePlanning)
}

func TestExecute_InjectsProject(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.exec(t, action.StartNewProject, map[string]any{"project_name": "demo"}).Succeeded())

	res := h.exec(t, "create_file", map[string]any{
		"file_name":          "notes.txt",
		action.ProjectParam: "somewhere-else",
	})
	require.True(t, res.Succeeded())
	assert.True(t, h.ws.FileExists("demo", "notes.txt"))
}

func TestExecute_ContinueProjectResumesFirstIncompleteStage(t *testing.T) {
	h := newHarness(t, nil)
	h.ws.Seed("legacy", map[string]string{
		"research_and_plan.md": "# plan",
		"main.py":              "print('hi')\n",
		"README.md":            "# legacy",
	})

	res := h.exec(t, action.ContinueProject, map[string]any{"project_name": "legacy"})
	require.True(t, res.Succeeded(), res.Payload)
	assert.Equal(t, models.StateInProgress, h.orch.State())
	assert.Equal(t, models.StageTesting, h.orch.Stage())
}

func TestExecute_ExitProjectSavesAndGoesIdle(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.exec(t, action.StartNewProject, map[string]any{"project_name": "demo"}).Succeeded())
	drain(h.orch.Events())

	res := h.exec(t, action.ExitProject, nil)
	require.True(t, res.Succeeded())
	assert.Equal(t, models.StateIdle, h.orch.State())
	assert.Nil(t, h.orch.Project())

	snap, err := h.store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.NotEmpty(t, snap.RecentExperiences)

	assert.Contains(t, types(drain(h.orch.Events())), EventProjectExited)
}

func TestStep_FullLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	want := []struct {
		action string
		state  models.LoopState
		stage  models.Stage
	}{
		{action.StartNewProject, models.StateInProgress, models.StagePlanning},
		{"research_and_plan", models.StateInProgress, models.StageImplementation},
		{"implement_initial_prototype", models.StateInProgress, models.StageTesting},
		{"write_tests", models.StateInProgress, models.StageReview},
		{"analyze_code", models.StateIdle, ""},
	}

	var project string
	for i, w := range want {
		res, err := h.orch.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, w.action, res.Decision.Action, "step %d", i)
		assert.Equal(t, oracle.SourceFallback, res.Decision.Source)
		require.True(t, res.Result.Succeeded(), "step %d: %v", i, res.Result.Payload)
		assert.Equal(t, w.state, res.State, "step %d", i)
		assert.Equal(t, w.stage, res.Stage, "step %d", i)
		if i == 0 {
			project = res.Project
		}
	}

	require.NotEmpty(t, project)
	for _, f := range []string{"research_and_plan.md", "main.py", "README.md", "test_main.py", "code_analysis.md"} {
		assert.True(t, h.ws.FileExists(project, f), f)
	}

	rec, ok := h.tracker.Record(project)
	require.True(t, ok)
	assert.ElementsMatch(t, models.AllStages(), rec.StagesCompleted)
	assert.Equal(t, 5, rec.Counters.TotalActions)
	assert.Positive(t, rec.Counters.TestsWritten)

	evs := types(drain(h.orch.Events()))
	assert.Contains(t, evs, EventProjectStarted)
	assert.Contains(t, evs, EventStageAdvanced)
	assert.Contains(t, evs, EventProjectCompleted)
	assert.Contains(t, evs, EventSnapshotSaved)
	assert.NotContains(t, evs, EventOracleFallback)

	res, err := h.orch.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, action.StartNewProject, res.Decision.Action)
	assert.NotEqual(t, project, res.Project)
}

func TestStep_AlwaysFailingOracle(t *testing.T) {
	failing := oracle.DeciderFunc(func(context.Context, models.DecisionContext, []models.ActionDescriptor) (oracle.Decision, error) {
		return oracle.Decision{}, errors.New("service unavailable")
	})
	h := newHarness(t, failing)

	completed := 0
	for i := 0; i < 100; i++ {
		res, err := h.orch.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, oracle.SourceFallback, res.Decision.Source)
		for _, ev := range drain(h.orch.Events()) {
			if ev.Type == EventProjectCompleted {
				completed++
			}
		}
	}
	assert.Equal(t, 100, h.orch.Iterations())
	assert.Equal(t, 20, completed)
}

func TestStep_OracleSelectionIsExecuted(t *testing.T) {
	decider := oracle.DeciderFunc(func(_ context.Context, dc models.DecisionContext, _ []models.ActionDescriptor) (oracle.Decision, error) {
		if dc.State == models.StateIdle {
			return oracle.Decision{Action: action.StartNewProject, Details: map[string]any{"project_name": "chosen"}}, nil
		}
		return oracle.Decision{Action: "view_files"}, nil
	})
	h := newHarness(t, decider)

	res, err := h.orch.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, oracle.SourceOracle, res.Decision.Source)
	assert.Equal(t, "chosen", res.Project)

	res, err = h.orch.Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "view_files", res.Decision.Action)
	assert.Equal(t, models.StagePlanning, res.Stage)
}

func TestStep_PeriodicSave(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res, err := h.orch.Step(ctx)
	require.NoError(t, err)
	assert.False(t, res.Saved)

	h.clock.Advance(150 * time.Second)
	res, err = h.orch.Step(ctx)
	require.NoError(t, err)
	assert.True(t, res.Saved)

	snap, err := h.store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, h.clock.Now().UnixMilli(), snap.Timestamp)
}

func TestRun_MaxIterations(t *testing.T) {
	h := newHarness(t, nil, WithMaxIterations(3))

	require.NoError(t, h.orch.Run(context.Background()))
	assert.Equal(t, 3, h.orch.Iterations())

	snap, err := h.store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestRun_CancelledContextStillSaves(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.orch.Run(ctx))
	assert.Equal(t, 0, h.orch.Iterations())

	snap, err := h.store.LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestRun_StopSignal(t *testing.T) {
	stateDir := t.TempDir()
	ctrl := NewPauseController(nil)
	sw, err := NewSignalWatcher(stateDir, ctrl, nil)
	require.NoError(t, err)
	defer sw.Close()

	h := newHarness(t, nil, WithSignals(sw, ctrl))
	require.NoError(t, SendSignal(stateDir, SignalStop))

	done := make(chan error, 1)
	go func() { done <- h.orch.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop on signal")
	}
	assert.True(t, ctrl.IsStopped())
}

func TestSignalWatcher_ClearsStaleStop(t *testing.T) {
	stateDir := t.TempDir()
	require.NoError(t, SendSignal(stateDir, SignalStop))

	ctrl := NewPauseController(nil)
	sw, err := NewSignalWatcher(stateDir, ctrl, nil)
	require.NoError(t, err)
	defer sw.Close()
	assert.False(t, ctrl.IsStopped())

	require.NoError(t, SendSignal(stateDir, SignalPause))
	sw.Poll()
	assert.True(t, ctrl.IsPaused())

	require.NoError(t, ClearSignal(stateDir, SignalPause))
	sw.Poll()
	assert.False(t, ctrl.IsPaused())
}

func TestPauseController(t *testing.T) {
	p := NewPauseController(nil)
	require.NoError(t, p.WaitIfPaused(context.Background()))

	p.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitIfPaused(ctx), context.DeadlineExceeded)

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.Resume()
	}()
	require.NoError(t, p.WaitIfPaused(context.Background()))

	p.Stop()
	assert.ErrorIs(t, p.WaitIfPaused(context.Background()), ErrStopped)
}

func TestEventEmitter_DropsWhenFull(t *testing.T) {
	e := NewEventEmitter(1, nil)
	e.Emit(Event{Type: EventWarning})
	e.Emit(Event{Type: EventWarning})

	assert.Equal(t, uint64(1), e.DroppedCount())
	e.Close()
	e.Close()
	assert.Len(t, drain(e.Events()), 1)
}

func TestRun_UnreadableSnapshotStartsCold(t *testing.T) {
	h := newHarnessWithStore(t, nil, func(fs *persist.FileStore) persist.Store {
		return unreadableStore{FileStore: fs}
	}, WithMaxIterations(3))

	require.NoError(t, h.orch.Run(context.Background()))
	assert.Equal(t, 3, h.orch.Iterations())
	assert.FileExists(t, h.store.Path())
}

func TestExecute_AfterRunDoesNotPanic(t *testing.T) {
	h := newHarness(t, nil, WithMaxIterations(1))
	require.NoError(t, h.orch.Run(context.Background()))
	drain(h.orch.Events())

	var result models.ActionResult
	require.NotPanics(t, func() {
		result = h.exec(t, action.ExitProject, nil)
	})
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, models.StateIdle, h.orch.State())

	_, err := h.orch.Step(context.Background())
	assert.NoError(t, err)
}

func TestEventEmitter_EmitAfterCloseIsDiscarded(t *testing.T) {
	e := NewEventEmitter(4, nil)
	e.Close()
	assert.NotPanics(t, func() { e.Emit(Event{Type: EventWarning}) })
	assert.Empty(t, drain(e.Events()))
	assert.Zero(t, e.DroppedCount())
}
