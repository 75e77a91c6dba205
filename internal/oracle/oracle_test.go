package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/orchestrator/policy"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

func inProgress(stage models.Stage, versioned bool) models.DecisionContext {
	return models.DecisionContext{
		State:       models.StateInProgress,
		Stage:       stage,
		Project:     "demo",
		IsVersioned: versioned,
	}
}

func names(descs []models.ActionDescriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return out
}

func failing(err error) Decider {
	return DeciderFunc(func(context.Context, models.DecisionContext, []models.ActionDescriptor) (Decision, error) {
		return Decision{}, err
	})
}

func TestAdapter_Candidates(t *testing.T) {
	a := NewAdapter(action.DefaultCatalog(), policy.Default())

	idle := a.Candidates(models.DecisionContext{State: models.StateIdle})
	assert.Equal(t, []string{"start_new_project", "continue_project"}, names(idle))

	versioned := names(a.Candidates(inProgress(models.StagePlanning, true)))
	assert.Contains(t, versioned, "commit_changes")

	plain := names(a.Candidates(inProgress(models.StagePlanning, false)))
	assert.NotContains(t, plain, "commit_changes")
	assert.Equal(t, []string{"research_and_plan", "view_files", "create_file"}, plain)
}

func TestAdapter_OracleSelection(t *testing.T) {
	var offered []string
	d := DeciderFunc(func(_ context.Context, dc models.DecisionContext, c []models.ActionDescriptor) (Decision, error) {
		offered = names(dc.Candidates)
		return Decision{Action: "run_code", Details: map[string]any{"file": "main.py"}}, nil
	})
	a := NewAdapter(action.DefaultCatalog(), policy.Default(), WithDecider(d))

	got := a.Decide(context.Background(), inProgress(models.StageTesting, true))
	assert.Equal(t, SourceOracle, got.Source)
	assert.Equal(t, "run_code", got.Action)
	assert.Equal(t, "main.py", got.Details["file"])
	assert.Contains(t, offered, "write_tests")
}

func TestAdapter_InvalidSelectionFallsBack(t *testing.T) {
	d := DeciderFunc(func(context.Context, models.DecisionContext, []models.ActionDescriptor) (Decision, error) {
		return Decision{Action: "delete_file"}, nil
	})
	core, logs := observer.New(zap.WarnLevel)
	a := NewAdapter(action.DefaultCatalog(), policy.Default(), WithDecider(d), WithLogger(zap.New(core)))

	got := a.Decide(context.Background(), inProgress(models.StageImplementation, false))
	assert.Equal(t, SourceFallback, got.Source)
	assert.Equal(t, "implement_initial_prototype", got.Action)
	assert.Contains(t, got.Reason, ErrInvalidSelection.Error())
	assert.Equal(t, 1, logs.FilterMessage("decision oracle failed, using fallback").Len())
}

func TestAdapter_AlwaysFailingOracle(t *testing.T) {
	a := NewAdapter(action.DefaultCatalog(), policy.Default(), WithDecider(failing(errors.New("boom"))))

	stages := models.AllStages()
	for i := 0; i < 100; i++ {
		dc := inProgress(stages[i%len(stages)], i%2 == 0)
		candidates := names(a.Candidates(dc))

		got := a.Decide(context.Background(), dc)
		require.Equal(t, SourceFallback, got.Source)
		require.Contains(t, candidates, got.Action, "iteration %d", i)
	}
}

func TestAdapter_FallbackRanking(t *testing.T) {
	a := NewAdapter(action.DefaultCatalog(), policy.Default())

	tests := []struct {
		name string
		dc   models.DecisionContext
		want string
	}{
		{"idle", models.DecisionContext{State: models.StateIdle}, "start_new_project"},
		{"planning", inProgress(models.StagePlanning, true), "research_and_plan"},
		{"implementation beats git", inProgress(models.StageImplementation, true), "implement_initial_prototype"},
		{"testing", inProgress(models.StageTesting, true), "write_tests"},
		{"review", inProgress(models.StageReview, true), "analyze_code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Decide(context.Background(), tt.dc)
			assert.Equal(t, SourceFallback, got.Source)
			assert.Equal(t, tt.want, got.Action)
			assert.Contains(t, got.Reason, ErrNoDecider.Error())
		})
	}
}

func TestAdapter_TimeoutFallsBack(t *testing.T) {
	slow := DeciderFunc(func(ctx context.Context, _ models.DecisionContext, _ []models.ActionDescriptor) (Decision, error) {
		<-ctx.Done()
		return Decision{}, ctx.Err()
	})
	a := NewAdapter(action.DefaultCatalog(), policy.Default(),
		WithDecider(slow), WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := a.Decide(context.Background(), inProgress(models.StageReview, false))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, SourceFallback, got.Source)
	assert.Equal(t, "analyze_code", got.Action)
	assert.Contains(t, got.Reason, "timed out")
}

func TestAdapter_EmptyCandidates(t *testing.T) {
	p := policy.Default()
	p.Preferred[string(models.StagePlanning)] = []string{"not_in_catalog"}
	a := NewAdapter(action.DefaultCatalog(), p, WithDecider(failing(errors.New("unused"))))

	got := a.Decide(context.Background(), inProgress(models.StagePlanning, true))
	assert.Equal(t, SourceDefault, got.Source)
	assert.Equal(t, action.Continue, got.Action)
}

func TestAdapter_FallbackDetails(t *testing.T) {
	a := NewAdapter(action.DefaultCatalog(), policy.Default(), WithDefaults(func(name string) map[string]any {
		if name == "write_tests" {
			return map[string]any{"file": "main.py"}
		}
		return nil
	}))

	got := a.Decide(context.Background(), inProgress(models.StageTesting, false))
	assert.Equal(t, "write_tests", got.Action)
	assert.Equal(t, map[string]any{"file": "main.py"}, got.Details)
}

func TestParseText(t *testing.T) {
	d, err := ParseText("I pick this one:\n{\"name\": \"write_tests\", \"details\": {\"file\": \"main.py\"}}\nthanks")
	require.NoError(t, err)
	assert.Equal(t, "write_tests", d.Action)
	assert.Equal(t, "main.py", d.Details["file"])

	d, err = ParseText(`{"action": "run_code"}`)
	require.NoError(t, err)
	assert.Equal(t, "run_code", d.Action)
	assert.NotNil(t, d.Details)

	_, err = ParseText("no json here")
	assert.ErrorIs(t, err, ErrInvalidSelection)

	_, err = ParseText(`{"details": {}}`)
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestBuildPrompt(t *testing.T) {
	dc := inProgress(models.StageTesting, true)
	dc.Files = []string{"README.md", "main.py"}
	dc.Recommendation = []string{"write_tests", "run_code"}
	dc.RecentExperiences = []models.Experience{{Scenario: "testing", Action: "run_code", Outcome: "success"}}
	dc.LongTermMemory = map[string]any{"language": "python"}
	candidates := action.DefaultCatalog().Select([]string{"write_tests", "run_code"})

	prompt := BuildPrompt(dc, candidates)
	for _, want := range []string{
		"stage: testing",
		"project: demo",
		"files: README.md, main.py",
		"- testing: run_code -> success",
		"- language: python",
		"- write_tests [code_development]",
	} {
		assert.Contains(t, prompt, want)
	}
}

func TestSelectActionDefinition(t *testing.T) {
	tool := selectActionDefinition(action.DefaultCatalog().Select([]string{"run_code", "write_tests"}))
	require.NotNil(t, tool.OfTool)
	assert.Equal(t, selectActionTool, tool.OfTool.Name)

	raw, err := json.Marshal(tool)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"enum":["write_tests","run_code"]`)
}

func TestTranslateModelForBedrock(t *testing.T) {
	assert.Equal(t, anthropic.Model("us.anthropic.claude-sonnet-4-5-20250929-v1:0"),
		translateModelForBedrock(anthropic.ModelClaudeSonnet4_5_20250929))
	assert.Equal(t, anthropic.Model("custom-model"), translateModelForBedrock("custom-model"))
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(1_000_000, 0)
	tr.Add(0, 1_000_000)

	in, out := tr.Total()
	assert.Equal(t, int64(1_000_000), in)
	assert.Equal(t, int64(1_000_000), out)
	assert.Equal(t, 2, tr.Calls())
	assert.InDelta(t, 18.0, tr.Cost(), 0.0001)

	tr.Reset()
	assert.Equal(t, 0, tr.Calls())
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)

	c, err := NewClient(ClientConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, anthropic.ModelClaudeSonnet4_5_20250929, c.Model())
}
