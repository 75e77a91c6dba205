package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/nimbus/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsStageComplete(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name  string
		stage models.Stage
		files []string
		want  bool
	}{
		{"planning needs plan", models.StagePlanning, []string{"README.md"}, false},
		{"planning with plan", models.StagePlanning, []string{"research_and_plan.md"}, true},
		{"implementation needs both", models.StageImplementation, []string{"main.py"}, false},
		{"implementation complete", models.StageImplementation, []string{"README.md", "main.py"}, true},
		{"testing with test file", models.StageTesting, []string{"README.md", "main.py", "test_main.py"}, true},
		{"testing without test file", models.StageTesting, []string{"README.md", "main.py"}, false},
		{"review needs analysis", models.StageReview, []string{"main.py"}, false},
		{"review complete", models.StageReview, []string{"code_analysis.md"}, true},
		{"unknown stage", models.Stage("bogus"), []string{"main.py"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.IsStageComplete(tt.stage, tt.files))
		})
	}
}

func TestFirstIncomplete(t *testing.T) {
	cfg := Default()
	assert.Equal(t, models.StagePlanning, cfg.FirstIncomplete(nil))
	assert.Equal(t, models.StageImplementation, cfg.FirstIncomplete([]string{"research_and_plan.md"}))
	assert.Equal(t, models.StageReview, cfg.FirstIncomplete([]string{
		"research_and_plan.md", "main.py", "README.md", "test_main.py", "code_analysis.md",
	}))
}

func TestScore(t *testing.T) {
	cfg := Default()
	code := models.ActionDescriptor{Name: "generate_code", Category: models.CategoryCodeDevelopment}
	git := models.ActionDescriptor{Name: "commit_changes", Category: models.CategoryGit}
	start := models.ActionDescriptor{Name: "start_new_project", Category: models.CategoryProjectManagement}
	retro := models.ActionDescriptor{Name: "project_retrospective", Category: models.CategoryProjectManagement}

	assert.Equal(t, 10, cfg.Score(models.StateIdle, "", start))
	assert.Equal(t, 8, cfg.Score(models.StateInProgress, models.StagePlanning, code))
	assert.Equal(t, 6, cfg.Score(models.StateInProgress, models.StagePlanning, git))
	assert.Equal(t, DefaultScore, cfg.Score(models.StateInProgress, models.StageReview, retro))
	assert.Greater(t, cfg.Score(models.StateInProgress, models.StageTesting, code),
		cfg.Score(models.StateInProgress, models.StageTesting, git))
}

func TestPreferredFor(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"start_new_project", "continue_project"}, cfg.PreferredFor(models.StateIdle, models.StageReview))
	assert.Contains(t, cfg.PreferredFor(models.StateInProgress, models.StageTesting), "write_tests")
}

func TestRecommend(t *testing.T) {
	primary, alts := Default().Recommend(models.StageTesting)
	assert.Equal(t, "write_tests", primary)
	assert.Equal(t, []string{"run_code", "analyze_code"}, alts)

	primary, alts = Default().Recommend(models.Stage("bogus"))
	assert.Empty(t, primary)
	assert.Nil(t, alts)
}

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "policy.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default().Requirements, cfg.Requirements)
	})

	t.Run("overlay replaces keys", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "policy.yaml")
		data := []byte(`
requirements:
  testing: ["tests/*_test.py"]
scoring:
  - state: in_progress
    category: git
    score: 9
`)
		require.NoError(t, os.WriteFile(file, data, 0644))

		cfg, err := Load(file)
		require.NoError(t, err)
		assert.Equal(t, []string{"tests/*_test.py"}, cfg.Requirements[models.StageTesting])
		assert.Equal(t, []string{"research_and_plan.md"}, cfg.Requirements[models.StagePlanning])
		require.Len(t, cfg.Scoring, 1)
		assert.Equal(t, DefaultScore, cfg.DefaultScore)
	})

	t.Run("unknown stage is rejected", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(file, []byte("requirements:\n  deploy: [x]\n"), 0644))
		_, err := Load(file)
		assert.Error(t, err)
	})
}

func TestMarshalRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, cfg.Merge(data))
	assert.Equal(t, Default().Scoring, cfg.Scoring)
}
