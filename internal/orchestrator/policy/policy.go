// Package policy holds the stage and action tables that drive the lifecycle:
// which files complete a stage, which actions each stage prefers, the
// recommendation order, and the deterministic scoring rules used when the
// decision oracle is unavailable. Defaults can be overridden from YAML.
package policy

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/ShayCichocki/nimbus/pkg/models"
	"go.yaml.in/yaml/v3"
)

// IdleKey is the preferred-actions key used when no project is active.
const IdleKey = "idle"

// DefaultScore is the score of an action no rule matches.
const DefaultScore = 5

// Config contains the stage and action policy tables.
type Config struct {
	// Requirements lists, per stage, the files that must exist for the stage
	// to be complete. Entries containing glob metacharacters match when at
	// least one file matches the pattern.
	Requirements map[models.Stage][]string `yaml:"requirements"`

	// Preferred lists the candidate action names per stage, plus IdleKey.
	Preferred map[string][]string `yaml:"preferred"`

	// Recommendations is the ordered recommendation table per stage.
	Recommendations map[models.Stage][]string `yaml:"recommendations"`

	// Scoring rules, evaluated in order; the first match wins.
	Scoring []ScoreRule `yaml:"scoring"`

	// DefaultScore applies when no rule matches.
	DefaultScore int `yaml:"default_score"`
}

// ScoreRule assigns a score to actions matching its non-empty fields.
type ScoreRule struct {
	State    models.LoopState `yaml:"state"`
	Stage    models.Stage     `yaml:"stage,omitempty"`
	Category models.Category  `yaml:"category,omitempty"`
	Action   string           `yaml:"action,omitempty"`
	Score    int              `yaml:"score"`
}

// Matches reports whether the rule applies to desc in the given state and stage.
func (r ScoreRule) Matches(state models.LoopState, stage models.Stage, desc models.ActionDescriptor) bool {
	if r.State != "" && r.State != state {
		return false
	}
	if r.Stage != "" && r.Stage != stage {
		return false
	}
	if r.Category != "" && r.Category != desc.Category {
		return false
	}
	if r.Action != "" && r.Action != desc.Name {
		return false
	}
	return true
}

// Default returns the default policy configuration.
func Default() *Config {
	return &Config{
		Requirements: map[models.Stage][]string{
			models.StagePlanning:       {"research_and_plan.md"},
			models.StageImplementation: {"main.py", "README.md"},
			models.StageTesting:        {"test_*"},
			models.StageReview:         {"code_analysis.md"},
		},
		Preferred: map[string][]string{
			IdleKey:                            {"start_new_project", "continue_project"},
			string(models.StagePlanning):       {"research_and_plan", "create_file", "view_files", "commit_changes"},
			string(models.StageImplementation): {"implement_initial_prototype", "generate_code", "edit_file", "create_file", "commit_changes"},
			string(models.StageTesting):        {"write_tests", "run_code", "run_unit_tests", "analyze_code", "commit_changes"},
			string(models.StageReview):         {"analyze_code", "project_retrospective", "commit_changes", "exit_project"},
		},
		Recommendations: map[models.Stage][]string{
			models.StagePlanning:       {"research_and_plan", "create_file"},
			models.StageImplementation: {"implement_initial_prototype", "generate_code", "edit_file"},
			models.StageTesting:        {"write_tests", "run_code", "analyze_code"},
			models.StageReview:         {"analyze_code", "project_retrospective"},
		},
		Scoring: []ScoreRule{
			{State: models.StateIdle, Action: "start_new_project", Score: 10},
			{State: models.StateIdle, Action: "continue_project", Score: 10},
			{State: models.StateInProgress, Stage: models.StageReview, Category: models.CategoryTesting, Score: 9},
			{State: models.StateInProgress, Stage: models.StageReview, Action: "analyze_code", Score: 8},
			{State: models.StateInProgress, Category: models.CategoryCodeDevelopment, Score: 8},
			{State: models.StateInProgress, Category: models.CategoryFileManagement, Score: 7},
			{State: models.StateInProgress, Category: models.CategoryGit, Score: 6},
		},
		DefaultScore: DefaultScore,
	}
}

// Validate checks the tables for unknown stages and states, and fills
// zero values with defaults.
func (c *Config) Validate() error {
	for st := range c.Requirements {
		if !st.Valid() {
			return fmt.Errorf("requirements: unknown stage %q", st)
		}
	}
	for key := range c.Preferred {
		if key != IdleKey && !models.Stage(key).Valid() {
			return fmt.Errorf("preferred: unknown stage %q", key)
		}
	}
	for st := range c.Recommendations {
		if !st.Valid() {
			return fmt.Errorf("recommendations: unknown stage %q", st)
		}
	}
	for i, r := range c.Scoring {
		if r.State != "" && !r.State.Valid() {
			return fmt.Errorf("scoring rule %d: unknown state %q", i, r.State)
		}
		if r.Stage != "" && !r.Stage.Valid() {
			return fmt.Errorf("scoring rule %d: unknown stage %q", i, r.Stage)
		}
	}
	for _, pattern := range c.allPatterns() {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("requirements: bad pattern %q: %w", pattern, err)
		}
	}
	if c.DefaultScore == 0 {
		c.DefaultScore = DefaultScore
	}
	return nil
}

func (c *Config) allPatterns() []string {
	var out []string
	for _, reqs := range c.Requirements {
		out = append(out, reqs...)
	}
	return out
}

// PreferredFor returns the preferred action names for a state and stage.
func (c *Config) PreferredFor(state models.LoopState, stage models.Stage) []string {
	if state == models.StateIdle {
		return c.Preferred[IdleKey]
	}
	return c.Preferred[string(stage)]
}

// Score returns the score of desc under the first matching rule.
func (c *Config) Score(state models.LoopState, stage models.Stage, desc models.ActionDescriptor) int {
	for _, r := range c.Scoring {
		if r.Matches(state, stage, desc) {
			return r.Score
		}
	}
	return c.DefaultScore
}

// Recommend returns the primary recommendation and alternatives for a stage.
func (c *Config) Recommend(stage models.Stage) (string, []string) {
	recs := c.Recommendations[stage]
	if len(recs) == 0 {
		return "", nil
	}
	return recs[0], append([]string(nil), recs[1:]...)
}

// IsStageComplete reports whether every requirement of stage is satisfied
// by files. Stages without requirements are never complete.
func (c *Config) IsStageComplete(stage models.Stage, files []string) bool {
	reqs := c.Requirements[stage]
	if len(reqs) == 0 {
		return false
	}
	for _, req := range reqs {
		if !satisfies(req, files) {
			return false
		}
	}
	return true
}

// FirstIncomplete returns the first stage whose requirements are not met,
// or StageReview when all stages are complete.
func (c *Config) FirstIncomplete(files []string) models.Stage {
	for _, st := range models.AllStages() {
		if !c.IsStageComplete(st, files) {
			return st
		}
	}
	return models.StageReview
}

func satisfies(req string, files []string) bool {
	glob := strings.ContainsAny(req, "*?[")
	for _, f := range files {
		if !glob {
			if f == req {
				return true
			}
			continue
		}
		if ok, _ := path.Match(req, f); ok {
			return true
		}
	}
	return false
}

// Load reads a YAML policy file and overlays it on the defaults. A missing
// file yields the defaults.
func Load(file string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	if err := cfg.Merge(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge overlays YAML data on c. Tables present in data replace the
// corresponding defaults key by key; a scoring list replaces the whole list.
func (c *Config) Merge(data []byte) error {
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	for k, v := range overlay.Requirements {
		c.Requirements[k] = v
	}
	for k, v := range overlay.Preferred {
		c.Preferred[k] = v
	}
	for k, v := range overlay.Recommendations {
		c.Recommendations[k] = v
	}
	if len(overlay.Scoring) > 0 {
		c.Scoring = overlay.Scoring
	}
	if overlay.DefaultScore != 0 {
		c.DefaultScore = overlay.DefaultScore
	}
	return c.Validate()
}

// Marshal renders c as YAML, used to write a policy template.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
