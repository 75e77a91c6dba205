package models

import "time"

// Project is the software project currently driven by the orchestrator.
type Project struct {
	// Name identifies the project and its directory under the workspace.
	Name string `json:"name"`
	// Description is a free-form summary provided when the project started.
	Description string `json:"description,omitempty"`
	// Root is the absolute path of the project directory.
	Root string `json:"root"`
	// Files lists the known file names, in workspace listing order.
	Files []string `json:"files"`
	// Stage is the current lifecycle stage.
	Stage Stage `json:"stage"`
	// StartedAt is when the project became active.
	StartedAt time.Time `json:"started_at"`
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Files = append([]string(nil), p.Files...)
	return &cp
}

// HasFile reports whether name is in the known file list.
func (p *Project) HasFile(name string) bool {
	if p == nil {
		return false
	}
	for _, f := range p.Files {
		if f == name {
			return true
		}
	}
	return false
}

// Counters are the aggregate counters of a progress record.
type Counters struct {
	TotalActions int `json:"total_actions"`
	Errors       int `json:"errors_encountered"`
	TestsWritten int `json:"tests_written"`
	CommitsMade  int `json:"commits_made"`
}

// ProgressRecord is the per-project history kept by the progress tracker.
type ProgressRecord struct {
	Project         string        `json:"project"`
	CurrentStage    Stage         `json:"current_stage"`
	StagesCompleted []Stage       `json:"stages_completed"`
	Events          []ActionEvent `json:"events"`
	Challenges      []string      `json:"challenges,omitempty"`
	Counters        Counters      `json:"counters"`
	StartedAt       time.Time     `json:"started_at"`
}

// Metrics are ratios derived from a progress record.
type Metrics struct {
	ActionFrequency   float64 `json:"action_frequency"`
	ErrorRate         float64 `json:"error_rate"`
	TestCoverageProxy float64 `json:"test_coverage"`
	CommitFrequency   float64 `json:"commit_frequency"`
}

// Experience is a lesson recorded in the knowledge store.
type Experience struct {
	Scenario      string    `json:"scenario"`
	Action        string    `json:"action"`
	Outcome       string    `json:"outcome"`
	LessonLearned string    `json:"lesson_learned,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Map converts the experience into the loosely typed form stored in snapshots.
func (e Experience) Map() map[string]any {
	return map[string]any{
		"scenario":       e.Scenario,
		"action":         e.Action,
		"outcome":        e.Outcome,
		"lesson_learned": e.LessonLearned,
		"timestamp":      e.Timestamp.UnixMilli(),
	}
}

// ExperienceFromMap converts the snapshot form back into an Experience.
// Unknown or mistyped fields are left zero.
func ExperienceFromMap(m map[string]any) Experience {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	e := Experience{
		Scenario:      str("scenario"),
		Action:        str("action"),
		Outcome:       str("outcome"),
		LessonLearned: str("lesson_learned"),
	}
	switch ts := m["timestamp"].(type) {
	case int64:
		e.Timestamp = time.UnixMilli(ts)
	case float64:
		e.Timestamp = time.UnixMilli(int64(ts))
	}
	return e
}
