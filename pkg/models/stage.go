package models

// Stage is a named phase of a project's lifecycle.
type Stage string

const (
	// StagePlanning is the research and planning phase.
	StagePlanning Stage = "planning"
	// StageImplementation is the phase where the main entry point is built.
	StageImplementation Stage = "implementation"
	// StageTesting is the phase where tests are written and run.
	StageTesting Stage = "testing"
	// StageReview is the terminal phase; completing it finishes the project.
	StageReview Stage = "review"
)

// AllStages returns the lifecycle stages in order.
func AllStages() []Stage {
	return []Stage{StagePlanning, StageImplementation, StageTesting, StageReview}
}

// Valid returns true if the stage is a known value.
func (s Stage) Valid() bool {
	switch s {
	case StagePlanning, StageImplementation, StageTesting, StageReview:
		return true
	default:
		return false
	}
}

// Next returns the stage that follows s. The second return value is false
// for StageReview and for unknown stages.
func (s Stage) Next() (Stage, bool) {
	stages := AllStages()
	for i, st := range stages {
		if st == s && i+1 < len(stages) {
			return stages[i+1], true
		}
	}
	return "", false
}

// LoopState is the top-level state of the orchestrator.
type LoopState string

const (
	// StateIdle means no project is active.
	StateIdle LoopState = "idle"
	// StateInProgress means a project is active and has a current stage.
	StateInProgress LoopState = "in_progress"
)

// Valid returns true if the state is a known value.
func (s LoopState) Valid() bool {
	return s == StateIdle || s == StateInProgress
}
