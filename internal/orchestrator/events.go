package orchestrator

import (
	"time"

	"github.com/ShayCichocki/nimbus/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventActionDispatched indicates an action went through the dispatcher.
	EventActionDispatched EventType = "action_dispatched"
	// EventStageAdvanced indicates the active project moved to the next stage.
	EventStageAdvanced EventType = "stage_advanced"
	// EventProjectStarted indicates a project was created or resumed.
	EventProjectStarted EventType = "project_started"
	// EventProjectCompleted indicates the review stage finished.
	EventProjectCompleted EventType = "project_completed"
	// EventProjectExited indicates the project was left before completion.
	EventProjectExited EventType = "project_exited"
	// EventOracleFallback indicates the decider failed and scoring was used.
	EventOracleFallback EventType = "oracle_fallback"
	// EventSnapshotSaved indicates the persistence scheduler wrote a snapshot.
	EventSnapshotSaved EventType = "snapshot_saved"
	// EventWarning indicates an action was refused by the state machine.
	EventWarning EventType = "warning"
)

// Event represents an event emitted by the orchestrator.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// Project is the active project, if any.
	Project string
	// Action is the related action name, if applicable.
	Action string
	// Stage is the stage after the event.
	Stage models.Stage
	// Status is the action result status for dispatch events.
	Status models.ResultStatus
	// Message provides additional context about the event.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
