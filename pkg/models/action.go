package models

import "time"

// Category groups actions in the catalog.
type Category string

const (
	CategoryProjectManagement Category = "project_management"
	CategoryCodeDevelopment   Category = "code_development"
	CategoryFileManagement    Category = "file_management"
	CategoryGit               Category = "git"
	CategoryIssueTracking     Category = "issue_tracking"
	CategoryPullRequests      Category = "pull_requests"
	CategoryCodeReview        Category = "code_review"
	CategoryTesting           Category = "testing"
	CategoryDefault           Category = "default"
)

// ActionDescriptor identifies a selectable unit of work.
type ActionDescriptor struct {
	// Name is the unique action identifier, e.g. "write_tests".
	Name string `json:"name"`
	// Category is the catalog group the action belongs to.
	Category Category `json:"category"`
	// Description is a one-line human readable summary.
	Description string `json:"description"`
}

// ResultStatus is the outcome class of an executed action.
type ResultStatus string

const (
	// StatusSuccess indicates the action completed and its effects applied.
	StatusSuccess ResultStatus = "success"
	// StatusFailed indicates the action was rejected or could not do its work.
	StatusFailed ResultStatus = "failed"
	// StatusError indicates the handler raised an error.
	StatusError ResultStatus = "error"
	// StatusTimeout indicates the handler ran out of time.
	StatusTimeout ResultStatus = "timeout"
	// StatusUnknown indicates no handler is registered for the action.
	StatusUnknown ResultStatus = "unknown"
)

// Valid returns true if the status is a known value.
func (s ResultStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusError, StatusTimeout, StatusUnknown:
		return true
	default:
		return false
	}
}

// ActionResult is the structured outcome of executing an action.
type ActionResult struct {
	Status  ResultStatus   `json:"status"`
	Payload map[string]any `json:"payload,omitempty"`
	// StageHint is the stage the handler believes the project is in, if any.
	StageHint Stage `json:"stage_hint,omitempty"`
	// Warning is set when the result was synthesized instead of dispatched,
	// for example when an action is rejected by the state machine.
	Warning string `json:"warning,omitempty"`
}

// Succeeded reports whether the result has status success.
func (r ActionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// String returns a payload value as a string, or "" if absent.
func (r ActionResult) String(key string) string {
	if r.Payload == nil {
		return ""
	}
	s, _ := r.Payload[key].(string)
	return s
}

// Int returns a payload value as an int, or 0 if absent.
func (r ActionResult) Int(key string) int {
	if r.Payload == nil {
		return 0
	}
	switch v := r.Payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Success builds a success result with the given payload.
func Success(payload map[string]any) ActionResult {
	return ActionResult{Status: StatusSuccess, Payload: payload}
}

// Failure builds a failed result carrying a reason.
func Failure(reason string) ActionResult {
	return ActionResult{Status: StatusFailed, Payload: map[string]any{"reason": reason}}
}

// WarningResult builds a synthesized result for a rejected action.
func WarningResult(msg string) ActionResult {
	return ActionResult{Status: StatusFailed, Warning: msg, Payload: map[string]any{"message": msg}}
}

// EventContext holds contextual metrics collected around one action.
type EventContext struct {
	ProjectState  LoopState `json:"project_state"`
	Stage         Stage     `json:"stage,omitempty"`
	FilesAffected []string  `json:"files_affected,omitempty"`
	TestsWritten  int       `json:"tests_written,omitempty"`
	CommitMade    bool      `json:"commit_made,omitempty"`
	Errors        []string  `json:"errors_encountered,omitempty"`
}

// ActionEvent is one entry in a project's action history.
type ActionEvent struct {
	Action    string       `json:"action"`
	Result    ActionResult `json:"result"`
	Timestamp time.Time    `json:"timestamp"`
	Context   EventContext `json:"context"`
}
