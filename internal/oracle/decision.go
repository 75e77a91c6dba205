// Package oracle selects the next action, consulting an external decider
// and falling back to deterministic scoring when it fails.
package oracle

import (
	"context"
	"errors"

	"github.com/ShayCichocki/nimbus/pkg/models"
)

var (
	// ErrInvalidSelection is returned when a decider picks an action that
	// is not among the candidates.
	ErrInvalidSelection = errors.New("selection is not a candidate action")

	// ErrNoDecider is returned when no decider is configured.
	ErrNoDecider = errors.New("no decider configured")
)

// Source records where a decision came from.
type Source string

const (
	// SourceOracle means the external decider chose the action.
	SourceOracle Source = "oracle"
	// SourceFallback means deterministic scoring chose the action.
	SourceFallback Source = "fallback"
	// SourceDefault means there were no candidates.
	SourceDefault Source = "default"
)

// Decision is the selected action and its details.
type Decision struct {
	Action  string         `json:"action"`
	Details map[string]any `json:"details,omitempty"`
	Source  Source         `json:"source"`
	// Reason is free text from the decider, or the fallback cause.
	Reason string `json:"reason,omitempty"`
}

// Decider picks one of candidates for the given context.
type Decider interface {
	Decide(ctx context.Context, dc models.DecisionContext, candidates []models.ActionDescriptor) (Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, dc models.DecisionContext, candidates []models.ActionDescriptor) (Decision, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx context.Context, dc models.DecisionContext, candidates []models.ActionDescriptor) (Decision, error) {
	return f(ctx, dc, candidates)
}
