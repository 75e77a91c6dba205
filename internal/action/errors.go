package action

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateAction is returned when registering a name twice, or an
	// empty name or nil handler.
	ErrDuplicateAction = errors.New("duplicate or invalid action registration")

	// ErrUnknownAction is returned when a name is not in the catalog.
	ErrUnknownAction = errors.New("unknown action")
)

// ValidationError describes a parameter that failed schema validation.
type ValidationError struct {
	Action string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("invalid parameter %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: invalid parameter %q: %s", e.Action, e.Field, e.Reason)
}
