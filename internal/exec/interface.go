// Package exec provides an interface for running project programs.
package exec

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a command exceeds its deadline.
var ErrTimeout = errors.New("command timed out")

// Output is the captured result of a finished command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command in workDir. A non-zero exit status is reported
	// in Output.ExitCode, not as an error. Exceeding the context deadline
	// returns ErrTimeout.
	Run(ctx context.Context, workDir string, name string, args ...string) (Output, error)

	// LookPath reports whether an executable is available.
	LookPath(name string) bool
}
