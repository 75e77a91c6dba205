// Package git provides version-control operations on project directories.
package git

import (
	"errors"
	"time"
)

// ErrNotRepository is returned when the directory is not a git repository.
var ErrNotRepository = errors.New("not a git repository")

// ErrNothingToCommit is returned by CommitAll when the worktree is clean.
var ErrNothingToCommit = errors.New("nothing to commit")

// Commit summarises one commit.
type Commit struct {
	Hash    string    `json:"hash"`
	Author  string    `json:"author"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
}

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// CreateBranch creates a branch at HEAD without switching to it.
	CreateBranch(name string) error
	// CheckoutBranch switches to the specified branch.
	CheckoutBranch(name string) error
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
}

// CommitOperations defines the interface for git commit operations.
type CommitOperations interface {
	// CommitAll stages every change and commits it, returning the hash.
	CommitAll(message string) (string, error)
	// HasChanges returns true if there are uncommitted changes.
	HasChanges() (bool, error)
}

// HistoryOperations defines the interface for reading history.
type HistoryOperations interface {
	// Log returns up to limit commits reachable from HEAD, newest first.
	Log(limit int) ([]Commit, error)
}

// Runner defines the complete interface for git operations on one
// repository. Consumers should prefer the focused interfaces when possible.
type Runner interface {
	BranchOperations
	CommitOperations
	HistoryOperations
}
