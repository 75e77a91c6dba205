package handlers

import (
	"context"
	"errors"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/git"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

func (s *Set) versioned(p action.Params) (string, *models.ActionResult) {
	name, ok := currentProject(p)
	if !ok {
		res := models.Failure(errNoProject)
		return "", &res
	}
	if !s.Workspace.IsVersioned(name) {
		res := models.Failure("project is not a git repository")
		return "", &res
	}
	return name, nil
}

func (s *Set) commitChanges(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, res := s.versioned(p)
	if res != nil {
		return *res, nil
	}
	hash, err := s.Workspace.Commit(name, p.String("message"))
	if errors.Is(err, git.ErrNothingToCommit) {
		return fail("nothing to commit")
	}
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.Success(map[string]any{
		"commit":                 hash,
		action.PayloadCommitMade: true,
	}), nil
}

func (s *Set) createBranch(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, res := s.versioned(p)
	if res != nil {
		return *res, nil
	}
	branch := p.String("branch_name")
	if err := s.Workspace.CreateBranch(name, branch); err != nil {
		return fail("create branch %s: %v", branch, err)
	}
	return models.Success(map[string]any{"branch": branch}), nil
}

func (s *Set) switchBranch(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, res := s.versioned(p)
	if res != nil {
		return *res, nil
	}
	branch := p.String("branch_name")
	if err := s.Workspace.SwitchBranch(name, branch); err != nil {
		return fail("switch to %s: %v", branch, err)
	}
	return models.Success(map[string]any{"branch": branch}), nil
}

func (s *Set) viewCommitHistory(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, res := s.versioned(p)
	if res != nil {
		return *res, nil
	}
	commits, err := s.Workspace.Log(name, p.Int("limit"))
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.Success(map[string]any{"commits": commits}), nil
}
