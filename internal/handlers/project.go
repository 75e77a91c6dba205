package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/git"
	"github.com/ShayCichocki/nimbus/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const mainScaffold = `# Main entry point for the project


def main():
    pass


if __name__ == '__main__':
    main()
`

func (s *Set) startNewProject(_ context.Context, p action.Params) (models.ActionResult, error) {
	name := strings.TrimSpace(p.String("project_name"))
	if name == "" {
		name = "project-" + uuid.NewString()[:8]
	}
	if s.Workspace.ProjectExists(name) {
		return fail("project %s already exists", name)
	}

	root, err := s.Workspace.CreateProject(name)
	if err != nil {
		return models.ActionResult{}, err
	}

	desc := p.String("description")
	if desc == "" {
		desc = "Project description goes here."
	}
	scaffold := map[string]string{
		"README.md":        fmt.Sprintf("# %s\n\n%s\n", name, desc),
		"main.py":          mainScaffold,
		"requirements.txt": "# List project dependencies here\n",
	}
	files := []string{"README.md", "main.py", "requirements.txt"}
	for _, f := range files {
		if err := s.Workspace.CreateFile(name, f, []byte(scaffold[f])); err != nil {
			return models.ActionResult{}, err
		}
	}

	payload := map[string]any{
		action.PayloadProject:       name,
		"root":                      root,
		"description":               p.String("description"),
		action.PayloadFilesAffected: files,
	}
	if p.Bool("init_git") {
		if err := s.Workspace.InitRepo(name); err != nil {
			return models.ActionResult{}, fmt.Errorf("init repository: %w", err)
		}
		hash, err := s.Workspace.Commit(name, "Initial commit")
		if err != nil {
			return models.ActionResult{}, fmt.Errorf("initial commit: %w", err)
		}
		payload["commit"] = hash
		payload[action.PayloadCommitMade] = true
	}

	s.Logger.Info("project initialised", zap.String("project", name), zap.String("root", root))
	return models.ActionResult{
		Status:    models.StatusSuccess,
		Payload:   payload,
		StageHint: models.StagePlanning,
	}, nil
}

func (s *Set) continueProject(_ context.Context, p action.Params) (models.ActionResult, error) {
	name := strings.TrimSpace(p.String("project_name"))
	if name == "" {
		projects, err := s.Workspace.ListProjects()
		if err != nil {
			return models.ActionResult{}, err
		}
		if len(projects) == 0 {
			return fail("no existing projects")
		}
		name = projects[len(projects)-1]
	}
	if !s.Workspace.ProjectExists(name) {
		return fail("project %s does not exist", name)
	}
	files, err := s.Workspace.ListFiles(name)
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.Success(map[string]any{
		action.PayloadProject: name,
		"root":                s.Workspace.ProjectPath(name),
		"files":               files,
	}), nil
}

func (s *Set) exitProject(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	return models.Success(map[string]any{
		action.PayloadProject: name,
		"message":             "exited project " + name,
	}), nil
}

func (s *Set) projectRetrospective(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	files, err := s.Workspace.ListFiles(name)
	if err != nil {
		return models.ActionResult{}, err
	}
	summary := map[string]any{
		action.PayloadProject: name,
		"file_count":          len(files),
		"versioned":           s.Workspace.IsVersioned(name),
	}
	if s.Workspace.IsVersioned(name) {
		commits, err := s.Workspace.Log(name, 0)
		if err != nil && !errors.Is(err, git.ErrNotRepository) {
			return models.ActionResult{}, err
		}
		summary["commit_count"] = len(commits)
	}
	return models.Success(summary), nil
}

func (s *Set) analyzeProjectState(_ context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	files, err := s.Workspace.ListFiles(name)
	if err != nil {
		return models.ActionResult{}, err
	}
	return models.Success(map[string]any{
		action.PayloadProject: name,
		"files":               files,
		"file_count":          len(files),
		"versioned":           s.Workspace.IsVersioned(name),
	}), nil
}
