package handlers

import (
	"context"
	"errors"

	"github.com/ShayCichocki/nimbus/internal/action"
	"github.com/ShayCichocki/nimbus/internal/exec"
	"github.com/ShayCichocki/nimbus/pkg/models"
)

func (s *Set) runUnitTests(ctx context.Context, p action.Params) (models.ActionResult, error) {
	name, ok := currentProject(p)
	if !ok {
		return fail(errNoProject)
	}
	if s.Runner == nil || !s.Runner.LookPath(s.Interpreter) {
		return fail("interpreter %s not available", s.Interpreter)
	}

	out, err := s.Runner.Run(ctx, s.Workspace.ProjectPath(name),
		s.Interpreter, "-m", "unittest", "discover", "-p", "test_*.py")
	if errors.Is(err, exec.ErrTimeout) {
		return models.ActionResult{
			Status:  models.StatusTimeout,
			Payload: map[string]any{"output": "test run timed out"},
		}, nil
	}
	if err != nil {
		return models.ActionResult{}, err
	}

	// unittest reports on stderr.
	output := out.Stderr + out.Stdout
	s.mu.Lock()
	s.lastTest = &testRun{Output: output, ExitCode: out.ExitCode, At: s.Now()}
	s.mu.Unlock()

	payload := map[string]any{"output": output, "return_code": out.ExitCode}
	if out.ExitCode != 0 {
		return models.ActionResult{Status: models.StatusFailed, Payload: payload}, nil
	}
	return models.Success(payload), nil
}

func (s *Set) viewTestResults(context.Context, action.Params) (models.ActionResult, error) {
	s.mu.Lock()
	last := s.lastTest
	s.mu.Unlock()
	if last == nil {
		return fail("no test run yet")
	}
	return models.Success(map[string]any{
		"output":      last.Output,
		"return_code": last.ExitCode,
		"ran_at":      last.At,
	}), nil
}
